package asfs

import (
	"bytes"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/herlein/asfs/pkg/radio/stub"
)

// sleepRecorder replaces the settle delay so tests run instantly
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

func (r *sleepRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.delays)
}

type harness struct {
	session *Session
	driver  *stub.Driver
	sleeps  *sleepRecorder
	logs    *bytes.Buffer
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{
		driver: stub.New(),
		sleeps: &sleepRecorder{},
		logs:   &bytes.Buffer{},
	}

	cfg := DefaultConfig()
	cfg.Logger = zerolog.New(h.logs).Level(zerolog.DebugLevel)
	cfg.Sleep = h.sleeps.sleep
	cfg.Rand = rand.New(rand.NewSource(1))
	if mutate != nil {
		mutate(cfg)
	}

	s, err := NewSession(h.driver, cfg)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	h.session = s
	return h
}

func (h *harness) mustHandle(t *testing.T, fn func() error) {
	t.Helper()
	if err := fn(); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
}
