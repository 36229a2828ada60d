package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/herlein/asfs/pkg/asfs"
	"github.com/herlein/asfs/pkg/radio"
	"github.com/herlein/asfs/pkg/radio/stub"
)

type fixedSource struct {
	snap asfs.Snapshot
}

func (f fixedSource) Snapshot() asfs.Snapshot { return f.snap }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	s := NewServer(fixedSource{}, zerolog.Nop())
	rec := get(t, s.Handler(), "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestStatusFromSession(t *testing.T) {
	cfg := asfs.DefaultConfig()
	cfg.Logger = zerolog.Nop()
	cfg.Sleep = func(time.Duration) {}

	session, err := asfs.NewSession(stub.New(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := session.InitSession(radio.SF7, radio.CadRx); err != nil {
		t.Fatal(err)
	}
	if err := session.OnCadDoneUndetected(); err != nil {
		t.Fatal(err)
	}

	rec := get(t, NewServer(session, zerolog.Nop()).Handler(), "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type %q", ct)
	}

	var body struct {
		ID       string `json:"id"`
		SF       string `json:"sf"`
		Failures uint   `json:"consecutive_failures"`
		Mode     string `json:"mode"`
		State    string `json:"state"`
		Stats    struct {
			CadAttempts uint64 `json:"cad_attempts"`
			Undetected  uint64 `json:"undetected"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v\n%s", err, rec.Body.String())
	}

	if body.ID != session.ID().String() || body.SF != "SF8" || body.Failures != 1 ||
		body.Mode != "CAD_RX" || body.State != "AwaitingCAD" {
		t.Errorf("body = %+v", body)
	}
	if body.Stats.CadAttempts != 2 || body.Stats.Undetected != 1 {
		t.Errorf("stats = %+v", body.Stats)
	}
}

func TestLastPacket(t *testing.T) {
	s := NewServer(fixedSource{}, zerolog.Nop())
	if rec := get(t, s.Handler(), "/packets/last"); rec.Code != http.StatusNotFound {
		t.Errorf("status before first packet = %d, want 404", rec.Code)
	}

	pkt := &asfs.Packet{Data: []byte{1, 2, 3}, Length: 3, SF: radio.SF10}
	s = NewServer(fixedSource{snap: asfs.Snapshot{LastPacket: pkt}}, zerolog.Nop())

	rec := get(t, s.Handler(), "/packets/last")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var body asfs.Packet
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Length != 3 || body.SF != radio.SF10 || len(body.Data) != 3 {
		t.Errorf("packet = %+v", body)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := NewServer(fixedSource{}, zerolog.Nop())
	if rec := get(t, s.Handler(), "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", rec.Code)
	}
}
