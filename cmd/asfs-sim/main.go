// asfs-sim: Watch the spreading factor search against a simulated transmitter
//
// A stub radio answers every CAD. It reports a detection only when the search
// is on the transmitter's spreading factor (with probability -p), and under
// CAD_RX follows the detection with a received frame and a window timeout, so
// the whole detect, receive, re-arm cycle runs on the host.
//
// Examples:
//
//	# Transmitter on SF10, 200 events
//	./asfs-sim -tx SF10
//
//	# Weak link: only 30% of CADs on the right SF detect
//	./asfs-sim -tx SF9 -p 0.3 -events 1000
//
//	# Transmitter the search cannot reach
//	./asfs-sim -tx SF12 -events 50 -log-level debug
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/herlein/asfs/pkg/asfs"
	"github.com/herlein/asfs/pkg/radio"
	"github.com/herlein/asfs/pkg/radio/stub"
)

func main() {
	txSF := flag.String("tx", "SF10", "Transmitter spreading factor")
	startSF := flag.String("sf", "SF7", "Spreading factor the search starts at")
	mode := flag.String("mode", "CAD_RX", "CAD exit mode: CAD_ONLY, CAD_RX or CAD_LBT")
	prob := flag.Float64("p", 0.9, "Detection probability on the transmitter SF (0-1)")
	maxEvents := flag.Int("events", 200, "Number of interrupts to simulate")
	duration := flag.Duration("duration", 0, "Stop after this long (0 = until -events)")
	size := flag.Int("size", 12, "Simulated payload size in bytes (1-255)")
	seed := flag.Int64("seed", 1, "Random seed")
	realtime := flag.Bool("realtime", false, "Honour the CAD settle delay")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Simulated adaptive spreading-factor search\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli})
	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var tx, start radio.SpreadingFactor
	if err := tx.UnmarshalText([]byte(*txSF)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: -tx: %v\n", err)
		os.Exit(1)
	}
	if err := start.UnmarshalText([]byte(*startSF)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: -sf: %v\n", err)
		os.Exit(1)
	}
	exit, err := radio.ParseCadExitMode(*mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: -mode: %v\n", err)
		os.Exit(1)
	}
	if *size < 1 || *size > 255 {
		fmt.Fprintln(os.Stderr, "Error: -size must be 1-255")
		os.Exit(1)
	}

	sim := &simulator{
		tx:     tx,
		prob:   *prob,
		size:   *size,
		rng:    rand.New(rand.NewSource(*seed)),
		driver: stub.New(),
		raw:    make(chan radio.Event, 16),
	}

	cfg := asfs.DefaultConfig()
	cfg.Logger = log.Logger
	cfg.Rand = rand.New(rand.NewSource(*seed + 1))
	if !*realtime {
		cfg.Sleep = func(time.Duration) {}
	}

	session, err := asfs.NewSession(sim.driver, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create session")
	}

	ctx := context.Background()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	sim.driver.OnStartCad = sim.answerCad
	events := sim.limit(ctx, *maxEvents)

	fmt.Printf("Transmitter: %s  Start: %s  Mode: %s  p=%.2f\n\n", tx, start, exit, *prob)

	if err := session.Start(start, exit); err != nil {
		log.Fatal().Err(err).Msg("Failed to start search")
	}

	if err := asfs.NewDispatcher(session).Run(ctx, events); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Search failed")
	}

	printSummary(session.Snapshot(), sim.cads)
}

// simulator plays the radio and the transmitter
type simulator struct {
	tx   radio.SpreadingFactor
	prob float64
	size int
	rng  *rand.Rand

	driver *stub.Driver
	raw    chan radio.Event

	cads   int
	frames uint32
}

// answerCad runs inside StartCad, under the session lock. It must only queue
// events, never call back into the session.
func (s *simulator) answerCad(mod radio.ModulationParams, cad radio.CadParams) {
	s.cads++
	s.driver.Reset()

	if mod.SF != s.tx || s.rng.Float64() >= s.prob {
		s.raw <- radio.EventCadDoneUndetected
		return
	}

	s.raw <- radio.EventCadDoneDetected
	if cad.ExitMode != radio.CadRx {
		return
	}

	s.driver.InjectRx(s.payload())
	s.raw <- radio.EventPreambleDetected
	s.raw <- radio.EventRxDone
	// window expires with nothing more on air
	s.raw <- radio.EventPreambleUndetected
}

func (s *simulator) payload() []byte {
	s.frames++
	data := make([]byte, s.size)
	s.rng.Read(data)
	if len(data) >= 4 {
		binary.BigEndian.PutUint32(data, s.frames)
	}
	return data
}

// limit forwards at most n events, then closes the returned channel
func (s *simulator) limit(ctx context.Context, n int) <-chan radio.Event {
	out := make(chan radio.Event)
	go func() {
		defer close(out)
		for i := 0; n <= 0 || i < n; i++ {
			select {
			case ev := <-s.raw:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func printSummary(snap asfs.Snapshot, cads int) {
	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Final SF:      %s (failures %d)\n", snap.SF, snap.Failures)
	fmt.Printf("State:         %s\n", snap.State)
	fmt.Printf("CAD runs:      %d\n", cads)
	fmt.Printf("Detections:    %d\n", snap.Stats.Detections)
	fmt.Printf("Undetected:    %d\n", snap.Stats.Undetected)
	fmt.Printf("SF resets:     %d\n", snap.Stats.SFResets)
	fmt.Printf("Packets:       %d\n", snap.Stats.Packets)
	fmt.Printf("RX timeouts:   %d\n", snap.Stats.PreambleTimeouts)
	if snap.LastPacket != nil {
		fmt.Printf("Last packet:   % X (%s)\n", snap.LastPacket.Data, snap.LastPacket.SF)
	}
}
