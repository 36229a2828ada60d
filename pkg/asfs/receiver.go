package asfs

import (
	"time"

	"github.com/google/uuid"
	"github.com/soypat/lora"

	"github.com/herlein/asfs/pkg/radio"
)

// Packet is a frame drained from the receive buffer
type Packet struct {
	ID         uuid.UUID             `json:"id"`
	SessionID  uuid.UUID             `json:"session_id"`
	Data       []byte                `json:"data"`
	Length     uint8                 `json:"length"`
	SF         radio.SpreadingFactor `json:"sf"`
	ReceivedAt time.Time             `json:"received_at"`
}

func (p Packet) clone() Packet {
	data := make([]byte, len(p.Data))
	copy(data, p.Data)
	p.Data = data
	return p
}

// Buffer returns a copy of the receive buffer and the length of the last frame
func (s *Session) Buffer() ([]byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buffer))
	copy(out, s.buffer)
	return out, s.length
}

// TimeOnAir estimates the air time of a full buffer at the current modulation
func (s *Session) TimeOnAir() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeOnAir()
}

func (s *Session) timeOnAir() time.Duration {
	header := lora.HeaderExplicit
	if s.cfg.ImplicitHeader {
		header = lora.HeaderImplicit
	}
	cfg := lora.Config{
		Bandwidth:       s.modulation.Bandwidth,
		SpreadingFactor: s.modulation.SF.Lora(),
		CodingRate:      s.modulation.CodingRate,
		PreambleLength:  s.cfg.PreambleLength,
		HeaderType:      header,
		CRC:             s.cfg.CRC,
		LDRO:            s.modulation.LDRO,
	}
	return cfg.TimeOnAir(s.cfg.PayloadCapacity)
}

// onRxDone drains the frame and opens the next receive window
func (s *Session) onRxDone() error {
	for i := range s.buffer {
		s.buffer[i] = 0
	}
	s.length = 0

	s.driver.PostReceiveHousekeeping()

	n, st := s.driver.ReadReceivedPayload(s.buffer)
	if err := check("ReadReceivedPayload", st); err != nil {
		return err
	}
	if n > len(s.buffer) {
		n = len(s.buffer)
	} else if n < 0 {
		n = 0
	}
	s.length = n
	s.stats.Packets++

	pkt := Packet{
		ID:         uuid.New(),
		SessionID:  s.id,
		Data:       append([]byte(nil), s.buffer[:n]...),
		Length:     uint8(n),
		SF:         s.sf,
		ReceivedAt: time.Now(),
	}
	s.lastPacket = &pkt

	s.log.Info().
		Stringer("sf", s.sf).
		Int("size", n).
		Str("packet", pkt.ID.String()).
		Msg("packet received")

	if s.cfg.OnPacket != nil {
		s.cfg.OnPacket(pkt.clone())
	}

	s.driver.PreReceiveHousekeeping()
	return s.rearm()
}

// onRxError discards the corrupted frame and keeps listening
func (s *Session) onRxError() error {
	s.stats.RxErrors++
	s.log.Debug().Stringer("sf", s.sf).Msg("rx error, frame discarded")

	s.driver.PostReceiveHousekeeping()
	return s.rearm()
}

// rearm opens a receive window of base timeout plus air time plus jitter, so
// periodic senders that collided once do not keep colliding
func (s *Session) rearm() error {
	window := ms(s.cfg.RxTimeout) + ms(s.timeOnAir()) + s.jitter()
	ticks := s.driver.ConvertMillisecondsToTicks(window)
	if err := check("StartReceive", s.driver.StartReceive(ticks)); err != nil {
		return err
	}
	s.setState(StateReceiving)
	return nil
}

func (s *Session) jitter() uint32 {
	max := int64(ms(s.cfg.RxJitter))
	if max <= 0 {
		return 0
	}
	return uint32(s.rng.Int63n(max))
}
