// Package forward publishes received frames to NATS
package forward

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/herlein/asfs/pkg/asfs"
	"github.com/herlein/asfs/pkg/radio"
)

// Message headers
const (
	HeaderPacketID   = "Asfs-Packet-Id"
	HeaderSession    = "Asfs-Session"
	HeaderSF         = "Asfs-Sf"
	HeaderReceivedAt = "Asfs-Received-At"
)

// ErrNoConnection indicates a forwarder without a NATS connection
var ErrNoConnection = errors.New("no NATS connection")

// Publisher is the part of *nats.Conn the forwarder needs
type Publisher interface {
	PublishMsg(m *nats.Msg) error
}

// Options configures a NATS connection
type Options struct {
	URL               string
	Name              string
	Username          string
	Password          string
	MaxReconnects     int
	ReconnectInterval time.Duration
}

// Connect dials NATS with reconnect handling logged through logger
func Connect(opts Options, logger zerolog.Logger) (*nats.Conn, error) {
	name := opts.Name
	if name == "" {
		name = "asfs-rx"
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name(name),
		nats.UserInfo(opts.Username, opts.Password),
		nats.ReconnectWait(opts.ReconnectInterval),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}
	return nc, nil
}

// Forwarder publishes every received packet on <prefix>.rx.sf<N>
type Forwarder struct {
	pub    Publisher
	prefix string
	log    zerolog.Logger
}

// New creates a forwarder on pub
func New(pub Publisher, prefix string, logger zerolog.Logger) *Forwarder {
	return &Forwarder{
		pub:    pub,
		prefix: prefix,
		log:    logger,
	}
}

// Subject returns the subject packets received at sf are published on
func Subject(prefix string, sf radio.SpreadingFactor) string {
	return fmt.Sprintf("%s.rx.sf%d", prefix, uint8(sf))
}

// Message builds the NATS message of a packet. The body is the raw payload.
func Message(prefix string, pkt asfs.Packet) *nats.Msg {
	msg := nats.NewMsg(Subject(prefix, pkt.SF))
	msg.Data = pkt.Data
	msg.Header.Set(HeaderPacketID, pkt.ID.String())
	msg.Header.Set(HeaderSession, pkt.SessionID.String())
	msg.Header.Set(HeaderSF, strconv.Itoa(int(pkt.SF)))
	msg.Header.Set(HeaderReceivedAt, pkt.ReceivedAt.UTC().Format(time.RFC3339Nano))
	return msg
}

// Publish sends one packet
func (f *Forwarder) Publish(pkt asfs.Packet) error {
	if f.pub == nil {
		return ErrNoConnection
	}

	msg := Message(f.prefix, pkt)
	if err := f.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}

	f.log.Debug().
		Str("subject", msg.Subject).
		Int("size", len(pkt.Data)).
		Str("packet", pkt.ID.String()).
		Msg("packet forwarded")
	return nil
}

// OnPacket is an asfs.Config.OnPacket hook. Failures are logged, never
// returned to the receiver.
func (f *Forwarder) OnPacket(pkt asfs.Packet) {
	if err := f.Publish(pkt); err != nil {
		f.log.Error().Err(err).Msg("failed to forward packet")
	}
}
