// Package events publishes camera-switch and stall notifications over NATS
// for fleet-side observers. Entirely optional: a nil Publisher drops every
// event, so the hub runs unchanged without a broker.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dj-oyu/rdk-x5_camera-core/internal/logger"
)

// SwitchEvent is published on every camera transition.
type SwitchEvent struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Reason     string  `json:"reason"`
	Generation uint32  `json:"generation"`
	Brightness float32 `json:"brightness_avg"`
	Timestamp  int64   `json:"timestamp"`
}

// StallEvent is published when the active ring stops producing frames.
type StallEvent struct {
	Camera    string `json:"camera"`
	LastSeq   uint64 `json:"last_sequence"`
	Timestamp int64  `json:"timestamp"`
}

// Options configure the NATS connection.
type Options struct {
	URL            string
	Name           string
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
	SwitchSubject  string
	StallSubject   string
}

// Publisher sends events to NATS. Methods on a nil Publisher are no-ops.
type Publisher struct {
	conn          *nats.Conn
	switchSubject string
	stallSubject  string
}

// Connect dials NATS. Callers treat a connection failure as degraded
// operation, not fatal.
func Connect(opts Options) (*Publisher, error) {
	conn, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
	)
	if err != nil {
		return nil, err
	}
	logger.Info("Events", "NATS connection established: %s", opts.URL)
	return &Publisher{
		conn:          conn,
		switchSubject: opts.SwitchSubject,
		stallSubject:  opts.StallSubject,
	}, nil
}

// PublishSwitch sends a SwitchEvent. Errors are logged, never propagated;
// event delivery is best-effort by design.
func (p *Publisher) PublishSwitch(ev SwitchEvent) {
	if p == nil {
		return
	}
	p.publish(p.switchSubject, ev)
}

// PublishStall sends a StallEvent.
func (p *Publisher) PublishStall(ev StallEvent) {
	if p == nil {
		return
	}
	p.publish(p.stallSubject, ev)
}

func (p *Publisher) publish(subject string, payload any) {
	if p == nil || p.conn == nil || subject == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Events", "marshal %s: %v", subject, err)
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		logger.Warn("Events", "publish %s: %v", subject, err)
	}
}

// Close drains the connection, falling back to an immediate close.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		logger.Warn("Events", "drain failed, closing: %v", err)
		p.conn.Close()
	}
}
