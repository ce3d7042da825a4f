package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meshboard/meshboard-core/internal/infrastructure/logging"
	"github.com/meshboard/meshboard-core/internal/meshcore"
	"github.com/meshboard/meshboard-core/internal/message"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultDrainMax     = 200
	defaultBaseBackoff  = 2 * time.Second
	defaultMaxBackoff   = 60 * time.Second

	// commandQueueSize bounds API-originated session commands waiting
	// for the poll loop.
	commandQueueSize = 4
)

// State is the poller's connection state.
type State string

const (
	StateDisconnected State = "DISCONNECTED"
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateDraining     State = "DRAINING"
	StateBackoff      State = "BACKOFF"
)

// Session is the slice of the radio client the poller drives. One
// session covers one connection; transport errors end it.
type Session interface {
	Start(ctx context.Context) (meshcore.SelfInfo, error)
	DrainOne(ctx context.Context) (*meshcore.RawMessage, error)
	Channels(ctx context.Context) ([]meshcore.ChannelInfo, error)
	Contacts(ctx context.Context) ([]meshcore.ContactInfo, error)
	SendChannelMessage(ctx context.Context, channelIdx int, text string) error
	Close() error
}

// Dialer establishes a fresh radio session.
type Dialer func(ctx context.Context) (Session, error)

// RecordSink receives each stored record for onward delivery.
// Publish must not block; the poller calls it inline after the store
// write commits.
type RecordSink interface {
	Publish(rec *message.Record)
}

// SinkFunc adapts a plain function to RecordSink.
type SinkFunc func(rec *message.Record)

func (f SinkFunc) Publish(rec *message.Record) { f(rec) }

// MultiSink fans one record out to several sinks in order.
type MultiSink []RecordSink

func (m MultiSink) Publish(rec *message.Record) {
	for _, s := range m {
		s.Publish(rec)
	}
}

// HealthReporter receives a status snapshot on poller state
// transitions, for telemetry.
type HealthReporter interface {
	ReportPollerHealth(status Status)
}

// Status is a point-in-time snapshot of the poller.
type Status struct {
	State        State
	NodeName     string
	ConnectedAt  time.Time
	Failures     int
	LastError    string
	NextRetryAt  time.Time
	LastDrainAt  time.Time
	DrainedTotal uint64
	DroppedTotal uint64
}

// Config tunes the poll loop.
type Config struct {
	// PollInterval is the delay between drain cycles. Defaults to 2s.
	PollInterval time.Duration

	// DrainMax caps messages pulled per cycle. Defaults to 200.
	DrainMax int

	// BaseBackoff is the reconnect delay after the first failure;
	// it doubles per consecutive failure. Defaults to 2s.
	BaseBackoff time.Duration

	// MaxBackoff clamps the reconnect delay. Defaults to 60s.
	MaxBackoff time.Duration
}

// Deps wires the poller to the rest of the pipeline.
type Deps struct {
	Dial     Dialer
	Repo     message.Repository
	Resolver *Resolver
	Sink     RecordSink     // optional
	Health   HealthReporter // optional
	Logger   *logging.Logger
}

// Poller owns the radio connection.
//
// It is the only component that talks to the radio: it dials, drains
// the device queue on an interval, and runs API-originated session
// commands submitted through Do. For every drained message it
// synchronously normalizes, stores, and hands the record to the sink,
// in that order, so a record is never broadcast before it is durable.
//
// Connection lifecycle:
//
//	DISCONNECTED ──► CONNECTING ──► CONNECTED ◄──► DRAINING
//	                     │               │              │
//	                     ▼               ▼              ▼
//	                  BACKOFF ◄── any transport failure
//	                     │
//	                     └──────► CONNECTING (delay doubles, 60s cap)
//
// A successful connection resets the failure counter.
type Poller struct {
	cfg        Config
	dial       Dialer
	repo       message.Repository
	resolver   *Resolver
	normalizer *Normalizer
	sink       RecordSink
	health     HealthReporter
	logger     *logging.Logger

	commands chan sessionCommand

	mu     sync.RWMutex
	status Status

	drainedTotal atomic.Uint64
	droppedTotal atomic.Uint64
}

type sessionCommand struct {
	fn    func(ctx context.Context, session Session) error
	reply chan error
}

// NewPoller creates a poller. Dial, Repo and Resolver are required.
func NewPoller(cfg Config, deps Deps) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.DrainMax <= 0 {
		cfg.DrainMax = defaultDrainMax
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Poller{
		cfg:        cfg,
		dial:       deps.Dial,
		repo:       deps.Repo,
		resolver:   deps.Resolver,
		normalizer: NewNormalizer(deps.Resolver),
		sink:       deps.Sink,
		health:     deps.Health,
		logger:     logger.With("component", "poller"),
		commands:   make(chan sessionCommand, commandQueueSize),
		status:     Status{State: StateDisconnected},
	}
}

// Run drives the connection lifecycle until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started",
		"poll_interval", p.cfg.PollInterval.String(),
		"drain_max", p.cfg.DrainMax)
	defer p.logger.Info("poller stopped")
	defer p.setState(StateDisconnected)

	for {
		if ctx.Err() != nil {
			return
		}

		session, err := p.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.backoff(ctx, err)
			continue
		}

		err = p.serve(ctx, session)
		session.Close()
		if ctx.Err() != nil {
			return
		}
		p.backoff(ctx, err)
	}
}

// Do runs fn against the live session from the poll loop's goroutine.
// It fails fast with ErrSessionUnavailable when no session is
// established, and otherwise waits for fn to complete or ctx to end.
func (p *Poller) Do(ctx context.Context, fn func(ctx context.Context, session Session) error) error {
	switch p.State() {
	case StateConnected, StateDraining:
	default:
		return ErrSessionUnavailable
	}

	cmd := sessionCommand{fn: fn, reply: make(chan error, 1)}
	select {
	case p.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connection state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status.State
}

// Status returns a snapshot of the poller.
func (p *Poller) Status() Status {
	p.mu.RLock()
	st := p.status
	p.mu.RUnlock()

	st.DrainedTotal = p.drainedTotal.Load()
	st.DroppedTotal = p.droppedTotal.Load()
	return st
}

// connect dials the radio, starts the session, and primes the name
// caches. Any failure closes the half-open session.
func (p *Poller) connect(ctx context.Context) (Session, error) {
	p.setState(StateConnecting)

	session, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialing radio: %w", err)
	}

	self, err := session.Start(ctx)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("starting session: %w", err)
	}

	if err := p.resolver.Refresh(ctx, session); err != nil {
		session.Close()
		return nil, err
	}

	p.mu.Lock()
	p.status.State = StateConnected
	p.status.NodeName = self.NodeName
	p.status.ConnectedAt = time.Now().UTC()
	p.status.Failures = 0
	p.status.LastError = ""
	p.status.NextRetryAt = time.Time{}
	p.mu.Unlock()

	p.logger.Info("radio connected",
		"node", self.NodeName,
		"channels", len(p.resolver.Channels()))
	if p.health != nil {
		p.health.ReportPollerHealth(p.Status())
	}
	return session, nil
}

// serve polls and runs session commands until the session dies or ctx
// ends.
func (p *Poller) serve(ctx context.Context, session Session) error {
	defer p.failPending()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-p.commands:
			err := cmd.fn(ctx, session)
			cmd.reply <- err
			if isTransportError(err) {
				return err
			}
		case <-ticker.C:
			if err := p.drain(ctx, session); err != nil {
				return err
			}
		}
	}
}

// drain pulls queued messages until the device reports empty or the
// per-cycle cap is hit. Every message in the cycle shares one
// received_at stamp.
func (p *Poller) drain(ctx context.Context, session Session) error {
	p.setState(StateDraining)

	receivedAt := time.Now().UTC()
	for attempts := 0; attempts < p.cfg.DrainMax; attempts++ {
		raw, err := session.DrainOne(ctx)
		if err != nil {
			if errors.Is(err, meshcore.ErrQueueEmpty) {
				break
			}
			if errors.Is(err, meshcore.ErrDeviceError) {
				// The device refused the sync; the connection is fine.
				p.logger.Warn("device refused message sync", "error", err)
				break
			}
			if errors.Is(err, meshcore.ErrInvalidFrame) {
				p.droppedTotal.Add(1)
				p.logger.Warn("dropped unparseable message", "error", err)
				continue
			}
			return err
		}
		p.ingest(ctx, raw, receivedAt)
	}

	p.mu.Lock()
	p.status.State = StateConnected
	p.status.LastDrainAt = time.Now().UTC()
	p.mu.Unlock()
	return nil
}

// ingest normalizes and stores one message, then hands it to the sink.
// Failures drop the single message, never the cycle.
func (p *Poller) ingest(ctx context.Context, raw *meshcore.RawMessage, receivedAt time.Time) {
	rec, err := p.normalizer.Normalize(raw, receivedAt)
	if err != nil {
		p.droppedTotal.Add(1)
		p.logger.Warn("dropped message", "error", err)
		return
	}

	if err := p.repo.Insert(ctx, rec); err != nil {
		p.droppedTotal.Add(1)
		p.logger.Error("failed to store message", "error", err)
		return
	}

	p.drainedTotal.Add(1)
	if p.sink != nil {
		p.sink.Publish(rec)
	}
}

// backoff records the failure and sleeps before the next attempt.
func (p *Poller) backoff(ctx context.Context, cause error) {
	p.mu.Lock()
	p.status.Failures++
	failures := p.status.Failures
	delay := nextBackoff(p.cfg.BaseBackoff, p.cfg.MaxBackoff, failures)
	p.status.State = StateBackoff
	p.status.LastError = cause.Error()
	p.status.NextRetryAt = time.Now().UTC().Add(delay)
	p.mu.Unlock()

	p.logger.Warn("radio connection lost, retrying",
		"error", cause,
		"failures", failures,
		"retry_in", delay.String())
	if p.health != nil {
		p.health.ReportPollerHealth(p.Status())
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// failPending answers queued session commands once the session is gone.
func (p *Poller) failPending() {
	for {
		select {
		case cmd := <-p.commands:
			cmd.reply <- ErrSessionUnavailable
		default:
			return
		}
	}
}

func (p *Poller) setState(s State) {
	p.mu.Lock()
	p.status.State = s
	p.mu.Unlock()
}

// nextBackoff doubles the delay per consecutive failure, clamped to max:
// base, 2*base, 4*base, ...
func nextBackoff(base, max time.Duration, failures int) time.Duration {
	if failures <= 1 {
		return base
	}
	if failures > 30 {
		return max
	}
	d := base << (failures - 1)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// isTransportError reports whether a session command error means the
// connection itself is gone.
func isTransportError(err error) bool {
	return errors.Is(err, meshcore.ErrCommandFailed) ||
		errors.Is(err, meshcore.ErrProtocolDesync) ||
		errors.Is(err, meshcore.ErrClientClosed) ||
		errors.Is(err, meshcore.ErrConnectionFailed)
}
