package broker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateGaveUp
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateGaveUp:
		return "gave_up"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection owns one Session to the bus and supervises it. Construct one per process
// and inject it into every publisher and consumer.
type Connection struct {
	dial           Dialer
	policy         ReconnectPolicy
	healthInterval time.Duration
	requeueDelay   time.Duration
	logger         *slog.Logger
	metrics        *Metrics

	mu        sync.Mutex
	session   Session
	state     State
	attempts  int
	exhausted bool
	// ready is closed while state == StateConnected.
	ready chan struct{}
	// down is closed once the connection gave up or was closed.
	down      chan struct{}
	declared  map[string]struct{}
	exchanges map[string]ExchangeKind

	lifetime context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures a Connection.
type Option func(*Connection)

// WithReconnectPolicy overrides DefaultReconnectPolicy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Connection) {
		if p.MaxAttempts >= 0 {
			c.policy = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}

// WithHealthInterval sets how often a live session is pinged. Zero disables the watcher.
func WithHealthInterval(d time.Duration) Option {
	return func(c *Connection) {
		c.healthInterval = d
	}
}

// WithRequeueDelay sets the pause before a failed delivery is handed back to its handler.
func WithRequeueDelay(d time.Duration) Option {
	return func(c *Connection) {
		c.requeueDelay = d
	}
}

// New creates a disconnected Connection. Nothing is dialed until Connect.
func New(dial Dialer, opts ...Option) *Connection {
	lifetime, stop := context.WithCancel(context.Background())
	c := &Connection{
		dial:           dial,
		policy:         DefaultReconnectPolicy,
		healthInterval: 10 * time.Second,
		requeueDelay:   time.Second,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		state:          StateDisconnected,
		ready:          make(chan struct{}),
		down:           make(chan struct{}),
		exchanges:      make(map[string]ExchangeKind),
		lifetime:       lifetime,
		stop:           stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect dials the bus. On failure it returns an error wrapping ErrConnection and the
// supervised reconnect task keeps trying in the background. If a reconnect is already
// running, Connect waits for its outcome.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateConnecting, StateReconnecting:
		ready, down := c.ready, c.down
		c.mu.Unlock()
		return c.await(ctx, ready, down)
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	session, err := c.dial(ctx)
	if err != nil {
		c.logger.Error("broker connect failed", "error", err)
		c.reportFailure(nil, err)
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if !c.install(session) {
		return ErrClosed
	}
	c.logger.Info("broker connected")
	return nil
}

func (c *Connection) await(ctx context.Context, ready, down <-chan struct{}) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ready:
		return nil
	case <-down:
		if c.State() == StateClosed {
			return ErrClosed
		}
		return fmt.Errorf("%w: %w", ErrConnection, ErrGaveUp)
	}
}

// IsConnected reports whether a live session is installed.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the number of reconnect dials since the last successful connect.
func (c *Connection) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Close shuts the connection down. Errors from the session are swallowed.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	session := c.session
	c.session = nil
	c.setStateLocked(StateClosed)
	c.closeDownLocked()
	c.mu.Unlock()

	c.stop()
	if session != nil {
		if err := session.Close(); err != nil {
			c.logger.Debug("broker session close failed", "error", err)
		}
	}
	c.wg.Wait()
	return nil
}

func (c *Connection) install(session Session) bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		_ = session.Close()
		return false
	}
	c.session = session
	c.attempts = 0
	c.exhausted = false
	c.declared = make(map[string]struct{})
	c.setStateLocked(StateConnected)
	close(c.ready)
	select {
	case <-c.down:
		// a manual connect after giving up gets a fresh signal
		c.down = make(chan struct{})
	default:
	}
	c.mu.Unlock()

	if c.healthInterval > 0 {
		c.wg.Add(1)
		go c.watch(session)
	}
	return true
}

// reportFailure is the connection error listener. failed identifies the session that
// produced the error so stale reports about an already replaced session are ignored.
func (c *Connection) reportFailure(failed Session, err error) {
	c.mu.Lock()
	if c.state == StateClosed || c.state == StateReconnecting || c.session != failed {
		c.mu.Unlock()
		return
	}
	if failed == nil && c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	old := c.session
	c.session = nil
	c.declared = nil
	if c.state == StateConnected {
		c.ready = make(chan struct{})
	}
	if c.exhausted {
		c.setStateLocked(StateGaveUp)
		c.closeDownLocked()
		c.mu.Unlock()
		closeQuietly(old)
		c.logger.Error("broker connection lost after reconnect attempts were exhausted; not retrying", "error", err)
		return
	}
	c.setStateLocked(StateReconnecting)
	c.mu.Unlock()

	closeQuietly(old)
	c.logger.Warn("broker connection lost, scheduling reconnect",
		"error", err,
		"max_attempts", c.policy.MaxAttempts,
	)
	c.wg.Add(1)
	go c.reconnect()
}

func (c *Connection) reconnect() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if c.attempts >= c.policy.MaxAttempts {
			c.exhausted = true
			c.setStateLocked(StateGaveUp)
			c.closeDownLocked()
			attempts := c.attempts
			c.mu.Unlock()
			c.logger.Error("broker reconnect attempts exhausted; automation halted until restart",
				"attempts", attempts,
			)
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		timer := time.NewTimer(c.policy.delay(attempt))
		select {
		case <-c.lifetime.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.metrics.incReconnectAttempt()
		session, err := c.dial(c.lifetime)
		if err != nil {
			c.logger.Warn("broker reconnect attempt failed",
				"attempt", attempt,
				"max_attempts", c.policy.MaxAttempts,
				"error", err,
			)
			continue
		}
		if c.install(session) {
			c.logger.Info("broker reconnected", "attempt", attempt)
		}
		return
	}
}

func (c *Connection) watch(session Session) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.lifetime.Done():
			return
		case <-ticker.C:
		}
		if !c.isCurrent(session) {
			return
		}
		ctx, cancel := context.WithTimeout(c.lifetime, c.healthInterval)
		err := session.Ping(ctx)
		cancel()
		if err != nil && c.lifetime.Err() == nil {
			c.reportFailure(session, err)
			return
		}
	}
}

func (c *Connection) isCurrent(session Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == session
}

func (c *Connection) currentSession() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil, ErrClosed
	}
	if c.session == nil {
		return nil, ErrChannelNotInitialized
	}
	return c.session, nil
}

func (c *Connection) declare(ctx context.Context, session Session, name string) error {
	c.mu.Lock()
	_, done := c.declared[name]
	c.mu.Unlock()
	if done {
		return nil
	}
	if err := session.DeclareTopic(ctx, name); err != nil {
		return err
	}
	c.mu.Lock()
	if c.session == session && c.declared != nil {
		c.declared[name] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

func (c *Connection) declareExchange(ctx context.Context, session Session, name string, kind ExchangeKind) error {
	if !kind.Valid() {
		return fmt.Errorf("unsupported exchange kind %q", kind)
	}
	c.mu.Lock()
	existing, ok := c.exchanges[name]
	if ok && existing != kind {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s is %s, not %s", ErrExchangeKindMismatch, name, existing, kind)
	}
	c.exchanges[name] = kind
	c.mu.Unlock()
	return c.declare(ctx, session, name)
}

func (c *Connection) setStateLocked(s State) {
	c.state = s
	c.metrics.setState(s)
}

func (c *Connection) closeDownLocked() {
	select {
	case <-c.down:
	default:
		close(c.down)
	}
}

func closeQuietly(s Session) {
	if s != nil {
		_ = s.Close()
	}
}
