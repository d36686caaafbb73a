package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/pkg/errors"
)

const (
	// DefaultRetryAttempts is how many resends a payload gets before it is
	// dropped.
	DefaultRetryAttempts = 3
	// DefaultRetryInterval is the pause between resend attempts.
	DefaultRetryInterval = time.Second
	// DefaultRetryQueueLimit bounds the number of payloads waiting to be
	// resent.
	DefaultRetryQueueLimit = 32
)

// RetrySender delivers a queued payload back to the transport.
type RetrySender func(payload []byte) error

// RetriedHandler observes a payload that went out on a resend attempt.
type RetriedHandler func(item RetryItem)

// ExhaustedHandler observes a payload dropped without a successful send.
type ExhaustedHandler func(item RetryItem, err error)

// RetryItem is one queued payload awaiting resend.
type RetryItem struct {
	ID       string
	Payload  []byte
	Attempts int
}

// RetryConfig tunes the resend policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	Interval    time.Duration `yaml:"interval" json:"interval"`
	MaxQueued   int           `yaml:"max_queued" json:"max_queued"`
}

// DefaultRetryConfig returns the stock resend policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: DefaultRetryAttempts,
		Interval:    DefaultRetryInterval,
		MaxQueued:   DefaultRetryQueueLimit,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultRetryAttempts
	}
	if c.Interval <= 0 {
		c.Interval = DefaultRetryInterval
	}
	if c.MaxQueued <= 0 {
		c.MaxQueued = DefaultRetryQueueLimit
	}
	return c
}

// RetryManager owns a FIFO queue of payloads whose first send failed and
// replays them on a single-shot timer. Each timer fire takes one item: a
// successful resend drops it, a failed resend requeues it until its attempt
// budget runs out, at which point the item is dropped and reported through
// the exhausted handler. The manager synchronizes its own state so the timer
// callback may run next to engine sends.
type RetryManager struct {
	cfg    RetryConfig
	send   RetrySender
	logger zerolog.Logger

	mu     sync.Mutex
	queue  []RetryItem
	timer  *time.Timer
	armed  bool
	closed bool

	cbMu        sync.RWMutex
	onRetried   RetriedHandler
	onExhausted ExhaustedHandler
}

// NewRetryManager creates a manager that resends through send. Zero config
// fields fall back to the defaults.
func NewRetryManager(cfg RetryConfig, send RetrySender, logger zerolog.Logger) *RetryManager {
	return &RetryManager{
		cfg:    cfg.withDefaults(),
		send:   send,
		logger: logger.With().Str("component", "retry-manager").Logger(),
	}
}

// OnRetried registers the handler for successful resends.
func (m *RetryManager) OnRetried(fn RetriedHandler) {
	m.cbMu.Lock()
	m.onRetried = fn
	m.cbMu.Unlock()
}

// OnExhausted registers the handler for payloads dropped without success.
func (m *RetryManager) OnExhausted(fn ExhaustedHandler) {
	m.cbMu.Lock()
	m.onExhausted = fn
	m.cbMu.Unlock()
}

// Schedule queues a payload for resend and arms the timer if it is idle.
// The manager takes ownership of payload. When the queue is full the oldest
// item is dropped and reported as exhausted to make room.
func (m *RetryManager) Schedule(id string, payload []byte) {
	var dropped *RetryItem

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if len(m.queue) >= m.cfg.MaxQueued {
		item := m.queue[0]
		m.queue = m.queue[1:]
		dropped = &item
	}
	m.queue = append(m.queue, RetryItem{ID: id, Payload: payload})
	m.armLocked()
	m.mu.Unlock()

	if dropped != nil {
		m.logger.Warn().
			Str("id", dropped.ID).
			Int("limit", m.cfg.MaxQueued).
			Msg("Retry queue full, oldest payload dropped")
		m.reportExhausted(*dropped, errors.Newf(ErrRetryQueueOverflow, "retry queue limit %d reached", m.cfg.MaxQueued))
	}
}

// Pending returns the number of payloads waiting for a resend.
func (m *RetryManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Clear drops every queued payload and cancels the pending timer. Called on
// transport disconnect so no retry outlives the link it was queued for.
func (m *RetryManager) Clear() {
	m.mu.Lock()
	n := len(m.queue)
	m.queue = nil
	if m.timer != nil {
		m.timer.Stop()
	}
	m.armed = false
	m.mu.Unlock()

	if n > 0 {
		m.logger.Debug().Int("dropped", n).Msg("Retry queue cleared")
	}
}

// Close clears the queue and refuses further scheduling.
func (m *RetryManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Clear()
}

// armLocked starts the single-shot timer unless one is already pending.
// Caller holds mu.
func (m *RetryManager) armLocked() {
	if m.armed || m.closed {
		return
	}
	m.armed = true
	m.timer = time.AfterFunc(m.cfg.Interval, m.fire)
}

// fire is the timer callback: take the head of the queue and resend it once.
func (m *RetryManager) fire() {
	m.mu.Lock()
	m.armed = false
	if m.closed || len(m.queue) == 0 {
		m.mu.Unlock()
		return
	}
	item := m.queue[0]
	m.queue = m.queue[1:]
	m.mu.Unlock()

	item.Attempts++
	m.logger.Debug().
		Str("id", item.ID).
		Int("attempt", item.Attempts).
		Int("max", m.cfg.MaxAttempts).
		Msg("Retrying send")

	err := m.send(item.Payload)
	if err == nil {
		m.logger.Info().
			Str("id", item.ID).
			Int("attempt", item.Attempts).
			Msg("Retry send succeeded")

		m.mu.Lock()
		if len(m.queue) > 0 {
			m.armLocked()
		}
		m.mu.Unlock()

		m.cbMu.RLock()
		fn := m.onRetried
		m.cbMu.RUnlock()
		if fn != nil {
			fn(item)
		}
		return
	}

	if item.Attempts < m.cfg.MaxAttempts {
		m.mu.Lock()
		if !m.closed {
			m.queue = append(m.queue, item)
			m.armLocked()
		}
		m.mu.Unlock()
		return
	}

	m.logger.Warn().
		Str("id", item.ID).
		Int("attempts", item.Attempts).
		Err(err).
		Msg("Send abandoned after final retry")

	m.mu.Lock()
	if len(m.queue) > 0 {
		m.armLocked()
	}
	m.mu.Unlock()

	m.reportExhausted(item, errors.Newf(ErrRetryExhausted,
		"send failed after %d attempts", item.Attempts).WithCause(err))
}

func (m *RetryManager) reportExhausted(item RetryItem, err error) {
	m.cbMu.RLock()
	fn := m.onExhausted
	m.cbMu.RUnlock()
	if fn != nil {
		fn(item, err)
	}
}
