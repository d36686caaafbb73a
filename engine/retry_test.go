package engine

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ancware/tunelink/pkg/errors"
)

// flakySender fails a set number of sends, then succeeds and records the
// payloads that made it through.
type flakySender struct {
	mu       sync.Mutex
	failures int
	sent     [][]byte
	attempts int
}

func (s *flakySender) send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("injected send failure")
	}
	cp := make([]byte, len(p))
	copy(cp, p)
	s.sent = append(s.sent, cp)
	return nil
}

func (s *flakySender) delivered() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

func testRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Interval: 2 * time.Millisecond, MaxQueued: 8}
}

func TestRetryConfigDefaults(t *testing.T) {
	cfg := RetryConfig{}.withDefaults()
	if cfg.MaxAttempts != DefaultRetryAttempts {
		t.Errorf("Expected %d max attempts, got %d", DefaultRetryAttempts, cfg.MaxAttempts)
	}
	if cfg.Interval != DefaultRetryInterval {
		t.Errorf("Expected %v interval, got %v", DefaultRetryInterval, cfg.Interval)
	}
	if cfg.MaxQueued != DefaultRetryQueueLimit {
		t.Errorf("Expected %d queue limit, got %d", DefaultRetryQueueLimit, cfg.MaxQueued)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	sender := &flakySender{failures: 1}
	m := NewRetryManager(testRetryConfig(), sender.send, zerolog.Nop())
	defer m.Close()

	retried := make(chan RetryItem, 1)
	m.OnRetried(func(item RetryItem) { retried <- item })

	payload := []byte{0xAA, 0x02, 0x08, 0x01, 0x55}
	m.Schedule("frame-1", payload)

	select {
	case item := <-retried:
		if item.ID != "frame-1" {
			t.Errorf("Expected id frame-1, got %s", item.ID)
		}
		// First resend fails, second goes through.
		if item.Attempts != 2 {
			t.Errorf("Expected 2 attempts, got %d", item.Attempts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for the resend")
	}

	if n := m.Pending(); n != 0 {
		t.Errorf("Expected empty queue after success, got %d pending", n)
	}
	sent := sender.delivered()
	if len(sent) != 1 || !bytes.Equal(sent[0], payload) {
		t.Errorf("Expected the original payload delivered once, got %v", sent)
	}
}

func TestRetryExhaustion(t *testing.T) {
	sender := &flakySender{failures: 99}
	m := NewRetryManager(testRetryConfig(), sender.send, zerolog.Nop())
	defer m.Close()

	exhausted := make(chan error, 1)
	attempts := make(chan int, 1)
	m.OnExhausted(func(item RetryItem, err error) {
		attempts <- item.Attempts
		exhausted <- err
	})

	m.Schedule("frame-1", []byte{0xAA, 0x01, 0x7A, 0x55})

	select {
	case err := <-exhausted:
		if !errors.HasCode(err, ErrRetryExhausted) {
			t.Errorf("Expected retry_exhausted, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for exhaustion")
	}

	if n := <-attempts; n != 3 {
		t.Errorf("Expected 3 attempts before giving up, got %d", n)
	}
	if n := m.Pending(); n != 0 {
		t.Errorf("Expected empty queue after exhaustion, got %d pending", n)
	}
	if got := sender.delivered(); len(got) != 0 {
		t.Errorf("Expected no delivered payloads, got %d", len(got))
	}
}

func TestRetryQueueDrainsInOrder(t *testing.T) {
	sender := &flakySender{}
	m := NewRetryManager(testRetryConfig(), sender.send, zerolog.Nop())
	defer m.Close()

	seen := make(chan string, 2)
	m.OnRetried(func(item RetryItem) { seen <- item.ID })

	m.Schedule("first", []byte{0x01})
	m.Schedule("second", []byte{0x02})

	for _, want := range []string{"first", "second"} {
		select {
		case id := <-seen:
			if id != want {
				t.Errorf("Expected %s, got %s", want, id)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for %s", want)
		}
	}

	if n := m.Pending(); n != 0 {
		t.Errorf("Expected drained queue, got %d pending", n)
	}
}

func TestRetryClearDropsQueue(t *testing.T) {
	sender := &flakySender{failures: 99}
	cfg := RetryConfig{MaxAttempts: 3, Interval: time.Hour, MaxQueued: 8}
	m := NewRetryManager(cfg, sender.send, zerolog.Nop())
	defer m.Close()

	dropped := make(chan RetryItem, 4)
	m.OnExhausted(func(item RetryItem, err error) { dropped <- item })

	m.Schedule("a", []byte{0x01})
	m.Schedule("b", []byte{0x02})
	if n := m.Pending(); n != 2 {
		t.Fatalf("Expected 2 pending, got %d", n)
	}

	m.Clear()
	if n := m.Pending(); n != 0 {
		t.Errorf("Expected empty queue after clear, got %d pending", n)
	}
	select {
	case item := <-dropped:
		t.Errorf("Expected no exhaustion reports on clear, got %s", item.ID)
	default:
	}

	// Clear does not retire the manager.
	m.Schedule("c", []byte{0x03})
	if n := m.Pending(); n != 1 {
		t.Errorf("Expected scheduling to work after clear, got %d pending", n)
	}
}

func TestRetryQueueOverflowDropsOldest(t *testing.T) {
	sender := &flakySender{failures: 99}
	cfg := RetryConfig{MaxAttempts: 3, Interval: time.Hour, MaxQueued: 2}
	m := NewRetryManager(cfg, sender.send, zerolog.Nop())
	defer m.Close()

	dropped := make(chan RetryItem, 1)
	errs := make(chan error, 1)
	m.OnExhausted(func(item RetryItem, err error) {
		dropped <- item
		errs <- err
	})

	m.Schedule("a", []byte{0x01})
	m.Schedule("b", []byte{0x02})
	m.Schedule("c", []byte{0x03})

	select {
	case item := <-dropped:
		if item.ID != "a" {
			t.Errorf("Expected oldest item a dropped, got %s", item.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for the overflow drop")
	}
	if err := <-errs; !errors.HasCode(err, ErrRetryQueueOverflow) {
		t.Errorf("Expected retry_queue_overflow, got %v", err)
	}
	if n := m.Pending(); n != 2 {
		t.Errorf("Expected 2 pending after overflow, got %d", n)
	}
}

func TestRetryCloseStopsScheduling(t *testing.T) {
	sender := &flakySender{}
	m := NewRetryManager(testRetryConfig(), sender.send, zerolog.Nop())

	m.Close()
	m.Schedule("a", []byte{0x01})
	if n := m.Pending(); n != 0 {
		t.Errorf("Expected scheduling after close to be ignored, got %d pending", n)
	}
}
