package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

func TestExponentialBackoff(t *testing.T) {
	for attempt, want := range map[int]time.Duration{
		0:  time.Second,
		1:  2 * time.Second,
		3:  8 * time.Second,
		4:  16 * time.Second,
		5:  maxBackoff,
		12: maxBackoff,
	} {
		if got := exponentialBackoff(attempt); got != want {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, want)
		}
	}
}

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("invalid routing key"), false},
		{fmt.Errorf("publish: %w", amqp091.ErrClosed), true},
		{io.EOF, true},
		{errors.New("write: broken pipe"), true},
		{errors.New("Connection reset by peer"), true},
	}
	for _, tt := range tests {
		if got := isConnectionError(tt.err); got != tt.want {
			t.Errorf("isConnectionError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCircuitBreakerTransitions(t *testing.T) {
	c := &Client{}

	for i := 0; i < maxFailures-1; i++ {
		c.recordFailure()
	}
	if c.isCircuitOpen() {
		t.Fatal("opened before reaching the failure threshold")
	}
	c.recordFailure()
	if !c.isCircuitOpen() {
		t.Fatal("still closed after the failure threshold")
	}

	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	if c.isCircuitOpen() {
		t.Fatal("open circuit did not move to half-open after the timeout")
	}
	if got := atomic.LoadInt32(&c.state); got != StateHalfOpen {
		t.Fatalf("state = %d, want half-open", got)
	}

	// A single failure while probing opens it again.
	atomic.StoreInt64(&c.failureCount, 0)
	c.recordFailure()
	if !c.isCircuitOpen() {
		t.Fatal("half-open failure did not reopen the circuit")
	}

	c.recordSuccess()
	if c.isCircuitOpen() || atomic.LoadInt64(&c.failureCount) != 0 {
		t.Fatal("success did not reset the breaker")
	}
}

func TestPublishRecordSyncShortCircuits(t *testing.T) {
	c := &Client{}
	atomic.StoreInt32(&c.state, StateOpen)
	c.lastFailure = time.Now()

	if err := c.PublishRecordSync(context.Background(), 7, 1); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open circuit: got %v, want ErrCircuitOpen", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.PublishRecordSync(ctx, 7, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context: got %v, want context.Canceled", err)
	}
}

func TestRecordSyncMessageRoundTrip(t *testing.T) {
	msg := NewRecordSyncMessage(42, 3)
	if time.Since(msg.Timestamp) > time.Minute {
		t.Fatalf("timestamp not set: %v", msg.Timestamp)
	}

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	got, err := RecordSyncMessageFromJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != 42 || got.Version != 3 || !got.Timestamp.Equal(msg.Timestamp) {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := RecordSyncMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
}
