package client

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	initial := 100 * time.Millisecond
	maxDelay := 800 * time.Millisecond
	for attempt := 0; attempt < 6; attempt++ {
		delay := backoffWithJitter(initial, maxDelay, attempt)
		if delay < initial/2 {
			t.Fatalf("delay below jitter floor: %v", delay)
		}
		if delay > maxDelay {
			t.Fatalf("delay exceeded max: %v", delay)
		}
	}
}

func TestRetrierStopsAfterSuccess(t *testing.T) {
	r := newRetrier(1, 2, 3, zerolog.Nop())
	var attempts int
	err := r.do(func() error {
		attempts++
		if attempts < 2 {
			return &StatusError{Status: 503}
		}
		return nil
	}, isRetryableHTTP)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestRetrierGivesUpOnNonRetryable(t *testing.T) {
	r := newRetrier(1, 2, 5, zerolog.Nop())
	var attempts int
	err := r.do(func() error {
		attempts++
		return &StatusError{Status: 400}
	}, isRetryableHTTP)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestIsRetryableHTTP(t *testing.T) {
	if isRetryableHTTP(nil) {
		t.Fatal("nil error should not be retryable")
	}
	if !isRetryableHTTP(&StatusError{Status: 503}) {
		t.Fatal("5xx should be retryable")
	}
	if !isRetryableHTTP(&StatusError{Status: 429}) {
		t.Fatal("429 should be retryable")
	}
	if isRetryableHTTP(&StatusError{Status: 404}) {
		t.Fatal("404 should not be retryable")
	}
	if isRetryableHTTP(errors.New("generic")) {
		t.Fatal("generic error should not be retryable")
	}
	if !isRetryableHTTP(&net.DNSError{IsTemporary: true}) {
		t.Fatal("temporary net error should be retryable")
	}
}
