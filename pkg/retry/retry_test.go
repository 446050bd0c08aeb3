package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "helloev/pkg/errors"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	p := NewPolicy(3, time.Millisecond)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	p := NewPolicy(3, time.Millisecond)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_AppErrorIsTerminal(t *testing.T) {
	p := NewPolicy(5, time.Millisecond)

	conflict := apperrors.Conflict("slot already booked")
	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return conflict
	})
	if calls != 1 {
		t.Errorf("terminal errors must not be retried, got %d calls", calls)
	}
	if err != conflict {
		t.Errorf("terminal error must be returned unchanged, got %v", err)
	}
}

func TestDo_ExhaustionWrapsAsUnavailable(t *testing.T) {
	p := NewPolicy(2, time.Millisecond)

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	if calls != 2 {
		t.Errorf("expected 2 attempts, got %d", calls)
	}
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	p := NewPolicy(10, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("connection reset")
	})
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
	if !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Fatalf("expected SERVICE_UNAVAILABLE, got %v", err)
	}
	if calls > 3 {
		t.Errorf("cancellation should stop retries early, got %d calls", calls)
	}
}

func TestNewPolicy_Defaults(t *testing.T) {
	p := NewPolicy(0, 0)
	if p.MaxAttempts != 1 {
		t.Errorf("expected minimum 1 attempt, got %d", p.MaxAttempts)
	}
	if p.InitialDelay <= 0 {
		t.Errorf("expected positive initial delay, got %v", p.InitialDelay)
	}
}
