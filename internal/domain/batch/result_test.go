package batch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResults(t *testing.T) {
	upsertErr := errors.New("upsert timeout")

	tests := []struct {
		name   string
		r      Result
		status ItemStatus
		ok     bool
		err    error
	}{
		{"ok", NewOK(0, 100, time.Millisecond), StatusOK, true, nil},
		{"error", NewError(1, 50, upsertErr, time.Second), StatusError, false, upsertErr},
		{"canceled", NewCanceled(2, 10, context.Canceled), StatusCanceled, false, context.Canceled},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.r.Status() != tc.status {
				t.Errorf("Status() = %q, want %q", tc.r.Status(), tc.status)
			}
			if tc.r.OK() != tc.ok {
				t.Errorf("OK() = %v", tc.r.OK())
			}
			if !errors.Is(tc.r.Err(), tc.err) {
				t.Errorf("Err() = %v, want %v", tc.r.Err(), tc.err)
			}
		})
	}

	if r := NewError(1, 50, upsertErr, time.Second); r.Index() != 1 || r.Size() != 50 || r.Duration() != time.Second {
		t.Errorf("unexpected index/size/duration: %d/%d/%s", r.Index(), r.Size(), r.Duration())
	}
	if NewCanceled(0, 1, context.Canceled).Duration() != 0 {
		t.Error("canceled batch must not carry a duration")
	}
}

func TestTally(t *testing.T) {
	uploaded, failed := Tally([]Result{
		NewOK(0, 4, 0),
		NewError(1, 4, errors.New("boom"), 0),
		NewOK(2, 2, 0),
		NewCanceled(3, 4, context.Canceled),
	})
	if uploaded != 6 || failed != 2 {
		t.Errorf("Tally = %d/%d, want 6/2", uploaded, failed)
	}

	if u, f := Tally(nil); u != 0 || f != 0 {
		t.Errorf("empty Tally = %d/%d", u, f)
	}
}
