package parallel

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
)

func TestFor(t *testing.T) {
	t.Parallel()
	out := make([]int, 100)
	if err := For(context.Background(), len(out), func(i int) error {
		out[i] = i * i
		return nil
	}); err != nil {
		t.Fatalf("%+v", err)
	}
	for i, v := range out {
		if v != i*i {
			t.Fatalf("%d, expected %d", v, i*i)
		}
	}
}

func TestForError(t *testing.T) {
	t.Parallel()
	var calls atomic.Int64
	errBad := errors.New("bad point")
	err := For(context.Background(), 1000, func(i int) error {
		calls.Add(1)
		if i == 3 {
			return errBad
		}
		return nil
	})
	if errors.Cause(err) != errBad {
		t.Fatalf("%+v, expected %v", err, errBad)
	}
}

func TestForCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := For(ctx, 10, func(int) error { return nil }); err == nil {
		t.Fatalf("expected cancellation")
	}
}
