package affinity

import (
	"errors"
	"testing"
)

func TestDefault_StartsWithPassThrough(t *testing.T) {
	if _, ok := Installed().(PassThrough); !ok {
		t.Fatalf("expected PassThrough installed by default, got %T", Installed())
	}

	x := 0
	Run(func() error {
		x = 5
		return nil
	})
	if x != 5 {
		t.Errorf("expected Run to execute inline, got x=%d", x)
	}

	if f := RunAsync(func() error { return nil }); !f.IsDone() {
		t.Error("expected RunAsync to complete inline under PassThrough")
	}
}

func TestDefault_SetDispatcherNilKeepsPrevious(t *testing.T) {
	before := Installed()
	if err := SetDispatcher(nil); !errors.Is(err, ErrNilDispatcher) {
		t.Fatalf("expected ErrNilDispatcher, got %v", err)
	}
	if Installed() != before {
		t.Error("expected previously installed dispatcher to remain active")
	}
}
