package optimistic

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errRemote = errors.New("remote failed")

func TestMutateAppliesBeforeRemoteReturns(t *testing.T) {
	c := NewCell(false)
	err := c.Mutate(context.Background(), true, func(context.Context) (bool, bool, error) {
		if !c.Get() || c.State() != Pending {
			t.Fatalf("tentative value not visible during remote call")
		}
		return false, false, nil
	}, nil)
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if !c.Get() || c.State() != Confirmed {
		t.Fatalf("want confirmed true, got %v/%v", c.Get(), c.State())
	}
}

func TestMutateRollsBackOnFailure(t *testing.T) {
	c := NewCell(3)
	err := c.Mutate(context.Background(), 4, func(context.Context) (int, bool, error) {
		return 0, false, errRemote
	}, nil)
	if !errors.Is(err, errRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if c.Get() != 3 || c.State() != Confirmed {
		t.Fatalf("want rollback to 3, got %v/%v", c.Get(), c.State())
	}
}

func TestMutateReconcilesWithCanonicalValue(t *testing.T) {
	c := NewCell("a")
	if err := c.Mutate(context.Background(), "b", func(context.Context) (string, bool, error) {
		return "server", true, nil
	}, nil); err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if c.Get() != "server" {
		t.Fatalf("value = %q, want server", c.Get())
	}
}

func TestMutateUsesRecoveryOnFailure(t *testing.T) {
	c := NewCell(false)
	err := c.Mutate(context.Background(), true,
		func(context.Context) (bool, bool, error) { return false, false, errRemote },
		func(context.Context) (bool, error) { return true, nil },
	)
	if !errors.Is(err, errRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if !c.Get() {
		t.Fatalf("recovered value should win over rollback")
	}
}

func TestMutateFallsBackToRollbackWhenRecoveryFails(t *testing.T) {
	c := NewCell(1)
	_ = c.Mutate(context.Background(), 2,
		func(context.Context) (int, bool, error) { return 0, false, errRemote },
		func(context.Context) (int, error) { return 0, errors.New("refetch failed") },
	)
	if c.Get() != 1 {
		t.Fatalf("value = %d, want 1", c.Get())
	}
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	c := NewCell(0)
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- c.Mutate(context.Background(), 1, func(context.Context) (int, bool, error) {
			close(started)
			<-release
			return 0, false, errRemote
		}, nil)
	}()
	<-started

	if err := c.Mutate(context.Background(), 2, func(context.Context) (int, bool, error) {
		return 0, false, nil
	}, nil); err != nil {
		t.Fatalf("second mutate: %v", err)
	}
	close(release)
	select {
	case err := <-done:
		if !errors.Is(err, errRemote) {
			t.Fatalf("first mutate error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("first mutate did not finish")
	}
	if c.Get() != 2 || c.State() != Confirmed {
		t.Fatalf("stale rollback overwrote newer value: %v/%v", c.Get(), c.State())
	}
}

// blockedMutate starts a mutation whose remote call waits for release and
// then returns err.
func blockedMutate(t *testing.T, c *Cell[string], next string, err error) (release func(), done <-chan error) {
	t.Helper()
	started := make(chan struct{})
	gate := make(chan struct{})
	out := make(chan error, 1)
	go func() {
		out <- c.Mutate(context.Background(), next, func(context.Context) (string, bool, error) {
			close(started)
			<-gate
			return "", false, err
		}, nil)
	}()
	<-started
	return func() { close(gate) }, out
}

func waitMutate(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("mutate did not finish")
		return nil
	}
}

func TestOverlappingFailuresRestoreConfirmedValue(t *testing.T) {
	c := NewCell("")
	release, done := blockedMutate(t, c, "READ", errRemote)

	err := c.Mutate(context.Background(), "READING", func(context.Context) (string, bool, error) {
		return "", false, errRemote
	}, nil)
	if !errors.Is(err, errRemote) {
		t.Fatalf("second mutate error = %v", err)
	}
	if c.Get() != "" || c.State() != Pending {
		t.Fatalf("after newer failure: %q/%v, want \"\"/pending", c.Get(), c.State())
	}

	release()
	if err := waitMutate(t, done); !errors.Is(err, errRemote) {
		t.Fatalf("first mutate error = %v", err)
	}
	if c.Get() != "" || c.State() != Confirmed {
		t.Fatalf("final %q/%v, want \"\"/confirmed", c.Get(), c.State())
	}
}

func TestOlderSuccessWinsAfterNewerFailure(t *testing.T) {
	c := NewCell("")
	release, done := blockedMutate(t, c, "READ", nil)

	_ = c.Mutate(context.Background(), "READING", func(context.Context) (string, bool, error) {
		return "", false, errRemote
	}, nil)

	release()
	if err := waitMutate(t, done); err != nil {
		t.Fatalf("first mutate: %v", err)
	}
	if c.Get() != "READ" || c.State() != Confirmed {
		t.Fatalf("final %q/%v, want READ/confirmed", c.Get(), c.State())
	}
}

func TestSetMakesInFlightMutationStale(t *testing.T) {
	c := NewCell("")
	release, done := blockedMutate(t, c, "READ", nil)
	c.Set("WANT_TO_READ")
	if c.State() != Confirmed {
		t.Fatalf("state after Set = %v", c.State())
	}
	release()
	_ = waitMutate(t, done)
	if c.Get() != "WANT_TO_READ" {
		t.Fatalf("stale success overwrote Set: %q", c.Get())
	}
}

func TestSetIfIdleSkipsPendingCell(t *testing.T) {
	c := NewCell(false)
	_ = c.Mutate(context.Background(), true, func(context.Context) (bool, bool, error) {
		if c.SetIfIdle(false) {
			t.Fatalf("SetIfIdle should refuse while pending")
		}
		return false, false, nil
	}, nil)
	if !c.SetIfIdle(false) || c.Get() {
		t.Fatalf("SetIfIdle should apply once settled")
	}
}

func TestOnChangeSeesTentativeThenSettled(t *testing.T) {
	c := NewCell(false)
	var states []State
	c.OnChange(func(_ bool, st State) { states = append(states, st) })
	_ = c.Mutate(context.Background(), true, func(context.Context) (bool, bool, error) {
		return false, false, errRemote
	}, nil)
	if len(states) != 2 || states[0] != Pending || states[1] != Confirmed {
		t.Fatalf("states = %v", states)
	}
}
