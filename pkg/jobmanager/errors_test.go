package jobmanager

import (
	"errors"
	"testing"
)

func TestInvalidStateError(t *testing.T) {
	t.Parallel()

	err := NewInvalidStateError(StatusCanceled, StatusRunning)

	want := "cannot go from Canceled to Running"
	if got := err.Error(); got != want {
		t.Errorf("expected error message: got '%s', want '%s'", got, want)
	}
}

func TestFrontTransitionRefusesCorruptRecord(t *testing.T) {
	m := New[string, string, string](Config{})
	defer m.Shutdown()

	m.reg.insertIfAbsent("a", &jobContext{status: Status(99)})

	ok, err := m.frontTransition("a", runningContext(func() {}), false)
	if ok {
		t.Error("expected front transition to refuse a corrupt record")
	}

	var invalid InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError: got '%v'", err)
	}
}
