package auraflow

import (
	"context"
	"errors"
	"testing"
)

func TestRunSagaCompensatesInReverse(t *testing.T) {
	var undone []string
	boom := errors.New("boom")
	steps := []sagaStep{
		{
			name: "first",
			run:  func(context.Context) error { return nil },
			compensate: func(context.Context) error {
				undone = append(undone, "first")
				return nil
			},
		},
		{
			name: "second",
			run:  func(context.Context) error { return nil },
			compensate: func(context.Context) error {
				undone = append(undone, "second")
				return nil
			},
		},
		{
			name: "third",
			run:  func(context.Context) error { return boom },
		},
	}

	err := runSaga(context.Background(), steps)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped step error, got %v", err)
	}
	if len(undone) != 2 || undone[0] != "second" || undone[1] != "first" {
		t.Fatalf("expected reverse-order compensation, got %v", undone)
	}
}

func TestRunSagaSkipsFailedCompensation(t *testing.T) {
	var undone []string
	steps := []sagaStep{
		{
			name: "first",
			run:  func(context.Context) error { return nil },
			compensate: func(context.Context) error {
				undone = append(undone, "first")
				return nil
			},
		},
		{
			name:       "second",
			run:        func(context.Context) error { return nil },
			compensate: func(context.Context) error { return errors.New("undo failed") },
		},
		{
			name: "third",
			run:  func(context.Context) error { return errors.New("boom") },
		},
	}

	if err := runSaga(context.Background(), steps); err == nil {
		t.Fatal("expected saga error")
	}
	if len(undone) != 1 || undone[0] != "first" {
		t.Fatalf("a failed undo must not stop earlier compensations, got %v", undone)
	}
}

func TestRunSagaSuccessRunsAllSteps(t *testing.T) {
	ran := 0
	steps := []sagaStep{
		{name: "a", run: func(context.Context) error { ran++; return nil }},
		{name: "b", run: func(context.Context) error { ran++; return nil }},
	}
	if err := runSaga(context.Background(), steps); err != nil {
		t.Fatalf("saga failed: %v", err)
	}
	if ran != 2 {
		t.Fatalf("expected both steps run, got %d", ran)
	}
}
