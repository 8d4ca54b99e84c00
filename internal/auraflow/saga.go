package auraflow

import (
	"context"
	"fmt"
	"log"
)

// sagaStep pairs an action with the compensation that undoes it. The strict
// create path is an insert followed by an external call with no transaction
// spanning the two, so failure handling is an explicit, ordered undo rather
// than inline cleanup.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// runSaga executes steps in order. On the first failure it runs the
// compensations of every completed step in reverse and returns the failure.
// A compensation that itself fails is logged and skipped: a crash or failed
// undo can leave an orphaned row behind, which is an accepted limitation of
// this two-phase scheme.
func runSaga(ctx context.Context, steps []sagaStep) error {
	completed := make([]sagaStep, 0, len(steps))
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			for i := len(completed) - 1; i >= 0; i-- {
				if completed[i].compensate == nil {
					continue
				}
				if undoErr := completed[i].compensate(ctx); undoErr != nil {
					log.Printf("saga: compensation for %s failed: %v", completed[i].name, undoErr)
				}
			}
			return fmt.Errorf("%s: %w", step.name, err)
		}
		completed = append(completed, step)
	}
	return nil
}
