package tasks

import "context"

// Synchronous runs every task inline on the caller's goroutine. Tests use it
// so background work completes before assertions run.
type Synchronous struct {
	// Errs collects the terminal error of each failed task, in order.
	Errs []error
}

func (s *Synchronous) Enqueue(task Task) error {
	for attempt := 0; ; attempt++ {
		err := task.Run(context.Background())
		if err == nil {
			return nil
		}
		if IsPermanent(err) || attempt >= task.MaxRetries {
			s.Errs = append(s.Errs, err)
			return nil
		}
	}
}

var _ Executor = (*Synchronous)(nil)
