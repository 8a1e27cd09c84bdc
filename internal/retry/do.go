package retry

import "context"

// Do calls fn until it succeeds, retryable rejects its error, or strategy is
// exhausted. The last error is returned.
func Do(ctx context.Context, strategy Strategy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	for retryCount := uint(0); ; retryCount++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		sleep, exceeded := strategy.Sleep(retryCount)
		if exceeded || (retryable != nil && !retryable(err)) {
			return err
		}
		if err := wait(ctx, sleep); err != nil {
			return err
		}
	}
}
