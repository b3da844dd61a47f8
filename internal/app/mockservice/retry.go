package mockservice

import (
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
)

var errNotYet = errors.New("condition not met")

// retryFor calls do until it returns true or duration has elapsed, waiting
// delay between attempts. do receives the time left. It reports success.
func retryFor(do func(timeLeft time.Duration) bool, delay, duration time.Duration) bool {
	start := time.Now()
	err := retry.Do(
		func() error {
			if do(duration - time.Since(start)) {
				return nil
			}
			return errNotYet
		},
		retry.Attempts(0),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return err == errNotYet && time.Since(start) <= duration
		}),
	)
	return err == nil
}
