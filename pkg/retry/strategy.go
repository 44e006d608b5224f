package retry

import (
	"errors"
	"math/rand"
	"time"

	"github.com/code-payments/code-vault/pkg/retry/backoff"
)

// Strategy is a function that determines whether or not an action should be
// retried. Strategies are allowed to delay or cause other side effects.
type Strategy func(attempts uint, err error) bool

// Limit returns a strategy that caps the total number of attempts, including
// the first.
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, err error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors returns a strategy that only retries errors matching one of
// the provided errors.
func RetriableErrors(retriableErrors ...error) Strategy {
	return RetriableFunc(func(err error) bool {
		for _, e := range retriableErrors {
			if errors.Is(err, e) {
				return true
			}
		}
		return false
	})
}

// NonRetriableErrors returns a strategy that retries everything except errors
// matching one of the provided errors.
func NonRetriableErrors(nonRetriableErrors ...error) Strategy {
	return RetriableFunc(func(err error) bool {
		for _, e := range nonRetriableErrors {
			if errors.Is(err, e) {
				return false
			}
		}
		return true
	})
}

// RetriableFunc returns a strategy that retries whenever isRetriable reports
// true for the error.
func RetriableFunc(isRetriable func(error) bool) Strategy {
	return func(attempts uint, err error) bool {
		return isRetriable(err)
	}
}

// Backoff returns a strategy that sleeps before the next attempt, for the
// duration given by strategy capped at maxBackoff.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(attempts uint, err error) bool {
		sleeperImpl.Sleep(capDelay(strategy(attempts), maxBackoff))
		return true
	}
}

// BackoffWithJitter is Backoff with the capped delay randomly moved by up to
// jitter (a fraction of the delay) in either direction. For example, a capped
// delay of 100ms with a jitter of 0.1 sleeps somewhere in [90ms, 110ms).
func BackoffWithJitter(strategy backoff.Strategy, maxBackoff time.Duration, jitter float64) Strategy {
	return func(attempts uint, err error) bool {
		delay := capDelay(strategy(attempts), maxBackoff)
		offset := (rand.Float64()*2 - 1) * jitter
		sleeperImpl.Sleep(time.Duration(float64(delay) * (1 + offset)))
		return true
	}
}

func capDelay(delay, max time.Duration) time.Duration {
	if delay > max {
		return max
	}
	return delay
}

type sleeper interface {
	Sleep(time.Duration)
}

type realSleeper struct{}

func (r *realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

var sleeperImpl sleeper = &realSleeper{}
