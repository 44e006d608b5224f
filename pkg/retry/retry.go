package retry

import (
	"context"
)

// Action is a function to be performed in a retriable manner.
type Action func() error

// Retrier retries the provided action.
type Retrier interface {
	Retry(action Action) (uint, error)
}

type retrier struct {
	strategies []Strategy
}

// NewRetrier returns a Retrier that applies the provided strategies to every
// action. Without strategies, actions are retried until they succeed.
func NewRetrier(strategies ...Strategy) Retrier {
	return &retrier{
		strategies: strategies,
	}
}

func (r *retrier) Retry(action Action) (uint, error) {
	return Retry(action, r.strategies...)
}

// Retry runs action until it succeeds or one of the strategies declines
// another attempt. It returns the number of attempts made along with the last
// error.
//
// Strategies are consulted in order, so anything that sleeps should come last.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	var attempts uint
	for {
		attempts++

		err := action()
		if err == nil {
			return attempts, nil
		}

		if !shouldRetry(strategies, attempts, err) {
			return attempts, err
		}
	}
}

// RetryWithContext is Retry bound to a context. The context is checked before
// every attempt, and its error is returned once it is done.
func RetryWithContext(ctx context.Context, action func(context.Context) error, strategies ...Strategy) (uint, error) {
	var attempts uint
	for {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		attempts++

		err := action(ctx)
		if err == nil {
			return attempts, nil
		}

		if !shouldRetry(strategies, attempts, err) {
			return attempts, err
		}
	}
}

func shouldRetry(strategies []Strategy, attempts uint, err error) bool {
	for _, s := range strategies {
		if !s(attempts, err) {
			return false
		}
	}
	return true
}
