package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	wferrors "github.com/maxkimambo/xenopipe/internal/errors"
	"github.com/maxkimambo/xenopipe/internal/logger"
	"github.com/maxkimambo/xenopipe/internal/workflow"
)

// Policy configures the wait between attempts of a preemptible task
type Policy struct {
	InitialBackoff      time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff          time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Multiplier          float64       `yaml:"multiplier" json:"multiplier"`
	RandomizationFactor float64       `yaml:"randomization_factor" json:"randomization_factor"`
}

// DefaultPolicy returns a policy with sensible defaults
func DefaultPolicy() Policy {
	return Policy{
		InitialBackoff:      5 * time.Second,
		MaxBackoff:          2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.3,
	}
}

// NoWait is a policy that retries immediately
func NoWait() Policy {
	return Policy{Multiplier: 1}
}

// NotifyFunc is called before waiting for the next attempt
type NotifyFunc func(task string, attempt int, err error, wait time.Duration)

// Controller decides whether a failed attempt is retried. Only transient
// failures of preemptible tasks are retried, and a task runs at most
// MaxRetries+1 times.
type Controller struct {
	policy Policy
	notify NotifyFunc
}

// NewController creates a controller with the given backoff policy
func NewController(policy Policy) *Controller {
	return &Controller{policy: policy}
}

// OnRetry registers a callback invoked for every scheduled retry
func (c *Controller) OnRetry(fn NotifyFunc) {
	c.notify = fn
}

func (c *Controller) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialBackoff
	b.MaxInterval = c.policy.MaxBackoff
	b.Multiplier = c.policy.Multiplier
	b.RandomizationFactor = c.policy.RandomizationFactor
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run calls attempt until it succeeds, fails with a non-retryable error,
// or the retry budget is spent. attempt receives its 1-based number.
// The number of attempts made is always returned.
func (c *Controller) Run(ctx context.Context, spec workflow.TaskSpec, attempt func(ctx context.Context, n int) error) (int, error) {
	attempts := 0

	operation := func() error {
		attempts++
		err := attempt(ctx, attempts)
		if err == nil {
			return nil
		}
		if !spec.Preemptible || !wferrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	maxRetries := spec.MaxRetries
	if !spec.Preemptible || maxRetries < 0 {
		maxRetries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(maxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		logger.Op.WithFields(map[string]interface{}{
			"task":    spec.Name,
			"attempt": attempts,
			"wait":    wait.String(),
		}).Debugf("scheduling retry: %v", err)
		if c.notify != nil {
			c.notify(spec.Name, attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, b, notify)
	return attempts, err
}
