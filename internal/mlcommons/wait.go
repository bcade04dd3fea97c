package mlcommons

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// WaitConfig bounds the polling of async ML operations. Registration and
// deployment can take minutes on cold clusters, so the delay grows
// exponentially up to MaxDelay rather than hammering a fixed interval, and
// Attempts caps the total wait instead of spinning forever.
type WaitConfig struct {
	// Attempts is the maximum number of polls.
	Attempts uint
	// Delay is the initial backoff delay.
	Delay time.Duration
	// MaxDelay caps the per-poll backoff.
	MaxDelay time.Duration
}

// DefaultWaitConfig covers model registration on a cold single-node cluster.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		Attempts: 60,
		Delay:    2 * time.Second,
		MaxDelay: 30 * time.Second,
	}
}

// options translates the config into retry-go options.
func (wc WaitConfig) options(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(wc.Attempts),
		retry.Delay(wc.Delay),
		retry.MaxDelay(wc.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
}

// WaitForTask polls an async task until it completes, returning the model id
// it produced. A FAILED task or a transport error stops polling immediately.
func (c *Client) WaitForTask(ctx context.Context, taskID string, wc WaitConfig) (string, error) {
	var modelID string
	err := retry.Do(func() error {
		task, err := c.GetTask(ctx, taskID)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		switch task.State {
		case TaskStateCompleted:
			if task.ModelID == "" {
				return retry.Unrecoverable(fmt.Errorf("mlcommons: task %s completed without a model id", taskID))
			}
			modelID = task.ModelID
			return nil
		case TaskStateFailed:
			return retry.Unrecoverable(fmt.Errorf("mlcommons: task %s failed: %s", taskID, task.Error))
		default:
			return fmt.Errorf("mlcommons: task %s still %s", taskID, task.State)
		}
	}, wc.options(ctx)...)
	if err != nil {
		return "", err
	}
	return modelID, nil
}

// WaitForModelDeployed polls model state until it reaches DEPLOYED.
func (c *Client) WaitForModelDeployed(ctx context.Context, modelID string, wc WaitConfig) error {
	return retry.Do(func() error {
		m, err := c.GetModel(ctx, modelID)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		switch m.ModelState {
		case ModelStateDeployed:
			return nil
		case ModelStateFailed:
			return retry.Unrecoverable(fmt.Errorf("mlcommons: model %s deployment failed", modelID))
		default:
			return fmt.Errorf("mlcommons: model %s still %s", modelID, m.ModelState)
		}
	}, wc.options(ctx)...)
}
