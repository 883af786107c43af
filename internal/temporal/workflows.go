package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ReloadWorkflowName is the registered name of ReloadIndexWorkflow.
const ReloadWorkflowName = "recall.ReloadIndex"

// ReloadInput selects the service instances to reload.
type ReloadInput struct {
	// ServiceURLs are base URLs of recall replicas. Each is reloaded in turn.
	ServiceURLs []string
}

// ReloadOutput reports the snapshot each replica is serving afterwards.
type ReloadOutput struct {
	Snapshots map[string]ReloadResult
}

// ReloadIndexWorkflow asks every replica to rebuild its index from storage.
// Schedule it after the upstream indexing job writes new embeddings.
func ReloadIndexWorkflow(ctx workflow.Context, input ReloadInput) (*ReloadOutput, error) {
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	var a *Activities
	out := &ReloadOutput{Snapshots: make(map[string]ReloadResult, len(input.ServiceURLs))}
	for _, url := range input.ServiceURLs {
		var res ReloadResult
		if err := workflow.ExecuteActivity(ctx, a.ReloadIndex, url).Get(ctx, &res); err != nil {
			return nil, fmt.Errorf("reload %s: %w", url, err)
		}
		out.Snapshots[url] = res
	}
	return out, nil
}
