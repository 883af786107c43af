// Package temporal reports external job status from Temporal workflow
// executions. The job name is the workflow ID.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"google.golang.org/grpc"

	"github.com/efebarandurmaz/recall/internal/jobs"
)

// describer is the subset of the workflow service used here.
type describer interface {
	DescribeWorkflowExecution(ctx context.Context, in *workflowservice.DescribeWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.DescribeWorkflowExecutionResponse, error)
}

// StatusSource implements jobs.StatusSource against a Temporal frontend.
type StatusSource struct {
	svc describer
}

var _ jobs.StatusSource = (*StatusSource)(nil)

// NewStatusSource uses the workflow service of an existing client.
func NewStatusSource(c client.Client) *StatusSource {
	return &StatusSource{svc: c.WorkflowService()}
}

// Dial connects to a Temporal frontend.
func Dial(hostPort, namespace string, logger *slog.Logger) (client.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    tlog.NewStructuredLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dialing temporal at %s: %w", hostPort, err)
	}
	return c, nil
}

// JobPhase describes the latest run of the workflow named name. A workflow
// that does not exist yet is Pending.
func (s *StatusSource) JobPhase(ctx context.Context, name, namespace string) (jobs.Phase, error) {
	resp, err := s.svc.DescribeWorkflowExecution(ctx, &workflowservice.DescribeWorkflowExecutionRequest{
		Namespace: namespace,
		Execution: &commonpb.WorkflowExecution{WorkflowId: name},
	})
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return jobs.Pending, nil
		}
		return jobs.Unknown, fmt.Errorf("describe workflow %s/%s: %w", namespace, name, err)
	}
	return phaseOf(resp.GetWorkflowExecutionInfo().GetStatus()), nil
}

func phaseOf(status enumspb.WorkflowExecutionStatus) jobs.Phase {
	switch status {
	case enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING,
		enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW:
		return jobs.Running
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return jobs.Succeeded
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED,
		enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED,
		enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return jobs.Failed
	default:
		return jobs.Unknown
	}
}
