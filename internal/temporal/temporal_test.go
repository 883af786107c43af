package temporal

import (
	"context"
	"fmt"
	"testing"

	commonpb "go.temporal.io/api/common/v1"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	workflowpb "go.temporal.io/api/workflow/v1"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/testsuite"
	"google.golang.org/grpc"

	"github.com/efebarandurmaz/recall/internal/jobs"
)

type fakeDescriber struct {
	status enumspb.WorkflowExecutionStatus
	err    error
	req    *workflowservice.DescribeWorkflowExecutionRequest
}

func (f *fakeDescriber) DescribeWorkflowExecution(ctx context.Context, in *workflowservice.DescribeWorkflowExecutionRequest, opts ...grpc.CallOption) (*workflowservice.DescribeWorkflowExecutionResponse, error) {
	f.req = in
	if f.err != nil {
		return nil, f.err
	}
	return &workflowservice.DescribeWorkflowExecutionResponse{
		WorkflowExecutionInfo: &workflowpb.WorkflowExecutionInfo{
			Execution: &commonpb.WorkflowExecution{WorkflowId: in.GetExecution().GetWorkflowId()},
			Status:    f.status,
		},
	}, nil
}

func TestJobPhase_StatusMapping(t *testing.T) {
	tests := []struct {
		status enumspb.WorkflowExecutionStatus
		want   jobs.Phase
	}{
		{enumspb.WORKFLOW_EXECUTION_STATUS_RUNNING, jobs.Running},
		{enumspb.WORKFLOW_EXECUTION_STATUS_CONTINUED_AS_NEW, jobs.Running},
		{enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED, jobs.Succeeded},
		{enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, jobs.Failed},
		{enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, jobs.Failed},
		{enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED, jobs.Failed},
		{enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT, jobs.Failed},
		{enumspb.WORKFLOW_EXECUTION_STATUS_UNSPECIFIED, jobs.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			f := &fakeDescriber{status: tt.status}
			got, err := (&StatusSource{svc: f}).JobPhase(context.Background(), "indexer", "prod")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
			if f.req.GetNamespace() != "prod" || f.req.GetExecution().GetWorkflowId() != "indexer" {
				t.Fatalf("unexpected request %v", f.req)
			}
		})
	}
}

func TestJobPhase_NotFoundIsPending(t *testing.T) {
	f := &fakeDescriber{err: serviceerror.NewNotFound("workflow not found")}
	got, err := (&StatusSource{svc: f}).JobPhase(context.Background(), "indexer", "prod")
	if err != nil || got != jobs.Pending {
		t.Fatalf("expected Pending, got %s %v", got, err)
	}
}

func TestJobPhase_OtherErrors(t *testing.T) {
	f := &fakeDescriber{err: serviceerror.NewUnavailable("frontend down")}
	got, err := (&StatusSource{svc: f}).JobPhase(context.Background(), "indexer", "prod")
	if err == nil || got != jobs.Unknown {
		t.Fatalf("expected Unknown with error, got %s %v", got, err)
	}
}

type fakeReloader struct {
	results map[string]ReloadResult
	errs    map[string]error
}

func (f *fakeReloader) Reload(ctx context.Context, baseURL string) (ReloadResult, error) {
	if err := f.errs[baseURL]; err != nil {
		return ReloadResult{}, err
	}
	return f.results[baseURL], nil
}

func TestReloadIndexWorkflow(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	acts := &Activities{Reloader: &fakeReloader{results: map[string]ReloadResult{
		"http://a": {SnapshotID: "s1", Records: 10},
		"http://b": {SnapshotID: "s2", Records: 10},
	}}}
	env.RegisterActivity(acts)
	env.ExecuteWorkflow(ReloadIndexWorkflow, ReloadInput{ServiceURLs: []string{"http://a", "http://b"}})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var out ReloadOutput
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatal(err)
	}
	if out.Snapshots["http://b"].SnapshotID != "s2" || len(out.Snapshots) != 2 {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestReloadIndexWorkflow_RejectedIsNotRetried(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	calls := 0
	acts := &Activities{Reloader: reloaderFunc(func(ctx context.Context, url string) (ReloadResult, error) {
		calls++
		return ReloadResult{}, fmt.Errorf("dimension mismatch: %w", ErrReloadRejected)
	})}
	env.RegisterActivity(acts)
	env.ExecuteWorkflow(ReloadIndexWorkflow, ReloadInput{ServiceURLs: []string{"http://a"}})

	if err := env.GetWorkflowError(); err == nil {
		t.Fatal("expected workflow error")
	}
	if calls != 1 {
		t.Fatalf("rejected reload must not be retried, got %d calls", calls)
	}
}

type reloaderFunc func(ctx context.Context, url string) (ReloadResult, error)

func (f reloaderFunc) Reload(ctx context.Context, url string) (ReloadResult, error) { return f(ctx, url) }

