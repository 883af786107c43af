package temporal

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
)

// ReloadResult is the snapshot a replica serves after a reload.
type ReloadResult struct {
	SnapshotID string
	Records    int
}

// Reloader triggers a reload on the service at baseURL.
type Reloader interface {
	Reload(ctx context.Context, baseURL string) (ReloadResult, error)
}

// ErrReloadRejected marks reload failures that retrying will not fix, such
// as a dimension mismatch in stored data.
var ErrReloadRejected = errors.New("reload rejected")

// Activities holds activity dependencies.
type Activities struct {
	Reloader Reloader
}

// ReloadIndex reloads one replica.
func (a *Activities) ReloadIndex(ctx context.Context, baseURL string) (ReloadResult, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("reloading index", "service", baseURL)

	res, err := a.Reloader.Reload(ctx, baseURL)
	if err != nil {
		if errors.Is(err, ErrReloadRejected) {
			return ReloadResult{}, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("reload %s rejected", baseURL), "ReloadRejected", err)
		}
		return ReloadResult{}, err
	}
	logger.Info("index reloaded", "service", baseURL, "snapshot_id", res.SnapshotID, "records", res.Records)
	return res, nil
}
