package stage

import (
	"context"
)

// Store persists stage restart metadata across process respawns. The
// bbolt-backed implementation in boltstore.go mirrors the
// storage layer's bucket-per-kind, JSON-per-key layout.
type Store interface {
	LoadRetryHelper(ctx context.Context, stageName string) (*RetryRestartHelper, error)
	SaveRetryHelper(ctx context.Context, stageName string, h *RetryRestartHelper) error
	DeleteRetryHelper(ctx context.Context, stageName string) error

	LoadExecCountHelper(ctx context.Context, stageType string) (*ExecutionCountRestartHelperMetadata, error)
	SaveExecCountHelper(ctx context.Context, stageType string, m *ExecutionCountRestartHelperMetadata) error
	DeleteExecCountHelper(ctx context.Context, stageType string) error

	LoadCurrentStageIdx(ctx context.Context) (*int, error)
	SaveCurrentStageIdx(ctx context.Context, idx *int) error

	Close() error
}
