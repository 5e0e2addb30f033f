package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
)

var (
	bucketRetryHelpers     = []byte("retry_helpers")
	bucketExecCountHelpers = []byte("exec_count_helpers")
	bucketStageProgress    = []byte("stage_progress")
)

const currentStageIdxKey = "current_stage_idx"

// BoltStore is the bbolt-backed Store: one bucket per metadata kind,
// entries JSON-encoded and keyed by stage name (retry helpers), stage type
// (execution-count helpers) or a fixed key (current stage index).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a restart-metadata database
// under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "fuzzmux-stage.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Unknown, "open stage store", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{bucketRetryHelpers, bucketExecCountHelpers, bucketStageProgress}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, evmerr.Wrap(evmerr.Unknown, "init stage store buckets", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) LoadRetryHelper(_ context.Context, stageName string) (*RetryRestartHelper, error) {
	var h *RetryRestartHelper
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRetryHelpers).Get([]byte(stageName))
		if data == nil {
			return nil
		}
		h = &RetryRestartHelper{}
		return json.Unmarshal(data, h)
	})
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "load retry helper", err)
	}
	return h, nil
}

func (s *BoltStore) SaveRetryHelper(_ context.Context, stageName string, h *RetryRestartHelper) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(h)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRetryHelpers).Put([]byte(stageName), data)
	})
}

func (s *BoltStore) DeleteRetryHelper(_ context.Context, stageName string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRetryHelpers).Delete([]byte(stageName))
	})
}

func (s *BoltStore) LoadExecCountHelper(_ context.Context, stageType string) (*ExecutionCountRestartHelperMetadata, error) {
	var m *ExecutionCountRestartHelperMetadata
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketExecCountHelpers).Get([]byte(stageType))
		if data == nil {
			return nil
		}
		m = &ExecutionCountRestartHelperMetadata{}
		return json.Unmarshal(data, m)
	})
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "load exec count helper", err)
	}
	return m, nil
}

func (s *BoltStore) SaveExecCountHelper(_ context.Context, stageType string, m *ExecutionCountRestartHelperMetadata) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketExecCountHelpers).Put([]byte(stageType), data)
	})
}

func (s *BoltStore) DeleteExecCountHelper(_ context.Context, stageType string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExecCountHelpers).Delete([]byte(stageType))
	})
}

func (s *BoltStore) LoadCurrentStageIdx(_ context.Context) (*int, error) {
	var idx *int
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketStageProgress).Get([]byte(currentStageIdxKey))
		if data == nil {
			return nil
		}
		var v int
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		idx = &v
		return nil
	})
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Serialize, "load current stage index", err)
	}
	return idx, nil
}

func (s *BoltStore) SaveCurrentStageIdx(_ context.Context, idx *int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStageProgress)
		if idx == nil {
			return b.Delete([]byte(currentStageIdxKey))
		}
		data, err := json.Marshal(*idx)
		if err != nil {
			return err
		}
		return b.Put([]byte(currentStageIdxKey), data)
	})
}
