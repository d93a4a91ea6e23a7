package graphstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cuemby/bee/pkg/errs"
	"github.com/cuemby/bee/pkg/log"
	"github.com/cuemby/bee/pkg/metrics"
	"github.com/cuemby/bee/pkg/types"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketWorkflows = []byte("workflows")
	bucketTasks     = []byte("tasks")
	bucketEdges     = []byte("edges")
)

// Command is the {Op, Data} shape of a Graph Store mutation. Apply does
// not take a Command: it takes the op name and a closure and runs it
// under a single mutex — the in-process replacement for the teacher's Raft-log
// Command/Apply shape (pkg/manager/fsm.go), adopted here without a
// consensus protocol since a single orchestrator instance owns a
// workflow (spec §1 Non-goals).
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// BoltStore is a bbolt-backed Store. Workflow and task records are
// persisted as JSON documents, one per bucket entry, matching the
// teacher's pkg/storage/boltdb.go bucket-per-entity convention. The
// dependency graph's adjacency lists are cached in memory and rebuilt
// from the edges bucket at open time (§9: "rebuilt from the edges
// bucket at open time and kept in sync on every mutation").
type BoltStore struct {
	mu  sync.Mutex
	db  *bolt.DB
	adj map[string]map[string]*adjacency // wfID -> taskID -> adjacency

	logger zerolog.Logger
}

// NewBoltStore opens (creating if absent) a bbolt database under dataDir
// and rebuilds the in-memory adjacency cache from its edges bucket.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "bee.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open graph store db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketWorkflows, bucketTasks, bucketEdges} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db, adj: make(map[string]map[string]*adjacency), logger: log.WithComponent("graphstore")}
	if err := s.loadAdjacency(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) loadAdjacency() error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEdges)
		return b.ForEach(func(k, v []byte) error {
			wfID, taskID := splitKey(k)
			var a adjacency
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			s.setAdj(wfID, taskID, &a)
			return nil
		})
	})
}

func key(wfID, id string) []byte { return []byte(wfID + "\x00" + id) }

func splitKey(k []byte) (wfID, id string) {
	s := string(k)
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

func (s *BoltStore) getAdj(wfID, taskID string) *adjacency {
	tm, ok := s.adj[wfID]
	if !ok {
		return nil
	}
	return tm[taskID]
}

func (s *BoltStore) setAdj(wfID, taskID string, a *adjacency) {
	tm, ok := s.adj[wfID]
	if !ok {
		tm = make(map[string]*adjacency)
		s.adj[wfID] = tm
	}
	tm[taskID] = a
}

func (s *BoltStore) persistAdj(tx *bolt.Tx, wfID, taskID string, a *adjacency) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketEdges).Put(key(wfID, taskID), data)
}

// Apply runs fn under the store's single mutex and records GS apply
// metrics: every mutation is one transaction, in-process rather than
// replicated via a consensus log.
func (s *BoltStore) Apply(op string, fn func() (interface{}, error)) (interface{}, error) {
	timer := metrics.NewTimer()
	s.mu.Lock()
	defer s.mu.Unlock()
	result, err := fn()
	timer.ObserveDuration(metrics.GSApplyDuration)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.GSTransactionsTotal.WithLabelValues(op, outcome).Inc()
	return result, err
}

func (s *BoltStore) putWorkflow(tx *bolt.Tx, wf *types.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketWorkflows).Put([]byte(wf.ID), data)
}

func (s *BoltStore) getWorkflowTx(tx *bolt.Tx, wfID string) (*types.Workflow, error) {
	data := tx.Bucket(bucketWorkflows).Get([]byte(wfID))
	if data == nil {
		return nil, fmt.Errorf("workflow %s: %w", wfID, errs.ErrNotFound)
	}
	var wf types.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (s *BoltStore) putTask(tx *bolt.Tx, wfID string, t *types.Task) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketTasks).Put(key(wfID, t.ID), data)
}

func (s *BoltStore) getTaskTx(tx *bolt.Tx, wfID, taskID string) (*types.Task, error) {
	data := tx.Bucket(bucketTasks).Get(key(wfID, taskID))
	if data == nil {
		return nil, fmt.Errorf("task %s/%s: %w", wfID, taskID, errs.ErrNotFound)
	}
	var t types.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *BoltStore) listTasksTx(tx *bolt.Tx, wfID string) ([]*types.Task, error) {
	var out []*types.Task
	prefix := []byte(wfID + "\x00")
	c := tx.Bucket(bucketTasks).Cursor()
	for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
		var t types.Task
		if err := json.Unmarshal(v, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, nil
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (s *BoltStore) deleteTaskTx(tx *bolt.Tx, wfID, taskID string) error {
	return tx.Bucket(bucketTasks).Delete(key(wfID, taskID))
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
