// Package persist stores graph snapshots and learned-model state in
// BadgerDB as versioned JSON envelopes.
//
// Every value is wrapped in an envelope carrying a schema version so future
// layouts can migrate on read; records with an unknown version are skipped
// with a warning rather than failing the load, mirroring the graph import's
// leniency. Bulk load/save happens only at process boundaries, never
// mid-request.
package persist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/inqgraph/inqgraph/pkg/adaptive"
	"github.com/inqgraph/inqgraph/pkg/graph"
	"github.com/inqgraph/inqgraph/pkg/logging"
)

// Key prefixes for storage organization. Single-byte prefixes for
// efficiency.
const (
	prefixSnapshot = byte(0x01) // snapshot:name -> JSONL graph export
	prefixPattern  = byte(0x02) // pattern:id -> envelope(LearningPattern)
	prefixRule     = byte(0x03) // rule:id -> envelope(adaptive.Rule)
	prefixProfile  = byte(0x04) // profile:userID -> envelope(UserProfile)
)

// envelopeVersion is the current serialization schema version.
const envelopeVersion = 1

// envelope wraps every stored value with its schema version and kind.
type envelope struct {
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Store is a Badger-backed model and snapshot store.
type Store struct {
	mu     sync.Mutex
	db     *badger.DB
	log    *zap.Logger
	closed bool
}

// Open opens (or creates) a store at dir. An empty dir opens an in-memory
// store, used by tests.
func Open(dir string, log *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", dir, err)
	}
	return &Store{db: db, log: logging.OrNop(log).Named("persist")}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func key(prefix byte, id string) []byte {
	return append([]byte{prefix}, []byte(id)...)
}

// SaveModels writes all three learned-model stores in one transaction
// batch. Implements adaptive.Persister.
func (s *Store) SaveModels(patterns []*adaptive.LearningPattern, rules []*adaptive.Rule, profiles []*adaptive.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("persist: store closed")
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, p := range patterns {
		if err := setEnveloped(wb, key(prefixPattern, p.ID), "pattern", p); err != nil {
			return err
		}
	}
	for _, r := range rules {
		if err := setEnveloped(wb, key(prefixRule, r.ID), "rule", r); err != nil {
			return err
		}
	}
	for _, p := range profiles {
		if err := setEnveloped(wb, key(prefixProfile, p.UserID), "profile", p); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("persist: save models: %w", err)
	}
	return nil
}

func setEnveloped(wb *badger.WriteBatch, k []byte, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("persist: marshal %s: %w", kind, err)
	}
	data, err := json.Marshal(envelope{Version: envelopeVersion, Kind: kind, Payload: payload})
	if err != nil {
		return fmt.Errorf("persist: marshal envelope: %w", err)
	}
	if err := wb.Set(k, data); err != nil {
		return fmt.Errorf("persist: set %s: %w", kind, err)
	}
	return nil
}

// LoadModels reads every stored pattern, rule and profile into the engine's
// stores. Records with an unknown version or malformed payload are skipped
// with a warning.
func (s *Store) LoadModels(e *adaptive.Engine) error {
	skipped := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.Key()
			if len(k) == 0 {
				continue
			}
			prefix := k[0]
			if prefix != prefixPattern && prefix != prefixRule && prefix != prefixProfile {
				continue
			}
			if err := item.Value(func(val []byte) error {
				if !s.decodeModel(e, prefix, val) {
					skipped++
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: load models: %w", err)
	}
	if skipped > 0 {
		s.log.Warn("load models: skipped records", zap.Int("skipped", skipped))
	}
	return nil
}

// decodeModel decodes one envelope into the right store; returns false when
// the record had to be skipped.
func (s *Store) decodeModel(e *adaptive.Engine, prefix byte, val []byte) bool {
	var env envelope
	if err := json.Unmarshal(val, &env); err != nil {
		s.log.Warn("skipping malformed envelope", zap.Error(err))
		return false
	}
	if env.Version != envelopeVersion {
		s.log.Warn("skipping record with unknown version",
			zap.Int("version", env.Version), zap.String("kind", env.Kind))
		return false
	}
	switch prefix {
	case prefixPattern:
		var p adaptive.LearningPattern
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.log.Warn("skipping malformed pattern", zap.Error(err))
			return false
		}
		e.Patterns().Put(&p)
	case prefixRule:
		var r adaptive.Rule
		if err := json.Unmarshal(env.Payload, &r); err != nil {
			s.log.Warn("skipping malformed rule", zap.Error(err))
			return false
		}
		e.AdaptiveRules().Put(&r)
	case prefixProfile:
		var p adaptive.UserProfile
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			s.log.Warn("skipping malformed profile", zap.Error(err))
			return false
		}
		e.Profiles().Put(&p)
	}
	return true
}

// SaveSnapshot stores a named JSONL export of the graph.
func (s *Store) SaveSnapshot(name string, g *graph.Store) error {
	var buf bytes.Buffer
	if err := g.Export(&buf); err != nil {
		return fmt.Errorf("persist: snapshot %s: %w", name, err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(prefixSnapshot, name), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("persist: snapshot %s: %w", name, err)
	}
	return nil
}

// LoadSnapshot imports a named snapshot into g, leniently. Returns the
// import stats; a missing snapshot is an error.
func (s *Store) LoadSnapshot(name string, g *graph.Store) (graph.ImportStats, error) {
	var stats graph.ImportStats
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(prefixSnapshot, name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var ierr error
			stats, ierr = g.Import(bytes.NewReader(val))
			return ierr
		})
	})
	if err != nil {
		return stats, fmt.Errorf("persist: load snapshot %s: %w", name, err)
	}
	return stats, nil
}

var _ adaptive.Persister = (*Store)(nil)
