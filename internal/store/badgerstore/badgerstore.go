// Package badgerstore implements store.Backend on an embedded BadgerDB
// key-value store.
//
// Keys:
//
//	fn/<id>                  JSON function record
//	edge/<caller>\x00<callee> insertion sequence
//	res/<id>                 enrichment result text
package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/phobologic/crux/internal/model"
	"github.com/phobologic/crux/internal/store"
)

var (
	prefixFunction = []byte("fn/")
	prefixEdge     = []byte("edge/")
	prefixResult   = []byte("res/")
	keySequence    = []byte("meta/seq")
)

// Config controls how the database is opened.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	InMemory bool

	// SyncWrites fsyncs every commit. On by default so PutResult is durable
	// when it returns.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. Nil silences it.
	Logger *slog.Logger
}

// DefaultConfig returns a persistent configuration for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// Store is a store.Backend backed by BadgerDB.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ store.Backend = (*Store)(nil)

type functionValue struct {
	Seq    uint64               `json:"seq"`
	Record model.FunctionRecord `json:"record"`
}

// Open opens the database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	seq, err := db.GetSequence(keySequence, 1024)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("release sequence: %w", err)
	}
	return s.db.Close()
}

// Functions returns every function record in first-insertion order.
func (s *Store) Functions(ctx context.Context) ([]model.FunctionRecord, error) {
	var values []functionValue
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(ctx, txn, prefixFunction, func(_, val []byte) error {
			var v functionValue
			if err := json.Unmarshal(val, &v); err != nil {
				return err
			}
			values = append(values, v)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan functions: %w", err)
	}

	sort.Slice(values, func(i, j int) bool { return values[i].Seq < values[j].Seq })
	out := make([]model.FunctionRecord, len(values))
	for i, v := range values {
		out[i] = v.Record
	}
	return out, nil
}

// Edges returns every recorded call pair in first-insertion order.
func (s *Store) Edges(ctx context.Context) ([]model.CallEdge, error) {
	type seqEdge struct {
		seq  uint64
		edge model.CallEdge
	}
	var edges []seqEdge
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(ctx, txn, prefixEdge, func(key, val []byte) error {
			caller, callee, ok := splitEdgeKey(key)
			if !ok {
				return fmt.Errorf("malformed edge key %q", key)
			}
			edges = append(edges, seqEdge{seq: decodeSeq(val), edge: model.CallEdge{Caller: caller, Callee: callee}})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan edges: %w", err)
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].seq < edges[j].seq })
	out := make([]model.CallEdge, len(edges))
	for i, e := range edges {
		out[i] = e.edge
	}
	return out, nil
}

func (s *Store) Result(ctx context.Context, id string) (string, bool, error) {
	var (
		text  string
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(prefixResult, id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		text, found = string(val), true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("get result %s: %w", id, err)
	}
	return text, found, nil
}

func (s *Store) PutResult(ctx context.Context, id, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(prefixResult, id), []byte(text))
	})
	if err != nil {
		return fmt.Errorf("put result %s: %w", id, err)
	}
	return nil
}

// UpsertFunctions writes the records in batches. A record that already
// exists keeps its original position.
func (s *Store) UpsertFunctions(ctx context.Context, functions []model.FunctionRecord) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	batchSeq := make(map[string]uint64)
	for _, f := range functions {
		if err := ctx.Err(); err != nil {
			return err
		}
		k := key(prefixFunction, f.ID)
		seq, err := s.seqFor(k, f.ID, batchSeq)
		if err != nil {
			return err
		}
		val, err := json.Marshal(functionValue{Seq: seq, Record: f})
		if err != nil {
			return fmt.Errorf("encode function %s: %w", f.ID, err)
		}
		if err := wb.Set(k, val); err != nil {
			return fmt.Errorf("write function %s: %w", f.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush functions: %w", err)
	}
	return nil
}

// UpsertEdges records call pairs; pairs already present are left alone.
func (s *Store) UpsertEdges(ctx context.Context, edges []model.CallEdge) error {
	for len(edges) > 0 {
		n := min(len(edges), edgeChunk)
		if err := s.upsertEdgeChunk(ctx, edges[:n]); err != nil {
			return err
		}
		edges = edges[n:]
	}
	return nil
}

// edgeChunk bounds the number of edges written per transaction.
const edgeChunk = 1000

func (s *Store) upsertEdgeChunk(ctx context.Context, edges []model.CallEdge) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, e := range edges {
			if err := ctx.Err(); err != nil {
				return err
			}
			k := edgeKey(e.Caller, e.Callee)
			_, err := txn.Get(k)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			seq, err := s.nextSeq()
			if err != nil {
				return err
			}
			if err := txn.Set(k, encodeSeq(seq)); err != nil {
				return fmt.Errorf("write edge %s→%s: %w", e.Caller, e.Callee, err)
			}
		}
		return nil
	})
}

func (s *Store) Function(ctx context.Context, id string) (model.FunctionRecord, error) {
	var v functionValue
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(prefixFunction, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return model.FunctionRecord{}, fmt.Errorf("%s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return model.FunctionRecord{}, fmt.Errorf("get function %s: %w", id, err)
	}
	return v.Record, nil
}

func (s *Store) Callees(ctx context.Context, id string) ([]string, error) {
	type seqCallee struct {
		seq    uint64
		callee string
	}
	var callees []seqCallee
	prefix := append(key(prefixEdge, id), 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(ctx, txn, prefix, func(k, val []byte) error {
			callees = append(callees, seqCallee{seq: decodeSeq(val), callee: string(k[len(prefix):])})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("scan callees %s: %w", id, err)
	}

	sort.SliceStable(callees, func(i, j int) bool { return callees[i].seq < callees[j].seq })
	out := make([]string, len(callees))
	for i, c := range callees {
		out[i] = c.callee
	}
	return out, nil
}

// seqFor returns the position of function id: the one already assigned in
// this batch, the stored one, or a fresh one.
func (s *Store) seqFor(k []byte, id string, batch map[string]uint64) (uint64, error) {
	if seq, ok := batch[id]; ok {
		return seq, nil
	}
	seq, err := s.existingSeq(k)
	if err != nil {
		return 0, err
	}
	if seq == 0 {
		if seq, err = s.nextSeq(); err != nil {
			return 0, err
		}
	}
	batch[id] = seq
	return seq, nil
}

// existingSeq returns the sequence of the stored record under k, or 0.
func (s *Store) existingSeq(k []byte) (uint64, error) {
	var seq uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var v functionValue
			if err := json.Unmarshal(val, &v); err != nil {
				return err
			}
			seq = v.Seq
			return nil
		})
	})
	return seq, err
}

// nextSeq returns a fresh, strictly positive sequence number.
func (s *Store) nextSeq() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return n + 1, nil
}

func scanPrefix(ctx context.Context, txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		k := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error { return fn(k, val) }); err != nil {
			return err
		}
	}
	return nil
}

func key(prefix []byte, id string) []byte {
	k := make([]byte, 0, len(prefix)+len(id))
	k = append(k, prefix...)
	return append(k, id...)
}

func edgeKey(caller, callee string) []byte {
	k := key(prefixEdge, caller)
	k = append(k, 0)
	return append(k, callee...)
}

func splitEdgeKey(k []byte) (caller, callee string, ok bool) {
	rest := bytes.TrimPrefix(k, prefixEdge)
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return "", "", false
	}
	return string(rest[:i]), string(rest[i+1:]), true
}

func encodeSeq(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

func decodeSeq(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// badgerLogger routes BadgerDB's log output through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
