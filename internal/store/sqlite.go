package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	amerrors "github.com/Aman-CERP/amandocs/internal/errors"
)

const schemaDocuments = `CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	file_path  TEXT NOT NULL,
	file_hash  TEXT NOT NULL,
	preview    TEXT NOT NULL DEFAULT '',
	metadata   TEXT NOT NULL DEFAULT '{}',
	vector     BLOB NOT NULL,
	dims       INTEGER NOT NULL,
	created_at INTEGER NOT NULL
)`

const schemaPathIndex = `CREATE INDEX IF NOT EXISTS idx_documents_file_path ON documents(file_path)`

const schemaState = `CREATE TABLE IF NOT EXISTS store_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

const recordColumns = `seq, id, file_path, file_hash, preview, metadata, vector, created_at`

// SQLiteStore implements DocumentStore on a SQLite file with an in-memory
// vector index for search.
//
// The collection is created lazily by the first write. The vector index is
// loaded on first search and reloaded whenever another connection has
// committed (PRAGMA data_version), so several processes can share one data
// directory.
type SQLiteStore struct {
	db        *sql.DB
	path      string
	graphPath string
	config    Config
	lock      *writeLock

	mu           sync.RWMutex
	dims         int
	vectors      *vectorIndex
	graphVersion int64
	closed       bool
}

var _ DocumentStore = (*SQLiteStore)(nil)

// Open opens (or creates) the store in dataDir.
// An existing database that fails PRAGMA integrity_check is reported as
// ERR_204_STORE_CORRUPT and left untouched.
func Open(dataDir string, cfg Config) (*SQLiteStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.Metric != MetricCosine && cfg.Metric != MetricEuclidean {
		return nil, amerrors.ConfigError(fmt.Sprintf("unknown distance metric %q", cfg.Metric), nil)
	}
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = 20
	}

	path := filepath.Join(dataDir, DatabaseFile)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, amerrors.StoreIOError("open", path, err)
	}

	if err := validateIntegrity(path); err != nil {
		slog.Error("document_store_corrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, amerrors.New(amerrors.ErrCodeStoreCorrupt,
			fmt.Sprintf("document store is corrupted: %v", err), err).
			WithDetail("path", path).
			WithSuggestion("Run 'amandocs reset' and re-index")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, amerrors.StoreIOError("open", path, err)
	}

	// Single connection: SQLite has one writer, and PRAGMA data_version is
	// only meaningful per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, amerrors.StoreIOError("open", path, err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		path:      path,
		graphPath: filepath.Join(dataDir, GraphFile),
		config:    cfg,
		lock:      newWriteLock(dataDir),
		dims:      cfg.Dimensions,
	}

	ctx := context.Background()
	if exists, err := s.tableExists(ctx, "store_state"); err != nil {
		_ = db.Close()
		return nil, amerrors.StoreIOError("open", path, err)
	} else if exists {
		stored, err := readDimension(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, amerrors.StoreIOError("open", path, err)
		}
		if stored > 0 {
			s.dims = stored
		}
	}

	slog.Debug("document_store_opened",
		slog.String("path", path),
		slog.String("metric", cfg.Metric),
		slog.Int("dimensions", s.dims))

	return s, nil
}

// validateIntegrity checks an existing database before it is opened for writing.
func validateIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Dimensions returns the pinned vector width, or 0 if none is pinned yet.
func (s *SQLiteStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) tableExists(ctx context.Context, name string) (bool, error) {
	return tableExists(ctx, s.db, name)
}

func tableExists(ctx context.Context, q queryer, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func readDimension(ctx context.Context, q queryer) (int, error) {
	v, err := readState(ctx, q, StateKeyIndexDimension)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.Atoi(v)
}

func readGeneration(ctx context.Context, q queryer) (int64, error) {
	v, err := readState(ctx, q, StateKeyGeneration)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// readState returns "" for a missing key.
func readState(ctx context.Context, q queryer, key string) (string, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM store_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// bumpGeneration advances the write counter, if the collection exists.
func bumpGeneration(ctx context.Context, tx *sql.Tx) error {
	exists, err := tableExists(ctx, tx, "store_state")
	if err != nil || !exists {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO store_state (key, value) VALUES (?, '1')
		 ON CONFLICT(key) DO UPDATE SET value = CAST(value AS INTEGER) + 1`,
		StateKeyGeneration)
	return err
}

// ensureSchema creates the collection if missing. Runs inside the write
// transaction so concurrent first writes cannot race.
func ensureSchema(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range []string{schemaDocuments, schemaPathIndex, schemaState} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// write runs fn in one transaction under the in-process and cross-process
// write locks. DocErrors from fn pass through; anything else is a store I/O error.
func (s *SQLiteStore) write(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if s.closed {
		return amerrors.StoreIOError(op, s.path, errors.New("store is closed"))
	}
	if err := s.lock.acquire(ctx); err != nil {
		return amerrors.StoreIOError(op, s.path, err)
	}
	defer s.lock.release()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return amerrors.StoreIOError(op, s.path, err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if _, ok := amerrors.As(err); ok {
			return err
		}
		return amerrors.StoreIOError(op, s.path, err)
	}
	if err := bumpGeneration(ctx, tx); err != nil {
		_ = tx.Rollback()
		return amerrors.StoreIOError(op, s.path, err)
	}

	if err := tx.Commit(); err != nil {
		return amerrors.StoreIOError(op, s.path, err)
	}
	return nil
}

// pinDimension checks vec against the stored width, recording it on first write.
func (s *SQLiteStore) pinDimension(ctx context.Context, tx *sql.Tx, got int) (int, error) {
	stored, err := readDimension(ctx, tx)
	if err != nil {
		return 0, err
	}

	want := stored
	if want == 0 {
		want = s.config.Dimensions
	}
	if want > 0 && got != want {
		return 0, dimensionMismatch(want, got)
	}

	if stored == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO store_state (key, value) VALUES (?, ?)`,
			StateKeyIndexDimension, strconv.Itoa(got)); err != nil {
			return 0, err
		}
	}
	return got, nil
}

func dimensionMismatch(want, got int) *amerrors.DocError {
	return amerrors.New(amerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector has %d dimensions, index expects %d", got, want), nil).
		WithDetail("expected", strconv.Itoa(want)).
		WithDetail("got", strconv.Itoa(got)).
		WithSuggestion("The embedding model changed. Run 'amandocs reset' and re-index")
}

// prepare fills defaults and validates rec before insertion.
func prepare(rec *Record) error {
	if rec == nil {
		return amerrors.ValidationError("record is nil", nil)
	}
	if strings.TrimSpace(rec.FilePath) == "" {
		return amerrors.ValidationError("record has no file path", nil)
	}
	if len(rec.Vector) == 0 {
		return amerrors.ValidationError("record has no vector", nil).WithDetail("path", rec.FilePath)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *Record) (uint64, error) {
	meta := rec.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return 0, fmt.Errorf("failed to encode metadata: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, file_path, file_hash, preview, metadata, vector, dims, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.FilePath, rec.FileHash, rec.Preview, string(metaJSON),
		encodeVector(rec.Vector), len(rec.Vector), rec.CreatedAt.UnixNano())
	if err != nil {
		return 0, err
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

func seqsForPath(ctx context.Context, tx *sql.Tx, path string) ([]uint64, error) {
	rows, err := tx.QueryContext(ctx, `SELECT seq FROM documents WHERE file_path = ?`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seqs []uint64
	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		seqs = append(seqs, uint64(seq))
	}
	return seqs, rows.Err()
}

// Upsert appends rec, creating the collection if needed.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *Record) error {
	if err := prepare(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var seq uint64
	var dims int
	err := s.write(ctx, "upsert", func(tx *sql.Tx) error {
		if err := ensureSchema(ctx, tx); err != nil {
			return err
		}
		var err error
		if dims, err = s.pinDimension(ctx, tx, len(rec.Vector)); err != nil {
			return err
		}
		seq, err = insertRecord(ctx, tx, rec)
		return err
	})
	if err != nil {
		return err
	}

	s.dims = dims
	s.graphAdd(seq, rec.Vector)
	return nil
}

// ReplaceByPath deletes the records for rec.FilePath and inserts rec
// atomically. Readers see either the old records or the new one.
func (s *SQLiteStore) ReplaceByPath(ctx context.Context, rec *Record) (int, error) {
	if err := prepare(rec); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		seq     uint64
		dims    int
		removed []uint64
	)
	err := s.write(ctx, "replace", func(tx *sql.Tx) error {
		if err := ensureSchema(ctx, tx); err != nil {
			return err
		}
		var err error
		if dims, err = s.pinDimension(ctx, tx, len(rec.Vector)); err != nil {
			return err
		}
		if removed, err = seqsForPath(ctx, tx, rec.FilePath); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE file_path = ?`, rec.FilePath); err != nil {
			return err
		}
		seq, err = insertRecord(ctx, tx, rec)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.dims = dims
	if s.vectors != nil {
		s.vectors.remove(removed...)
	}
	s.graphAdd(seq, rec.Vector)
	return len(removed), nil
}

// graphAdd mirrors a committed insert into the graph, if one is built.
// Must be called with s.mu held.
func (s *SQLiteStore) graphAdd(seq uint64, vec []float32) {
	if s.vectors == nil {
		return
	}
	if s.vectors.dims != len(vec) {
		// Collection was reset with a new width elsewhere; rebuild on next search.
		s.vectors = nil
		return
	}
	s.vectors.add(seq, vec)
}

// DeleteByPath removes every record for path. No-op if nothing matches or
// the collection does not exist.
func (s *SQLiteStore) DeleteByPath(ctx context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []uint64
	err := s.write(ctx, "delete", func(tx *sql.Tx) error {
		exists, err := tableExists(ctx, tx, "documents")
		if err != nil || !exists {
			return err
		}
		if removed, err = seqsForPath(ctx, tx, path); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE file_path = ?`, path)
		return err
	})
	if err != nil {
		return 0, err
	}

	if s.vectors != nil {
		s.vectors.remove(removed...)
	}
	return len(removed), nil
}

// Reset drops the collection. The next write recreates it.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.write(ctx, "reset", func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DROP TABLE IF EXISTS documents`,
			`DROP TABLE IF EXISTS store_state`,
		} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.vectors = nil
	s.dims = s.config.Dimensions
	if err := os.Remove(s.graphPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("graph_file_remove_failed",
			slog.String("path", s.graphPath),
			slog.String("error", err.Error()))
	}
	slog.Info("document_store_reset", slog.String("path", s.path))
	return nil
}

// FindByPath returns the records stored for path, oldest first.
func (s *SQLiteStore) FindByPath(ctx context.Context, path string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.readable(ctx, "find")
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM documents WHERE file_path = ? ORDER BY seq`, path)
	if err != nil {
		return nil, amerrors.StoreIOError("find", s.path, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		_, rec, err := scanRecord(rows)
		if err != nil {
			return nil, amerrors.StoreIOError("find", s.path, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, amerrors.StoreIOError("find", s.path, err)
	}
	return out, nil
}

// readable reports whether the collection exists. Must be called with s.mu held.
func (s *SQLiteStore) readable(ctx context.Context, op string) (bool, error) {
	if s.closed {
		return false, amerrors.StoreIOError(op, s.path, errors.New("store is closed"))
	}
	exists, err := s.tableExists(ctx, "documents")
	if err != nil {
		return false, amerrors.StoreIOError(op, s.path, err)
	}
	return exists, nil
}

// Count returns the total number of records, 0 if uninitialized.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.readable(ctx, "count")
	if err != nil || !exists {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, amerrors.StoreIOError("count", s.path, err)
	}
	return n, nil
}

// List summarizes records per path. The hash and time shown are those of
// the newest record for the path.
func (s *SQLiteStore) List(ctx context.Context) ([]*FileSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exists, err := s.readable(ctx, "list")
	if err != nil || !exists {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT file_path, file_hash, COUNT(*), MAX(created_at)
		 FROM documents GROUP BY file_path ORDER BY file_path`)
	if err != nil {
		return nil, amerrors.StoreIOError("list", s.path, err)
	}
	defer rows.Close()

	var out []*FileSummary
	for rows.Next() {
		var fs FileSummary
		var created int64
		if err := rows.Scan(&fs.FilePath, &fs.FileHash, &fs.Records, &created); err != nil {
			return nil, amerrors.StoreIOError("list", s.path, err)
		}
		fs.IndexedAt = time.Unix(0, created).UTC()
		out = append(out, &fs)
	}
	if err := rows.Err(); err != nil {
		return nil, amerrors.StoreIOError("list", s.path, err)
	}
	return out, nil
}

// Search returns up to limit nearest records in ascending distance.
// An uninitialized or empty store yields no hits and no error.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, limit int) ([]*Hit, error) {
	if limit < 1 {
		return []*Hit{}, nil
	}

	if err := s.syncGraph(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectors == nil || s.vectors.len() == 0 {
		return []*Hit{}, nil
	}
	if len(query) != s.vectors.dims {
		return nil, dimensionMismatch(s.vectors.dims, len(query))
	}

	neighbors := s.vectors.search(query, limit)
	if len(neighbors) == 0 {
		return []*Hit{}, nil
	}

	records, err := s.recordsBySeq(ctx, neighbors)
	if err != nil {
		return nil, err
	}

	hits := make([]*Hit, 0, len(neighbors))
	for _, n := range neighbors {
		rec, ok := records[n.key]
		if !ok {
			continue
		}
		hits = append(hits, &Hit{
			Record:   rec,
			Distance: n.distance,
			Score:    distanceToScore(n.distance, s.config.Metric),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits, nil
}

func (s *SQLiteStore) recordsBySeq(ctx context.Context, neighbors []neighbor) (map[uint64]*Record, error) {
	placeholders := make([]string, len(neighbors))
	args := make([]any, len(neighbors))
	for i, n := range neighbors {
		placeholders[i] = "?"
		args[i] = int64(n.key)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM documents WHERE seq IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, amerrors.StoreIOError("search", s.path, err)
	}
	defer rows.Close()

	out := make(map[uint64]*Record, len(neighbors))
	for rows.Next() {
		seq, rec, err := scanRecord(rows)
		if err != nil {
			return nil, amerrors.StoreIOError("search", s.path, err)
		}
		out[seq] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, amerrors.StoreIOError("search", s.path, err)
	}
	return out, nil
}

// syncGraph builds the graph if it is missing, stale, or mostly orphans.
func (s *SQLiteStore) syncGraph(ctx context.Context) error {
	s.mu.RLock()
	fresh, err := s.graphFresh(ctx)
	s.mu.RUnlock()
	if err != nil || fresh {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if fresh, err := s.graphFresh(ctx); err != nil || fresh {
		return err
	}
	return s.rebuildGraph(ctx)
}

// graphFresh must be called with s.mu held.
func (s *SQLiteStore) graphFresh(ctx context.Context) (bool, error) {
	if s.closed {
		return false, amerrors.StoreIOError("search", s.path, errors.New("store is closed"))
	}
	if s.vectors == nil || s.vectors.needsCompaction() {
		return false, nil
	}
	version, err := s.dataVersion(ctx)
	if err != nil {
		return false, amerrors.StoreIOError("search", s.path, err)
	}
	return version == s.graphVersion, nil
}

func (s *SQLiteStore) dataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v)
	return v, err
}

// rebuildGraph reloads the vector index from one read snapshot. A saved
// graph is reused when its generation matches; otherwise vectors are read
// from SQLite and, if the collection is large enough to need a graph, the
// new graph is saved for the next process. Must be called with s.mu held.
func (s *SQLiteStore) rebuildGraph(ctx context.Context) error {
	start := time.Now()

	version, err := s.dataVersion(ctx)
	if err != nil {
		return amerrors.StoreIOError("search", s.path, err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return amerrors.StoreIOError("search", s.path, err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := tableExists(ctx, tx, "documents")
	if err != nil {
		return amerrors.StoreIOError("search", s.path, err)
	}
	if !exists {
		s.vectors = nil
		s.graphVersion = version
		s.dims = s.config.Dimensions
		return nil
	}

	dims, err := readDimension(ctx, tx)
	if err != nil {
		return amerrors.StoreIOError("search", s.path, err)
	}
	generation, err := readGeneration(ctx, tx)
	if err != nil {
		return amerrors.StoreIOError("search", s.path, err)
	}
	var records int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&records); err != nil {
		return amerrors.StoreIOError("search", s.path, err)
	}

	var idx *vectorIndex
	source := "sqlite"
	if dims > 0 && records > 0 && newVectorIndex(s.config, dims).exactLimit < records {
		idx, err = loadVectorIndex(s.graphPath, s.config, dims, generation, records)
		switch {
		case err == nil:
			source = "graph_file"
		case !errors.Is(err, errStaleGraph):
			slog.Warn("graph_file_unreadable",
				slog.String("path", s.graphPath),
				slog.String("error", err.Error()))
		}
	}

	skipped := 0
	if idx == nil {
		idx, dims, skipped, err = s.readVectors(ctx, tx, dims)
		if err != nil {
			return err
		}
		idx.ensureGraph()
		if idx.usesGraph() {
			if err := idx.save(s.graphPath, generation); err != nil {
				slog.Warn("graph_file_save_failed",
					slog.String("path", s.graphPath),
					slog.String("error", err.Error()))
			}
		}
	}

	s.vectors = idx
	s.graphVersion = version
	if dims > 0 {
		s.dims = dims
	}

	slog.Debug("vector_index_loaded",
		slog.String("source", source),
		slog.Int("vectors", idx.len()),
		slog.Bool("graph", idx.usesGraph()),
		slog.Int("skipped", skipped),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// readVectors loads every stored vector of the pinned width.
func (s *SQLiteStore) readVectors(ctx context.Context, tx *sql.Tx, dims int) (*vectorIndex, int, int, error) {
	rows, err := tx.QueryContext(ctx, `SELECT seq, vector FROM documents ORDER BY seq`)
	if err != nil {
		return nil, 0, 0, amerrors.StoreIOError("search", s.path, err)
	}
	defer rows.Close()

	var idx *vectorIndex
	skipped := 0
	for rows.Next() {
		var seq int64
		var blob []byte
		if err := rows.Scan(&seq, &blob); err != nil {
			return nil, 0, 0, amerrors.StoreIOError("search", s.path, err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, 0, 0, amerrors.New(amerrors.ErrCodeStoreCorrupt, err.Error(), err).WithDetail("path", s.path)
		}
		if dims == 0 {
			dims = len(vec)
		}
		if len(vec) != dims {
			skipped++
			continue
		}
		if idx == nil {
			idx = newVectorIndex(s.config, dims)
		}
		idx.vecs[uint64(seq)] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, amerrors.StoreIOError("search", s.path, err)
	}

	if idx == nil {
		idx = newVectorIndex(s.config, dims)
	}
	return idx, dims, skipped, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (uint64, *Record, error) {
	var (
		seq      int64
		rec      Record
		metaJSON string
		blob     []byte
		created  int64
	)
	if err := row.Scan(&seq, &rec.ID, &rec.FilePath, &rec.FileHash, &rec.Preview, &metaJSON, &blob, &created); err != nil {
		return 0, nil, err
	}

	vec, err := decodeVector(blob)
	if err != nil {
		return 0, nil, err
	}
	rec.Vector = vec
	rec.CreatedAt = time.Unix(0, created).UTC()

	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			return 0, nil, fmt.Errorf("failed to decode metadata for %s: %w", rec.FilePath, err)
		}
	}
	return uint64(seq), &rec, nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.vectors = nil

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
