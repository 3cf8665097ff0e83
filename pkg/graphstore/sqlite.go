package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/happyrust/plantgraph/pkg/element"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteEngine is an Engine backed by a SQLite database file. It serves as
// the interchangeable secondary engine next to BadgerEngine; both must answer
// identical queries with identical result sets when they hold the same data.
//
// Hierarchy queries use recursive CTEs so an ancestor chain or a subtree is
// one round-trip regardless of depth.
type SQLiteEngine struct {
	db *sql.DB

	mu     sync.RWMutex
	closed bool

	elementCount atomic.Int64

	notifier
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS elements (
	db        INTEGER NOT NULL,
	seq       INTEGER NOT NULL,
	type      TEXT    NOT NULL,
	owner_db  INTEGER NOT NULL,
	owner_seq INTEGER NOT NULL,
	attrs     BLOB    NOT NULL,
	PRIMARY KEY (db, seq)
);
CREATE INDEX IF NOT EXISTS idx_elements_owner ON elements(owner_db, owner_seq);
CREATE INDEX IF NOT EXISTS idx_elements_type  ON elements(type);
`

// OpenSQLite opens (creating if needed) a SQLite engine at path. ":memory:"
// opens an in-memory database.
func OpenSQLite(path string) (*SQLiteEngine, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	e := &SQLiteEngine{db: db}
	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM elements`).Scan(&n); err == nil {
		e.elementCount.Store(n)
	}
	return e, nil
}

// Name implements Engine.
func (s *SQLiteEngine) Name() string { return "sqlite" }

// Ping implements Engine.
func (s *SQLiteEngine) Ping(ctx context.Context) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

func (s *SQLiteEngine) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStorageClosed
	}
	return nil
}

// Attributes implements Engine.
func (s *SQLiteEngine) Attributes(ctx context.Context, ref element.RefNo) (*element.AttributeMap, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT attrs FROM elements WHERE db = ? AND seq = ?`, ref.DB, ref.Seq).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite attributes %s: %w", ref, err)
	}
	return decodeAttributes(blob)
}

// Children implements Engine.
func (s *SQLiteEngine) Children(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if err := s.mustExist(ctx, ref); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT db, seq FROM elements
		 WHERE owner_db = ? AND owner_seq = ? AND NOT (db = ? AND seq = ?)
		 ORDER BY db, seq`,
		ref.DB, ref.Seq, ref.DB, ref.Seq)
	if err != nil {
		return nil, fmt.Errorf("sqlite children %s: %w", ref, err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

func (s *SQLiteEngine) mustExist(ctx context.Context, ref element.RefNo) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM elements WHERE db = ? AND seq = ?`, ref.DB, ref.Seq).Scan(&one)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	return err
}

// Ancestors implements Engine. One recursive CTE resolves the whole chain;
// the depth guard turns an owner cycle into ErrCyclicOwnership instead of an
// infinite recursion.
func (s *SQLiteEngine) Ancestors(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain(db, seq, owner_db, owner_seq, depth) AS (
			SELECT db, seq, owner_db, owner_seq, 0 FROM elements WHERE db = ? AND seq = ?
			UNION ALL
			SELECT e.db, e.seq, e.owner_db, e.owner_seq, c.depth + 1
			FROM elements e JOIN chain c
			  ON e.db = c.owner_db AND e.seq = c.owner_seq
			WHERE c.depth < ? AND NOT (c.db = c.owner_db AND c.seq = c.owner_seq)
		)
		SELECT db, seq FROM chain ORDER BY depth DESC`,
		ref.DB, ref.Seq, maxChainDepth)
	if err != nil {
		return nil, fmt.Errorf("sqlite ancestors %s: %w", ref, err)
	}
	defer rows.Close()

	chain, err := scanRefs(rows)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	if len(chain) > maxChainDepth {
		return nil, fmt.Errorf("%w: chain from %s exceeds %d levels", ErrCyclicOwnership, ref, maxChainDepth)
	}
	seen := make(map[element.RefNo]struct{}, len(chain))
	for _, r := range chain {
		if _, dup := seen[r]; dup {
			return nil, fmt.Errorf("%w: revisited %s walking from %s", ErrCyclicOwnership, r, ref)
		}
		seen[r] = struct{}{}
	}
	return chain, nil
}

// QueryByType implements Engine.
func (s *SQLiteEngine) QueryByType(ctx context.Context, typeTags []string, dbNum int32, filter TypeFilter) ([]element.RefNo, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if len(typeTags) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(typeTags)), ",")
	query := `SELECT db, seq, attrs FROM elements WHERE type IN (` + placeholders + `)`
	args := make([]any, 0, len(typeTags)+1)
	for _, t := range typeTags {
		args = append(args, t)
	}
	if dbNum > 0 {
		query += ` AND db = ?`
		args = append(args, dbNum)
	}
	query += ` ORDER BY db, seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite type query: %w", err)
	}
	defer rows.Close()

	var out []element.RefNo
	for rows.Next() {
		var db, seq int32
		var blob []byte
		if err := rows.Scan(&db, &seq, &blob); err != nil {
			return nil, err
		}
		ref := element.RefNo{DB: db, Seq: seq}
		if filter != nil {
			attrs, err := decodeAttributes(blob)
			if err != nil || !filter(attrs) {
				continue
			}
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// QuerySubtree implements Engine.
func (s *SQLiteEngine) QuerySubtree(ctx context.Context, ref element.RefNo, maxDepth int) ([]element.RefNo, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if err := s.mustExist(ctx, ref); err != nil {
		return nil, err
	}

	depthCap := maxDepth
	if depthCap <= 0 {
		depthCap = maxChainDepth
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE subtree(db, seq, depth) AS (
			SELECT db, seq, 0 FROM elements WHERE db = ? AND seq = ?
			UNION ALL
			SELECT e.db, e.seq, s.depth + 1
			FROM elements e JOIN subtree s
			  ON e.owner_db = s.db AND e.owner_seq = s.seq
			WHERE s.depth < ? AND NOT (e.db = e.owner_db AND e.seq = e.owner_seq)
		)
		SELECT db, seq FROM subtree ORDER BY depth, db, seq`,
		ref.DB, ref.Seq, depthCap)
	if err != nil {
		return nil, fmt.Errorf("sqlite subtree %s: %w", ref, err)
	}
	defer rows.Close()
	return scanRefs(rows)
}

// CreateElement implements Engine.
func (s *SQLiteEngine) CreateElement(ctx context.Context, attrs *element.AttributeMap) error {
	if attrs == nil {
		return ErrInvalidData
	}
	if attrs.Ref.IsNil() {
		return ErrInvalidRef
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}

	blob, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}
	owner := attrs.Owner()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO elements (db, seq, type, owner_db, owner_seq, attrs) VALUES (?, ?, ?, ?, ?, ?)`,
		attrs.Ref.DB, attrs.Ref.Seq, attrs.TypeTag(), owner.DB, owner.Seq, blob)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("sqlite create %s: %w", attrs.Ref, err)
	}

	s.elementCount.Add(1)
	s.notifyCreated(attrs.Ref)
	return nil
}

// UpdateElement implements Engine. Missing elements are created (upsert).
func (s *SQLiteEngine) UpdateElement(ctx context.Context, attrs *element.AttributeMap) error {
	if attrs == nil {
		return ErrInvalidData
	}
	if attrs.Ref.IsNil() {
		return ErrInvalidRef
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}

	blob, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}

	existed := true
	if err := s.mustExist(ctx, attrs.Ref); err == ErrNotFound {
		existed = false
	} else if err != nil {
		return err
	}

	owner := attrs.Owner()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO elements (db, seq, type, owner_db, owner_seq, attrs) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (db, seq) DO UPDATE
		  SET type = excluded.type, owner_db = excluded.owner_db,
		      owner_seq = excluded.owner_seq, attrs = excluded.attrs`,
		attrs.Ref.DB, attrs.Ref.Seq, attrs.TypeTag(), owner.DB, owner.Seq, blob)
	if err != nil {
		return fmt.Errorf("sqlite update %s: %w", attrs.Ref, err)
	}

	if existed {
		s.notifyUpdated(attrs.Ref)
	} else {
		s.elementCount.Add(1)
		s.notifyCreated(attrs.Ref)
	}
	return nil
}

// DeleteElement implements Engine.
func (s *SQLiteEngine) DeleteElement(ctx context.Context, ref element.RefNo) error {
	if ref.IsNil() {
		return ErrInvalidRef
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM elements WHERE db = ? AND seq = ?`, ref.DB, ref.Seq)
	if err != nil {
		return fmt.Errorf("sqlite delete %s: %w", ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	s.elementCount.Add(-1)
	s.notifyDeleted(ref)
	return nil
}

// Stats implements Engine.
func (s *SQLiteEngine) Stats() Stats {
	return Stats{ElementCount: s.elementCount.Load()}
}

// Close implements Engine.
func (s *SQLiteEngine) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.db.Close()
}

func scanRefs(rows *sql.Rows) ([]element.RefNo, error) {
	var out []element.RefNo
	for rows.Next() {
		var db, seq int32
		if err := rows.Scan(&db, &seq); err != nil {
			return nil, err
		}
		out = append(out, element.RefNo{DB: db, Seq: seq})
	}
	return out, rows.Err()
}
