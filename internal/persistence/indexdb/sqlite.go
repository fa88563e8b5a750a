package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable copy of the audit trail. Writes go through a
// buffered queue drained by one goroutine; the JSONL event logs remain the
// source of truth, so a full queue drops rows instead of stalling a run.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvents  atomic.Uint64
	dropReports atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqReport
)

type req struct {
	kind reqKind

	event  audit.Event
	report ReportRow
}

type RunRow struct {
	RunID     string
	StartedAt string
	Digest    string
	Config    string
}

type ReportRow struct {
	RunID      string
	Total      int
	Events     uint64
	Violations int
	Path       string
	RecordedAt string
}

type EventRow struct {
	Seq    uint64
	Kind   string
	Thief  int
	Cohort int
	Member int
	Room   int
	Value  int
	State  string
	At     string
}

type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	DropEventTotal  uint64
	DropReportTotal uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			config_digest TEXT NOT NULL,
			config_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			thief INTEGER NOT NULL,
			cohort INTEGER NOT NULL,
			member INTEGER NOT NULL,
			room INTEGER NOT NULL,
			value INTEGER NOT NULL,
			state TEXT,
			at TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_kind ON events(run_id, kind, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_thief ON events(run_id, thief, seq);`,
		`CREATE TABLE IF NOT EXISTS reports (
			run_id TEXT PRIMARY KEY,
			total INTEGER NOT NULL,
			events INTEGER NOT NULL,
			violations INTEGER NOT NULL,
			path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:      len(s.ch),
		QueueCapacity:   cap(s.ch),
		DropEventTotal:  s.dropEvents.Load(),
		DropReportTotal: s.dropReports.Load(),
	}
}

// WriteEvent queues ev for indexing. Events that need a run id but have
// none are skipped.
func (s *SQLiteIndex) WriteEvent(ev audit.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: ev}:
	default:
		s.dropEvents.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordReport(r ReportRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if r.RunID == "" {
		return
	}
	if r.RecordedAt == "" {
		r.RecordedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case s.ch <- req{kind: reqReport, report: r}:
	default:
		s.dropReports.Add(1)
	}
}

// RecordRun stores the configuration a run was started with.
func (s *SQLiteIndex) RecordRun(ctx context.Context, runID string, cfg tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs(run_id,started_at,config_digest,config_json) VALUES(?,?,?,?)`,
		runID, now, hex.EncodeToString(sum[:]), string(b),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) Runs(ctx context.Context) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, started_at, config_digest, config_json FROM runs ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.Digest, &r.Config); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Report(ctx context.Context, runID string) (ReportRow, bool, error) {
	var r ReportRow
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, total, events, violations, path, recorded_at FROM reports WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.Total, &r.Events, &r.Violations, &r.Path, &r.RecordedAt)
	if err == sql.ErrNoRows {
		return r, false, nil
	}
	if err != nil {
		return r, false, err
	}
	return r, true, nil
}

// EventQuery filters Events. Zero values mean no filter.
type EventQuery struct {
	RunID string
	Kind  string
	Thief *int
	Limit int
}

func (s *SQLiteIndex) Events(ctx context.Context, q EventQuery) ([]EventRow, error) {
	where := []string{"run_id = ?"}
	args := []any{q.RunID}
	if q.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, q.Kind)
	}
	if q.Thief != nil {
		where = append(where, "thief = ?")
		args = append(args, *q.Thief)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, thief, cohort, member, room, value, COALESCE(state,''), COALESCE(at,'') FROM events WHERE `+
			strings.Join(where, " AND ")+` ORDER BY seq LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EventRow
	for rows.Next() {
		var r EventRow
		if err := rows.Scan(&r.Seq, &r.Kind, &r.Thief, &r.Cohort, &r.Member, &r.Room, &r.Value, &r.State, &r.At); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(run_id,seq,kind,thief,cohort,member,room,value,state,at,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	insertReport, _ := s.db.Prepare(`INSERT OR REPLACE INTO reports(run_id,total,events,violations,path,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertEvent != nil {
			_ = insertEvent.Close()
		}
		if insertReport != nil {
			_ = insertReport.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			ev := r.event
			if insertEvent == nil || ev.RunID == "" {
				break
			}
			raw, _ := json.Marshal(ev)
			if _, err := tx.Stmt(insertEvent).Exec(
				ev.RunID,
				int64(ev.Seq),
				string(ev.Kind),
				ev.Thief,
				ev.Cohort,
				ev.Member,
				ev.Room,
				ev.Value,
				ev.State,
				ev.At,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqReport:
			rp := r.report
			if insertReport == nil {
				break
			}
			if _, err := tx.Stmt(insertReport).Exec(
				rp.RunID,
				rp.Total,
				int64(rp.Events),
				rp.Violations,
				rp.Path,
				rp.RecordedAt,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
