// Package journal assembles the audit log's outputs around one Board: the
// text status log, the compressed event log, the optional SQLite index
// and the final run report.
package journal

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/persistence/archive"
	"museumheist.ai/internal/persistence/indexdb"
	persistlog "museumheist.ai/internal/persistence/log"
	"museumheist.ai/internal/persistence/report"
	"museumheist.ai/internal/sim/tuning"
)

type Options struct {
	DataDir   string
	RunID     string
	DisableDB bool
	// Archive copies the report of a clean run under <data>/archives.
	Archive bool
	Logger  *log.Logger

	// OnReport runs after the report has been written.
	OnReport func(r report.ReportV1, path string)
}

type Journal struct {
	Board *audit.Board

	text   *persistlog.TextLog
	events *persistlog.EventLogger
	index  *indexdb.SQLiteIndex
	log    *log.Logger
}

// IndexPath is where the SQLite index lives under dataDir.
func IndexPath(dataDir string) string {
	return filepath.Join(dataDir, "index", "heist.sqlite")
}

func Open(cfg tuning.Tuning, opts Options) (*Journal, error) {
	text, err := persistlog.OpenTextLog(cfg.Log.Path)
	if err != nil {
		return nil, err
	}
	j := &Journal{
		text:   text,
		events: persistlog.NewEventLogger(opts.DataDir),
		log:    opts.Logger,
	}
	writers := []audit.EventWriter{j.events}
	if !opts.DisableDB {
		idx, err := indexdb.OpenSQLite(IndexPath(opts.DataDir))
		if err != nil {
			_ = text.Close()
			return nil, err
		}
		if err := idx.RecordRun(context.Background(), opts.RunID, cfg); err != nil {
			j.logf("index: record run: %v", err)
		}
		j.index = idx
		writers = append(writers, idx)
	}

	j.Board = audit.NewBoard(cfg, audit.Options{
		RunID:  opts.RunID,
		Lines:  text,
		Events: writers,
		Logger: opts.Logger,
		OnReport: func(st audit.Status, ev audit.Event) {
			j.writeReport(cfg, opts, st, ev)
		},
	})
	return j, nil
}

func (j *Journal) writeReport(cfg tuning.Tuning, opts Options, st audit.Status, ev audit.Event) {
	r := report.FromStatus(opts.RunID, cfg, st, ev.Seq, j.Board.Violations(), time.Now().UTC().Format(time.RFC3339))
	path := report.PathFor(opts.DataDir, opts.RunID)
	if err := report.Write(path, r); err != nil {
		j.logf("report: %v", err)
		return
	}
	j.index.RecordReport(indexdb.ReportRow{
		RunID:      opts.RunID,
		Total:      r.Header.Total,
		Events:     r.Events,
		Violations: r.Violations,
		Path:       path,
	})
	j.logf("report written to %s: %d items, %d violations", path, r.Header.Total, r.Violations)
	if opts.Archive {
		if dst, ok, err := archive.ArchiveRun(opts.DataDir, path, r); err != nil {
			j.logf("archive: %v", err)
		} else if ok {
			j.logf("archived run to %s", dst)
		}
	}
	if opts.OnReport != nil {
		opts.OnReport(r, path)
	}
}

// Index is nil when the index is disabled.
func (j *Journal) Index() *indexdb.SQLiteIndex { return j.index }

func (j *Journal) Close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(j.text.Close())
	keep(j.events.Close())
	if j.index != nil {
		keep(j.index.Close())
	}
	return first
}

func (j *Journal) logf(format string, args ...any) {
	if j.log != nil {
		j.log.Printf(format, args...)
	}
}
