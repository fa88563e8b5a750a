package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"museumheist.ai/internal/persistence/report"
)

type RunArchiveMeta struct {
	RunID      string `json:"run_id"`
	Total      int    `json:"total"`
	Seed       int64  `json:"seed"`
	Events     uint64 `json:"events"`
	Violations int    `json:"violations"`
	Report     string `json:"report"`
	FinishedAt string `json:"finished_at"`
	CreatedAt  string `json:"created_at"`
}

// Dir is where the archive of runID lives under dataDir.
func Dir(dataDir, runID string) string {
	return filepath.Join(dataDir, "archives", "run_"+runID)
}

// ArchiveRun copies a finished run's report into `dataDir/archives/run_<id>/`
// next to a meta.json. Runs that recorded invariant violations are not
// archived; it returns archived=false for them.
func ArchiveRun(dataDir, reportPath string, r report.ReportV1) (archivedPath string, archived bool, err error) {
	if r.Header.RunID == "" {
		return "", false, fmt.Errorf("report has no run id")
	}
	if r.Violations > 0 {
		return "", false, nil
	}

	dir := Dir(dataDir, r.Header.RunID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}
	dst := filepath.Join(dir, filepath.Base(reportPath))
	if err := copyFile(reportPath, dst); err != nil {
		return "", false, err
	}

	meta := RunArchiveMeta{
		RunID:      r.Header.RunID,
		Total:      r.Header.Total,
		Seed:       r.Seed,
		Events:     r.Events,
		Violations: r.Violations,
		Report:     filepath.Base(dst),
		FinishedAt: r.FinishedAt,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, true, nil
}

// ReadMeta loads the meta.json of an archived run.
func ReadMeta(dir string) (RunArchiveMeta, error) {
	var m RunArchiveMeta
	b, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return m, err
	}
	return m, json.Unmarshal(b, &m)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
