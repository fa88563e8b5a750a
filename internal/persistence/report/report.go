// Package report writes and reads the final report of a heist run: a
// zstd stream holding one JSON header line followed by the JSON body.
package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"museumheist.ai/internal/heist/audit"
	"museumheist.ai/internal/sim/tuning"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Total   int    `json:"total"`
}

type ReportV1 struct {
	Header Header `json:"header"`

	Seed       int64         `json:"seed"`
	Config     tuning.Tuning `json:"config"`
	FinishedAt string        `json:"finished_at"`
	Events     uint64        `json:"events"`
	Violations int           `json:"violations"`

	Master  string    `json:"master"`
	Thieves []ThiefV1 `json:"thieves"`
	Rooms   []RoomV1  `json:"rooms"`
}

type ThiefV1 struct {
	ID      int    `json:"id"`
	Cohort  int    `json:"cohort"`
	Member  int    `json:"member"`
	Agility int    `json:"agility"`
	State   string `json:"state"`
}

type RoomV1 struct {
	ID       int `json:"id"`
	Distance int `json:"distance"`
	Items    int `json:"items"`
}

// FromStatus builds a report from the final audit status.
func FromStatus(runID string, cfg tuning.Tuning, st audit.Status, events uint64, violations int, finishedAt string) ReportV1 {
	r := ReportV1{
		Header:     Header{Version: Version, RunID: runID, Total: st.Total},
		Seed:       cfg.Seed,
		Config:     cfg,
		FinishedAt: finishedAt,
		Events:     events,
		Violations: violations,
		Master:     st.Master,
		Thieves:    make([]ThiefV1, len(st.Thieves)),
		Rooms:      make([]RoomV1, len(st.Rooms)),
	}
	for i, th := range st.Thieves {
		r.Thieves[i] = ThiefV1{ID: i, Cohort: th.Cohort, Member: th.Member, Agility: th.Agility, State: th.State}
	}
	for i, rm := range st.Rooms {
		r.Rooms[i] = RoomV1{ID: i, Distance: rm.Distance, Items: rm.Items}
	}
	return r
}

// PathFor is where the report of runID lives under dataDir.
func PathFor(dataDir, runID string) string {
	return filepath.Join(dataDir, "reports", runID+".report.zst")
}

func Write(path string, r ReportV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 64*1024)
	hb, _ := json.Marshal(r.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := json.NewEncoder(bw).Encode(&r); err != nil {
		_ = enc.Close()
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the first line, enough for listings.
func ReadHeader(path string) (Header, error) {
	var h Header
	err := read(path, func(br *bufio.Reader) error {
		line, err := br.ReadBytes('\n')
		if err != nil {
			return err
		}
		return json.Unmarshal(line, &h)
	})
	return h, err
}

func Read(path string) (ReportV1, error) {
	var r ReportV1
	err := read(path, func(br *bufio.Reader) error {
		if _, err := br.ReadBytes('\n'); err != nil {
			return err
		}
		if err := json.NewDecoder(br).Decode(&r); err != nil {
			return fmt.Errorf("json decode: %w", err)
		}
		return nil
	})
	return r, err
}

func read(path string, fn func(*bufio.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	return fn(bufio.NewReaderSize(dec, 64*1024))
}
