package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"museumheist.ai/internal/persistence/archive"
	"museumheist.ai/internal/persistence/report"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "report":
			reportCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		case "archives":
			archivesCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints one line per run report under <data>/reports.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dir := filepath.Join(*dataDir, "reports")
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	type row struct {
		path string
		info os.FileInfo
	}
	var rows []row
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".report.zst") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		rows = append(rows, row{path: filepath.Join(dir, e.Name()), info: info})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].info.ModTime().Before(rows[j].info.ModTime()) })

	for _, r := range rows {
		h, err := report.ReadHeader(r.path)
		if err != nil {
			fmt.Printf("%-36s  unreadable: %v\n", filepath.Base(r.path), err)
			continue
		}
		fmt.Printf("%-36s  total=%-4d %8s  %s\n", h.RunID, h.Total, humanize.Bytes(uint64(r.info.Size())), humanize.Time(r.info.ModTime()))
	}
}

// reportCmd prints a report as JSON. The argument is a run id or a path.
func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	headerOnly := fs.Bool("header", false, "print only the header line")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: admin report [-data dir] [-header] <run_id|path>")
		os.Exit(2)
	}
	path := fs.Arg(0)
	if !strings.HasSuffix(path, ".report.zst") {
		path = report.PathFor(*dataDir, path)
	}

	if *headerOnly {
		h, err := report.ReadHeader(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read report:", err)
			os.Exit(1)
		}
		printJSON(h)
		return
	}
	r, err := report.Read(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read report:", err)
		os.Exit(1)
	}
	printJSON(r)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// archivesCmd prints the meta of every archived run.
func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	dirs, err := filepath.Glob(filepath.Join(*dataDir, "archives", "run_*"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "glob:", err)
		os.Exit(1)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		meta, err := archive.ReadMeta(d)
		if err != nil {
			fmt.Printf("%-40s  unreadable: %v\n", filepath.Base(d), err)
			continue
		}
		fmt.Printf("%-36s  total=%-4d events=%-6d %s\n", meta.RunID, meta.Total, meta.Events, meta.FinishedAt)
	}
}
