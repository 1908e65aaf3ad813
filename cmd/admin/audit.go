package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// auditCmd prints entries from an hourly-rotated JSONL stream, oldest file
// first. stream is "trades" or "reconcile"; both live under
// <data>/<stream>/<stream>-YYYY-MM-DD-HH.jsonl.zst.
func auditCmd(args []string, stream string) {
	fs := flag.NewFlagSet(stream, flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	since := fs.String("since", "", "only entries at or after this RFC3339 time (optional)")
	user := fs.String("user", "", "only entries involving this user id (optional)")
	_ = fs.Parse(args)

	var cutoff time.Time
	if *since != "" {
		t, err := time.Parse(time.RFC3339, *since)
		if err != nil {
			fatal("parse -since:", err)
		}
		cutoff = t
	}

	files, err := listStreamFiles(filepath.Join(*dataDir, stream), stream)
	if err != nil {
		fatal("list:", err)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no", stream, "files found")
		os.Exit(2)
	}

	printed := 0
	for _, path := range files {
		n, err := printStreamFile(path, cutoff, *user)
		if err != nil {
			fatal("read:", err)
		}
		printed += n
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", printed)
}

func listStreamFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func printStreamFile(path string, cutoff time.Time, user string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return 0, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	printed := 0
	for sc.Scan() {
		line := sc.Bytes()
		var entry struct {
			Time        time.Time `json:"time"`
			InitiatorID string    `json:"initiator_id"`
			TargetID    string    `json:"target_id"`
		}
		if err := json.Unmarshal(line, &entry); err != nil {
			return printed, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if !cutoff.IsZero() && entry.Time.Before(cutoff) {
			continue
		}
		if user != "" && entry.InitiatorID != user && entry.TargetID != user {
			continue
		}
		fmt.Println(string(line))
		printed++
	}
	return printed, sc.Err()
}
