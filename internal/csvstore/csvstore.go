// Package csvstore owns the canonical liquidations CSV: exclusive,
// duplicate-suppressing row appends under an advisory file lock, header
// reconciliation when the on-disk column order drifts from
// aaveliq.CSVFieldOrder, and the read paths the scanner and the
// checkpoint store need to derive resume state straight from the file.
package csvstore

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	aaveliq "github.com/aave-liq/scanner"
)

// Store drives all reads and writes against one canonical CSV path.
type Store struct {
	Path string
}

func New(path string) *Store {
	return &Store{Path: path}
}

// lockedFile opens path for read/write (creating it if absent) and
// takes an exclusive advisory lock for the lifetime of the returned
// closer. Callers must defer the returned unlock function.
func lockedFile(path string) (*os.File, func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("csvstore: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("csvstore: open %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("csvstore: flock %s: %w", path, err)
	}
	unlock := func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}
	return f, unlock, nil
}

// readAll reads every data row of the CSV (header excluded) as
// column-name-keyed maps. f must already be positioned or will be
// rewound to the start. Returns (nil, nil) for an empty file.
func readAll(f *os.File) (header []string, rows []map[string]string, err error) {
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err = r.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return header, rows, err
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// EnsureHeader rewrites the CSV atomically (temp file + rename) if its
// header does not match aaveliq.CSVFieldOrder exactly, remapping
// existing rows by column name and leaving newly-added columns empty.
// A missing or empty file is left for the first AppendIfNew to create
// with the canonical header. No backup is taken.
func (s *Store) EnsureHeader() error {
	f, unlock, err := lockedFile(s.Path)
	if err != nil {
		return err
	}
	defer unlock()

	header, rows, err := readAll(f)
	if err != nil {
		return fmt.Errorf("csvstore: read %s: %w", s.Path, err)
	}
	if header == nil || sameOrder(header, aaveliq.CSVFieldOrder) {
		return nil
	}
	return rewriteLocked(f, s.Path, rows)
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// rewriteLocked writes rows under the canonical header to a temp file
// in the same directory, then renames it over path. f is the already
// locked handle for path; the lock is held by the caller for the
// duration of the rename so no reader observes a torn file.
func rewriteLocked(f *os.File, path string, rows []map[string]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "csvstore_tmp_*.csv")
	if err != nil {
		return fmt.Errorf("csvstore: tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	w := csv.NewWriter(tmp)
	if err := w.Write(aaveliq.CSVFieldOrder); err != nil {
		tmp.Close()
		return err
	}
	for _, row := range rows {
		rec := make([]string, len(aaveliq.CSVFieldOrder))
		for i, col := range aaveliq.CSVFieldOrder {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Backup snapshots path to "<path>.bak.<unix-seconds>". Used only from
// the CLI's `scanner validate --backup` flag, never from the default
// header-reconciliation path. Returns "" if path does not exist.
func Backup(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	backupPath := fmt.Sprintf("%s.bak.%d", path, time.Now().Unix())
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()
	dst, err := os.Create(backupPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return backupPath, dst.Sync()
}

// LoadTxSet reads every row's tx column into a lowercased set, for the
// scanner's in-memory dedupe check. Bounded by CSV row count, ~10^5
// for a decade of mainnet liquidations.
func (s *Store) LoadTxSet() (map[string]bool, error) {
	f, unlock, err := lockedFile(s.Path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	_, rows, err := readAll(f)
	if err != nil {
		return nil, fmt.Errorf("csvstore: read %s: %w", s.Path, err)
	}
	set := make(map[string]bool, len(rows))
	for _, row := range rows {
		if tx := row["tx"]; tx != "" {
			set[strings.ToLower(tx)] = true
		}
	}
	return set, nil
}

// LoadRows returns every data row as a column-name-keyed map, for
// callers (price backfill) that need to inspect and selectively rewrite
// existing rows rather than only append or summarize.
func (s *Store) LoadRows() ([]map[string]string, error) {
	f, unlock, err := lockedFile(s.Path)
	if err != nil {
		return nil, err
	}
	defer unlock()

	_, rows, err := readAll(f)
	if err != nil {
		return nil, fmt.Errorf("csvstore: read %s: %w", s.Path, err)
	}
	return rows, nil
}

// RewriteRows atomically replaces the entire CSV body with rows under
// the canonical header (temp file + rename, same as header
// reconciliation), for callers that mutate existing rows in place
// (price backfill) rather than only appending new ones.
func (s *Store) RewriteRows(rows []map[string]string) error {
	f, unlock, err := lockedFile(s.Path)
	if err != nil {
		return err
	}
	defer unlock()
	return rewriteLocked(f, s.Path, rows)
}

// Summary is the set of facts the checkpoint store and the status
// projection derive directly from the CSV.
type Summary struct {
	RowCount     int
	MinBlock     uint64
	MaxBlock     uint64
	MinTimestamp uint64
	HasRows      bool
}

// Summarize scans the CSV once and returns its row count and block
// extrema, the authoritative inputs to resume-block derivation and the
// status file's from_block/events_found fields.
func (s *Store) Summarize() (Summary, error) {
	f, unlock, err := lockedFile(s.Path)
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	_, rows, err := readAll(f)
	if err != nil {
		return Summary{}, fmt.Errorf("csvstore: read %s: %w", s.Path, err)
	}
	var sum Summary
	sum.RowCount = len(rows)
	for _, row := range rows {
		block, err := strconv.ParseUint(row["block"], 10, 64)
		if err != nil {
			continue
		}
		if !sum.HasRows || block < sum.MinBlock {
			sum.MinBlock = block
			if ts, err := strconv.ParseUint(row["timestamp"], 10, 64); err == nil {
				sum.MinTimestamp = ts
			}
		}
		if !sum.HasRows || block > sum.MaxBlock {
			sum.MaxBlock = block
		}
		sum.HasRows = true
	}
	return sum, nil
}

// AppendIfNew appends event to the CSV iff its tx is not already
// present, under the same exclusive lock used for every other mutation.
// Returns true iff it wrote. Every numeric column passed through
// LiquidationEvent.ToRow is already normalized to a numeric string or
// the empty string, never a non-numeric token.
func (s *Store) AppendIfNew(event aaveliq.LiquidationEvent) (bool, error) {
	f, unlock, err := lockedFile(s.Path)
	if err != nil {
		return false, err
	}
	defer unlock()

	header, rows, err := readAll(f)
	if err != nil {
		return false, fmt.Errorf("csvstore: read %s: %w", s.Path, err)
	}

	tx := event.Tx
	for _, row := range rows {
		if row["tx"] == tx {
			return false, nil
		}
	}

	if header == nil {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return false, err
		}
		if err := f.Truncate(0); err != nil {
			return false, err
		}
		w := csv.NewWriter(f)
		if err := w.Write(aaveliq.CSVFieldOrder); err != nil {
			return false, err
		}
		if err := writeRow(w, aaveliq.CSVFieldOrder, event.ToRow()); err != nil {
			return false, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return false, err
		}
		return true, f.Sync()
	}

	if !sameOrder(header, aaveliq.CSVFieldOrder) {
		// rewriteLocked renames a fresh temp file over s.Path, leaving f
		// bound to the now-unlinked old inode, so the new row must be
		// folded into this same rewrite rather than appended to f
		// afterward, or it would be written into a file nothing points to.
		rows = append(rows, event.ToRow())
		if err := rewriteLocked(f, s.Path, rows); err != nil {
			return false, err
		}
		return true, nil
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return false, err
	}
	w := csv.NewWriter(f)
	if err := writeRow(w, header, event.ToRow()); err != nil {
		return false, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, err
	}
	return true, f.Sync()
}

func writeRow(w *csv.Writer, header []string, row map[string]string) error {
	rec := make([]string, len(header))
	for i, col := range header {
		rec[i] = row[col]
	}
	return w.Write(rec)
}
