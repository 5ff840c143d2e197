// Package checkpoint derives the scanner's resume block from the
// canonical CSV itself and projects a status JSON file for external
// consumers. No separate checkpoint file is ever trusted for resume: a
// status file may exist on disk from a previous run, but it is written
// opportunistically and ignored here, which is exactly what makes
// resume idempotent under crashes and concurrent scanners.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	aaveliq "github.com/aave-liq/scanner"
	"github.com/aave-liq/scanner/internal/csvstore"
)

// Store derives resume state from a canonical CSV and projects status
// to a JSON file.
type Store struct {
	csv        *csvstore.Store
	statusPath string
	genesis    uint64
}

func New(csv *csvstore.Store, statusPath string, genesisBlock uint64) *Store {
	return &Store{csv: csv, statusPath: statusPath, genesis: genesisBlock}
}

// ResumeBlock returns the block the next scan pass should begin at:
// (max block in CSV)+1, or the configured genesis block if the CSV has
// no rows yet.
func (s *Store) ResumeBlock() (uint64, error) {
	summary, err := s.csv.Summarize()
	if err != nil {
		return 0, fmt.Errorf("checkpoint: resume block: %w", err)
	}
	if !summary.HasRows {
		return s.genesis, nil
	}
	return summary.MaxBlock + 1, nil
}

// WriteStatus recomputes from_block and events_found fresh from the CSV
// and writes the status file atomically (temp file + rename) so no
// reader ever observes a torn write.
func (s *Store) WriteStatus(status aaveliq.ScanStatus) error {
	summary, err := s.csv.Summarize()
	if err != nil {
		return fmt.Errorf("checkpoint: write status: %w", err)
	}
	status.EventsFound = summary.RowCount
	if summary.HasRows {
		status.FromBlock = summary.MinBlock
	} else {
		status.FromBlock = s.genesis
	}
	status.LastUpdated = aaveliq.Now().Unix()

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal status: %w", err)
	}

	dir := filepath.Dir(s.statusPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "scan_status_tmp_*.json")
	if err != nil {
		return fmt.Errorf("checkpoint: tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: write status tempfile: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.statusPath)
}

// ReadStatus reads the last-written status, for CLI/UI consumers. It is
// never consulted for resume; only the CSV is authoritative.
func ReadStatus(statusPath string) (aaveliq.ScanStatus, error) {
	var status aaveliq.ScanStatus
	data, err := os.ReadFile(statusPath)
	if err != nil {
		return status, err
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return status, fmt.Errorf("checkpoint: unmarshal status: %w", err)
	}
	return status, nil
}
