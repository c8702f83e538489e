// Package report writes reconciliation audit trails as Parquet files, one
// row per duplicate-pair decision. The files are the offline record of
// what a maintenance run merged, skipped, or failed on.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Decision labels a pair's outcome in the audit trail.
const (
	DecisionMerged   = "merged"
	DecisionSkipped  = "skipped"
	DecisionDistinct = "distinct"
	DecisionFailed   = "failed"
	DecisionPlanned  = "planned" // dry runs record the plan without applying it
)

// PairRecord is one duplicate-pair decision for Parquet storage.
type PairRecord struct {
	RunID         string    `parquet:"run_id"`
	GroupID       string    `parquet:"group_id"`
	ClusterKey    string    `parquet:"cluster_key"`
	DuplicateUuid string    `parquet:"duplicate_uuid"`
	DuplicateName string    `parquet:"duplicate_name"`
	CanonicalUuid string    `parquet:"canonical_uuid"`
	CanonicalName string    `parquet:"canonical_name"`
	Decision      string    `parquet:"decision"`
	Reason        string    `parquet:"reason"`
	Confidence    float64   `parquet:"confidence"`
	JudgeUsed     bool      `parquet:"judge_used"`
	Timestamp     time.Time `parquet:"timestamp"`
}

// Writer buffers pair records and flushes them to timestamped Parquet
// files in an output directory.
type Writer struct {
	outputDir string
	runID     string

	mu        sync.Mutex
	buffer    []PairRecord
	batchSize int
	written   int
}

// NewWriter creates the output directory and a writer for one run.
func NewWriter(outputDir, runID string) (*Writer, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	return &Writer{
		outputDir: outputDir,
		runID:     runID,
		batchSize: 1000,
		buffer:    make([]PairRecord, 0, 1000),
	}, nil
}

// Record buffers one decision, stamping the run id and time.
func (w *Writer) Record(record PairRecord) error {
	record.RunID = w.runID
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, record)
	if len(w.buffer) >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Written reports how many records have been flushed to disk.
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes any buffered records.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush()
}

// flush writes the buffer to a new Parquet file. Caller holds the lock.
func (w *Writer) flush() error {
	if len(w.buffer) == 0 {
		return nil
	}

	filename := fmt.Sprintf("reconcile_audit_%s_%s_%d.parquet",
		w.runID, time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(w.outputDir, filename)

	if err := parquet.WriteFile(path, w.buffer); err != nil {
		return fmt.Errorf("writing audit parquet file: %w", err)
	}

	w.written += len(w.buffer)
	w.buffer = w.buffer[:0]
	return nil
}
