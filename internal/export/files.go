package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lifelog/internal/log"
	"lifelog/internal/sheets"
)

// PairDelay separates the two files of a pair.
const PairDelay = 500 * time.Millisecond

// File is one table bound for disk or a spreadsheet.
type File struct {
	Kind  string
	Table Table
}

// FileName returns "{kind}_{YYYY-MM-DD}.csv" for the UTC date of now.
func FileName(kind string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", kind, now.UTC().Format(time.DateOnly))
}

type Writer struct {
	dir    string
	delay  time.Duration
	now    func() time.Time
	logger *log.Logger
}

func NewWriter(dir string, logger *log.Logger) *Writer {
	return &Writer{dir: dir, delay: PairDelay, now: time.Now, logger: logger.OrDefault(log.ComponentExport)}
}

// WithDelay overrides the delay between the files of a pair.
func (w *Writer) WithDelay(d time.Duration) *Writer {
	w.delay = d
	return w
}

func (w *Writer) WithClock(now func() time.Time) *Writer {
	w.now = now
	return w
}

// WritePair writes first, waits the pair delay, then writes second. It
// returns the paths written.
func (w *Writer) WritePair(ctx context.Context, first, second File) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	now := w.now()
	p1, err := w.write(first, now)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(w.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return []string{p1}, ctx.Err()
	case <-timer.C:
	}

	p2, err := w.write(second, now)
	if err != nil {
		return []string{p1}, err
	}
	w.logger.InfoContext(ctx, "Export written", log.FieldOperation, log.OpExport, log.FieldFile, p1, "second_file", p2)
	return []string{p1, p2}, nil
}

// write renders f into a temporary file and renames it into place.
func (w *Writer) write(f File, now time.Time) (string, error) {
	path := filepath.Join(w.dir, FileName(f.Kind, now))
	tmp, err := os.CreateTemp(w.dir, "."+f.Kind+"-*.csv")
	if err != nil {
		return "", fmt.Errorf("create %s: %w", f.Kind, err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteCSV(tmp, f.Table); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", f.Kind, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", f.Kind, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename %s: %w", f.Kind, err)
	}
	return path, nil
}

// ToSheets appends the header and rows of every file to the sheet named
// after its kind.
func ToSheets(ctx context.Context, dst sheets.RowAppender, files ...File) error {
	for _, f := range files {
		rows := make([][]string, 0, f.Table.Lines())
		rows = append(rows, f.Table.Header)
		rows = append(rows, f.Table.Rows...)
		if err := dst.AppendRows(ctx, f.Kind, rows); err != nil {
			return fmt.Errorf("export %s to sheets: %w", f.Kind, err)
		}
	}
	return nil
}
