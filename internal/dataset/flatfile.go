package dataset

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// rowGroupSize is how many records each flat-file partition holds.
const rowGroupSize = 5000

// FlatFileWriter stores each dataset as a directory of JSON-lines
// partitions. It has no external dependencies, which is the point: it is
// the engine of last resort when the primary store cannot be opened.
type FlatFileWriter struct {
	dir string
}

// NewFlatFile creates a flat-file engine rooted at dir.
func NewFlatFile(dir string) (*FlatFileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "dataset: create dir")
	}
	return &FlatFileWriter{dir: dir}, nil
}

func (w *FlatFileWriter) datasetDir(name string) string {
	return filepath.Join(w.dir, name)
}

func (w *FlatFileWriter) Write(ctx context.Context, name string, records []model.Record) (Info, error) {
	if name == "" {
		return Info{}, eris.New("dataset: empty dataset name")
	}
	dir := w.datasetDir(name)
	if err := os.RemoveAll(dir); err != nil {
		return Info{}, eris.Wrap(err, "dataset: clear previous")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, eris.Wrap(err, "dataset: create dataset dir")
	}

	for part := 0; part*rowGroupSize < len(records) || (part == 0 && len(records) == 0); part++ {
		if err := ctx.Err(); err != nil {
			return Info{}, err
		}
		lo := part * rowGroupSize
		hi := min(lo+rowGroupSize, len(records))
		if err := writePartition(filepath.Join(dir, partitionName(part)), records[lo:hi]); err != nil {
			return Info{}, err
		}
		if len(records) == 0 {
			break
		}
	}

	zap.L().Debug("dataset: flat-file dataset written",
		zap.String("name", name),
		zap.Int("records", len(records)),
	)
	return Info{Name: name, Path: dir, Records: len(records), CreatedAt: time.Now().UTC()}, nil
}

func partitionName(part int) string {
	return fmt.Sprintf("part-%05d.jsonl", part)
}

func writePartition(path string, records []model.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "dataset: create partition")
	}
	defer f.Close() //nolint:errcheck

	bw := bufio.NewWriter(f)
	enc := json.NewEncoder(bw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return eris.Wrap(err, "dataset: encode record")
		}
	}
	if err := bw.Flush(); err != nil {
		return eris.Wrap(err, "dataset: flush partition")
	}
	return eris.Wrap(f.Sync(), "dataset: sync partition")
}

func (w *FlatFileWriter) Read(ctx context.Context, name string) ([]model.Record, error) {
	dir := w.datasetDir(name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: %q not found", name)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".jsonl" {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []model.Record
	for _, fname := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := readPartition(filepath.Join(dir, fname))
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func readPartition(path string) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open partition")
	}
	defer f.Close() //nolint:errcheck

	var out []model.Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec model.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, eris.Wrap(err, "dataset: decode record")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(scanner.Err(), "dataset: scan partition")
}

func (w *FlatFileWriter) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read root dir")
	}

	var out []Info
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := w.describe(e.Name())
		if err != nil {
			zap.L().Warn("dataset: skipping unreadable dataset dir",
				zap.String("name", e.Name()),
				zap.Error(err),
			)
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (w *FlatFileWriter) describe(name string) (Info, error) {
	dir := w.datasetDir(name)
	stat, err := os.Stat(dir)
	if err != nil {
		return Info{}, eris.Wrap(err, "dataset: stat")
	}

	records, err := w.Read(context.Background(), name)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:      name,
		Path:      dir,
		Records:   len(records),
		CreatedAt: stat.ModTime().UTC(),
	}, nil
}

func (w *FlatFileWriter) Delete(_ context.Context, name string) error {
	dir := w.datasetDir(name)
	if _, err := os.Stat(dir); err != nil {
		return eris.Errorf("dataset: %q not found", name)
	}
	return eris.Wrap(os.RemoveAll(dir), "dataset: delete")
}

func (w *FlatFileWriter) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, eris.Wrap(err, "dataset: read root dir")
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(olderThan) {
			if err := os.RemoveAll(filepath.Join(w.dir, e.Name())); err != nil {
				return removed, eris.Wrap(err, "dataset: cleanup remove")
			}
			removed++
		}
	}
	return removed, nil
}

func (w *FlatFileWriter) Close() error { return nil }
