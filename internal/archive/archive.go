// Package archive encodes record sets into the zip archive used by export and
// import. Every active record is stored as one JSON document named after the
// record's sanitized file name, so an exported archive unpacks into the same
// layout the file-per-record backend uses on disk.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/validation"
)

// recordsDir is the directory inside the archive holding record documents.
const recordsDir = "records"

// maxEntrySize bounds a single decompressed record document.
const maxEntrySize = 1 << 20

// ErrMalformedArchive is returned when the blob is not a readable zip archive.
var ErrMalformedArchive = errors.New("malformed archive")

// Result reports the outcome of an import.
type Result struct {
	Errors   []string `json:"errors"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
}

// Entry is one decoded archive member. Err is set when the member could not
// be parsed into a record; Record is nil in that case.
type Entry struct {
	Record *models.Record
	Err    error
	Name   string
}

// Target is the write side of an import.
type Target interface {
	// Lookup returns the existing record for key, or found=false.
	Lookup(ctx context.Context, key string) (rec *models.Record, found bool, err error)
	Put(ctx context.Context, rec *models.Record) error
}

// Encode writes records into a zip archive, ordered by key.
func Encode(records []*models.Record) ([]byte, error) {
	sorted := make([]*models.Record, 0, len(records))
	for _, r := range records {
		if r != nil {
			sorted = append(sorted, r)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	used := make(map[string]int)

	for _, r := range sorted {
		name := uniqueName(used, validation.RecordFileName(r))

		w, err := zw.Create(path.Join(recordsDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to create archive entry %s: %w", name, err)
		}

		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal record %s: %w", r.Key, err)
		}

		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

// Decode parses an archive. A blob that is not a zip archive is an error;
// problems with individual members are reported per entry.
func Decode(blob []byte) ([]Entry, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedArchive, err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, validation.RecordFileExt) {
			continue
		}

		rec, err := readRecord(f)
		entries = append(entries, Entry{Name: f.Name, Record: rec, Err: err})
	}

	return entries, nil
}

// Import decodes blob and writes its records into target.
// An invalid member or a key repeated inside the archive is counted as an
// error; a member that is not newer than the existing record is skipped.
// The comparison uses the archived MutatedAt. A written record is then
// stamped by clock as a fresh local change; a nil clock keeps the archived value.
func Import(ctx context.Context, blob []byte, target Target, clock crdt.Clock) (*Result, error) {
	entries, err := Decode(blob)
	if err != nil {
		return nil, err
	}

	result := &Result{Errors: []string{}}
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if e.Err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", e.Name, e.Err))
			continue
		}

		if err := validation.ValidateRecord(e.Record); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", e.Name, err))
			continue
		}

		if seen[e.Record.Key] {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: duplicate key %q in archive", e.Name, e.Record.Key))
			continue
		}
		seen[e.Record.Key] = true

		existing, found, err := target.Lookup(ctx, e.Record.Key)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", e.Name, err))
			continue
		}

		if found && existing.MutatedAt >= e.Record.MutatedAt {
			result.Skipped++
			continue
		}

		record := e.Record.Clone()
		if clock != nil {
			record.MutatedAt = crdt.NextAfter(clock, record.MutatedAt)
		}

		if err := target.Put(ctx, record); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", e.Name, err))
			continue
		}

		result.Imported++
	}

	return result, nil
}

func readRecord(f *zip.File) (*models.Record, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry: %w", err)
	}
	defer func() {
		_ = rc.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	if len(data) > maxEntrySize {
		return nil, fmt.Errorf("entry exceeds %d bytes", maxEntrySize)
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &rec, nil
}

func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	base := strings.TrimSuffix(name, validation.RecordFileExt)
	return fmt.Sprintf("%s-%d%s", base, n+1, validation.RecordFileExt)
}
