// Package filestore implements storage.Backend with one JSON file per record.
// Active records live in records/, soft-deleted ones in recycle/. File names
// are derived from the record's type, brand, color and key, so the directory
// can be browsed and edited by hand.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/Pixelplanet/FilamentDB-sub000/internal/client/storage"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/crdt"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/models"
	"github.com/Pixelplanet/FilamentDB-sub000/internal/validation"
)

const (
	// RecordsDir holds active records
	RecordsDir = "records"
	// RecycleDir holds soft-deleted records
	RecycleDir = "recycle"

	tempPrefix = ".tmp-"
)

var _ storage.Backend = (*Store)(nil)

// Store is a file-per-record backend on top of an afero filesystem
type Store struct {
	fs     afero.Fs
	clock  crdt.Clock
	logger *slog.Logger
	// written хранит хеш содержимого, записанного самим Store, по пути файла
	written map[string][sha256.Size]byte
	root    string
	mu      sync.Mutex
}

// Option configures Store
type Option func(*Store)

// WithClock sets the clock used for MutatedAt on soft delete and restore
func WithClock(clock crdt.Clock) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates the directory layout under root and returns the store
func New(fsys afero.Fs, root string, opts ...Option) (*Store, error) {
	s := &Store{
		fs:      fsys,
		root:    root,
		clock:   crdt.NewMutationClock(),
		logger:  slog.Default(),
		written: make(map[string][sha256.Size]byte),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, dir := range []string{RecordsDir, RecycleDir} {
		if err := s.fs.MkdirAll(filepath.Join(root, dir), 0o700); err != nil {
			return nil, fsError("create directory", err)
		}
	}

	return s, nil
}

// Root returns the base directory of the store
func (s *Store) Root() string {
	return s.root
}

// Get returns the record from records/ or recycle/
func (s *Store) Get(ctx context.Context, key string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dir := range []string{RecordsDir, RecycleDir} {
		_, rec, err := s.locate(dir, key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}

	return nil, storage.ErrNotFound
}

// List returns all active records
func (s *Store) List(ctx context.Context) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readDir(ctx, RecordsDir)
}

// ListDeleted returns all records in recycle/
func (s *Store) ListDeleted(ctx context.Context) ([]*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readDir(ctx, RecycleDir)
}

// Put writes the record into the directory matching its Deleted flag and
// removes any other file holding the same key
func (s *Store) Put(ctx context.Context, record *models.Record) error {
	if err := validation.ValidateRecord(record); err != nil {
		return fmt.Errorf("%w: %w", storage.ErrInvalidData, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(record)
}

// SoftDelete moves the record to recycle/ with a fresh MutatedAt
func (s *Store) SoftDelete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, rec, err := s.locate(RecordsDir, key)
	if err != nil {
		return err
	}
	if rec == nil {
		// Повторное удаление ничего не меняет
		_, recycled, err := s.locate(RecycleDir, key)
		if err != nil {
			return err
		}
		if recycled != nil {
			return nil
		}
		return storage.ErrNotFound
	}

	rec.Deleted = true
	rec.MutatedAt = crdt.NextAfter(s.clock, rec.MutatedAt)

	return s.write(rec)
}

// Restore moves a recycled record back to records/ with a fresh MutatedAt
func (s *Store) Restore(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, rec, err := s.locate(RecycleDir, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return storage.ErrNotFound
	}

	rec.Deleted = false
	rec.MutatedAt = crdt.NextAfter(s.clock, rec.MutatedAt)

	return s.write(rec)
}

// Purge removes the record file from recycle/
func (s *Store) Purge(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, rec, err := s.locate(RecycleDir, key)
	if err != nil {
		return err
	}
	if rec == nil {
		return storage.ErrNotFound
	}

	if err := s.remove(path); err != nil {
		return fsError("remove record file", err)
	}
	return nil
}

// Touch handles a record file changed outside the store. When the content
// differs from what the store wrote last, the record gets a fresh MutatedAt
// and is rewritten, so the next sync uploads it. Returns true if the file
// was restamped. Missing, foreign and unreadable files are skipped.
func (s *Store) Touch(ctx context.Context, path string) (bool, error) {
	dir := filepath.Base(filepath.Dir(path))
	if filepath.Dir(filepath.Dir(path)) != filepath.Clean(s.root) || (dir != RecordsDir && dir != RecycleDir) {
		return false, nil
	}
	name := filepath.Base(path)
	if strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, validation.RecordFileExt) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			delete(s.written, path)
			return false, nil
		}
		return false, fsError("read record file", err)
	}
	if sum, ok := s.written[path]; ok && sum == sha256.Sum256(data) {
		return false, nil
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.WarnContext(ctx, "skipping unreadable record file", "path", path, "error", err)
		return false, nil
	}
	// Перенос файла между records/ и recycle/ равносилен удалению или восстановлению
	rec.Deleted = dir == RecycleDir
	if err := validation.ValidateRecord(&rec); err != nil {
		s.logger.WarnContext(ctx, "skipping invalid record file", "path", path, "error", err)
		return false, nil
	}

	rec.MutatedAt = crdt.NextAfter(s.clock, rec.MutatedAt)
	if err := s.write(&rec); err != nil {
		return false, err
	}
	// Если в файле сменили ключ, запись переехала под новое имя
	if s.targetPath(&rec) != path {
		if err := s.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fsError("remove renamed record file", err)
		}
	}

	s.logger.DebugContext(ctx, "record file edited by hand", "key", rec.Key, "path", path)
	return true, nil
}

// ExportAll returns a zip archive of all active records
func (s *Store) ExportAll(ctx context.Context) ([]byte, error) {
	return storage.ExportArchive(ctx, s.List)
}

// ImportAll writes records from an archive, keeping newer local versions
func (s *Store) ImportAll(ctx context.Context, blob []byte) (*storage.ImportResult, error) {
	return storage.ImportArchive(ctx, blob, s, s.clock)
}

// write сохраняет запись под ее текущим именем файла и удаляет
// прежние файлы с тем же ключом. Вызывается под s.mu.
func (s *Store) write(record *models.Record) error {
	target := s.targetPath(record)

	existing, err := s.readFile(target)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if existing != nil && existing.Key != record.Key {
		return fmt.Errorf("%w: file %s already holds record %q", storage.ErrDuplicate, filepath.Base(target), existing.Key)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal record: %w", storage.ErrInvalidData, err)
	}

	if err := s.writeAtomic(target, data); err != nil {
		return err
	}

	// Имя файла могло измениться вместе с полями или пространством имен
	for _, d := range []string{RecordsDir, RecycleDir} {
		paths, err := s.candidates(d, record.Key)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if p == target {
				continue
			}
			rec, err := s.readFile(p)
			if err != nil || rec.Key != record.Key {
				continue
			}
			if err := s.remove(p); err != nil {
				return fsError("remove stale record file", err)
			}
		}
	}

	return nil
}

// targetPath возвращает путь файла, под которым запись должна храниться
func (s *Store) targetPath(record *models.Record) string {
	dir := RecordsDir
	if record.Deleted {
		dir = RecycleDir
	}
	return filepath.Join(s.root, dir, validation.RecordFileName(record))
}

// writeAtomic пишет во временный файл и переименовывает его в target
func (s *Store) writeAtomic(target string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(target), tempPrefix+"*")
	if err != nil {
		return fsError("create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fsError("write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fsError("close temp file", err)
	}

	if err := s.fs.Rename(tmpName, target); err != nil {
		_ = s.fs.Remove(tmpName)
		return fsError("rename temp file", err)
	}
	s.written[target] = sha256.Sum256(data)

	return nil
}

func (s *Store) remove(path string) error {
	delete(s.written, path)
	return s.fs.Remove(path)
}

// locate находит файл записи с ключом key в директории dir.
// Возвращает nil запись, если ключ не найден.
func (s *Store) locate(dir, key string) (string, *models.Record, error) {
	paths, err := s.candidates(dir, key)
	if err != nil {
		return "", nil, err
	}

	for _, p := range paths {
		rec, err := s.readFile(p)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			s.logger.Warn("skipping unreadable record file", "path", p, "error", err)
			continue
		}
		if rec.Key == key {
			return p, rec, nil
		}
	}

	return "", nil, nil
}

// candidates возвращает файлы dir, чье имя оканчивается сегментом ключа
func (s *Store) candidates(dir, key string) ([]string, error) {
	suffix := "-" + validation.KeySegment(key) + validation.RecordFileExt

	infos, err := afero.ReadDir(s.fs, filepath.Join(s.root, dir))
	if err != nil {
		return nil, fsError("read directory", err)
	}

	var paths []string
	for _, info := range infos {
		if isRecordFile(info) && strings.HasSuffix(info.Name(), suffix) {
			paths = append(paths, filepath.Join(s.root, dir, info.Name()))
		}
	}
	return paths, nil
}

func (s *Store) readDir(ctx context.Context, dir string) ([]*models.Record, error) {
	infos, err := afero.ReadDir(s.fs, filepath.Join(s.root, dir))
	if err != nil {
		return nil, fsError("read directory", err)
	}

	records := make([]*models.Record, 0, len(infos))
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isRecordFile(info) {
			continue
		}

		p := filepath.Join(s.root, dir, info.Name())
		rec, err := s.readFile(p)
		if err != nil {
			if storage.KindOf(err) == storage.KindInvalidData {
				s.logger.WarnContext(ctx, "skipping unreadable record file", "path", p, "error", err)
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

func (s *Store) readFile(path string) (*models.Record, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fsError("read record file", err)
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrInvalidData, filepath.Base(path), err)
	}
	return &rec, nil
}

func isRecordFile(info os.FileInfo) bool {
	name := info.Name()
	return !info.IsDir() &&
		!strings.HasPrefix(name, tempPrefix) &&
		strings.HasSuffix(name, validation.RecordFileExt)
}

// fsError переводит ошибку файловой системы в таксономию storage
func fsError(op string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: failed to %s: %w", storage.ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%w: failed to %s: %w", storage.ErrFilesystem, op, err)
}
