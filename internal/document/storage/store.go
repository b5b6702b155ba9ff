// internal/document/storage/store.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"concord/internal/document"
	apperrors "concord/internal/errors"
	"concord/internal/storage"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Options configures the document store
type Options struct {
	SnapshotCacheSize int // Number of decoded snapshots to cache
	CompressMinSize   int // Snapshots at least this large are zstd-compressed
	Logger            *zap.Logger
}

// Store keeps files and a snapshot of every version they have been written at
type Store struct {
	files     *storage.BadgerStore
	snapshots *storage.BadgerStore
	codec     *codec
	cache     *lru.Cache[string, string]
	logger    *zap.Logger
}

var _ document.Store = (*Store)(nil)

// NewStore creates a document store backed by db
func NewStore(db *badger.DB, opts Options) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}
	if opts.SnapshotCacheSize <= 0 {
		opts.SnapshotCacheSize = 256
	}
	if opts.CompressMinSize <= 0 {
		opts.CompressMinSize = 1024
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[string, string](opts.SnapshotCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	c, err := newCodec(opts.CompressMinSize)
	if err != nil {
		return nil, err
	}

	return &Store{
		files:     storage.NewBadgerStore(db, "file"),
		snapshots: storage.NewBadgerStore(db, "snapshot"),
		codec:     c,
		cache:     cache,
		logger:    opts.Logger,
	}, nil
}

// Close releases the compression codec. The database is owned by the caller.
func (s *Store) Close() {
	s.codec.close()
}

func snapshotID(fileID string, version int) string {
	return fileID + "@" + strconv.Itoa(version)
}

// fileEntity wraps document.File to implement storage.Entity
type fileEntity struct {
	*document.File
}

func (f *fileEntity) GetID() string {
	return f.ID
}

func validate(f *document.File) error {
	if f.ID == "" {
		return apperrors.ValidationError("id is required", nil)
	}
	// '@' separates the file id from the version in snapshot keys
	if strings.Contains(f.ID, "@") {
		return apperrors.ValidationError("id must not contain '@'", map[string]string{"id": f.ID})
	}
	if f.FileName == "" {
		return apperrors.ValidationError("file name is required", nil)
	}
	return nil
}

// CreateFile stores a new file at version 1 unless a version is given
func (s *Store) CreateFile(ctx context.Context, f *document.File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(f); err != nil {
		return err
	}

	if f.Version <= 0 {
		f.Version = 1
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = time.Now()
	}

	return s.files.DB().Update(func(txn *badger.Txn) error {
		if err := s.files.CreateTxn(txn, &fileEntity{File: f}); err != nil {
			if errors.Is(err, storage.ErrExists) {
				return fmt.Errorf("%w: %s", document.ErrExists, f.ID)
			}
			return err
		}
		return s.putSnapshotTxn(txn, f.ID, f.Version, f.Content)
	})
}

// DeleteFile removes a file together with every snapshot it has
func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.files.DB().Update(func(txn *badger.Txn) error {
		if err := s.files.DeleteTxn(txn, fileID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%w: %s", document.ErrNotExist, fileID)
			}
			return err
		}

		ids, err := s.snapshots.KeysTxn(txn, fileID+"@")
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.snapshots.DeleteTxn(txn, id); err != nil {
				return err
			}
			s.cache.Remove(id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting file %s: %w", fileID, err)
	}

	s.logger.Debug("file deleted", zap.String("file_id", fileID))
	return nil
}

// ListVersions returns the versions of fileID that have a snapshot, ascending
func (s *Store) ListVersions(ctx context.Context, fileID string) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, err := s.snapshots.Keys(fileID + "@")
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}

	versions := make([]int, 0, len(ids))
	for _, id := range ids {
		v, err := strconv.Atoi(strings.TrimPrefix(id, fileID+"@"))
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	// keys sort lexically, so "10" precedes "9"
	sort.Ints(versions)
	return versions, nil
}

func (s *Store) GetFile(ctx context.Context, fileID string) (*document.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var f document.File
	if err := s.files.Get(fileID, &f); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting file: %w", err)
	}
	return &f, nil
}

func (s *Store) ListFiles(ctx context.Context) ([]*document.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var files []*document.File
	if err := s.files.List(&files); err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

func (s *Store) GetVersionSnapshot(ctx context.Context, fileID string, version int) (*document.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := snapshotID(fileID, version)
	if content, ok := s.cache.Get(id); ok {
		return &document.Snapshot{FileID: fileID, Version: version, Content: content}, nil
	}

	data, err := s.snapshots.GetRaw(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}

	content, err := s.codec.decode(data)
	if err != nil {
		return nil, err
	}

	s.cache.Add(id, string(content))
	return &document.Snapshot{FileID: fileID, Version: version, Content: string(content)}, nil
}

// UpdateFile overwrites the file and records a snapshot of the new version
// in the same transaction.
func (s *Store) UpdateFile(ctx context.Context, fileID string, update document.Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.files.DB().Update(func(txn *badger.Txn) error {
		var f document.File
		if err := s.files.GetTxn(txn, fileID, &f); err != nil {
			return err
		}

		f.Content = update.Content
		f.Version = update.Version
		f.UpdatedAt = update.UpdatedAt
		if update.ModifiedBy != "" {
			f.ModifiedBy = update.ModifiedBy
		}

		if err := s.files.SetTxn(txn, fileID, &fileEntity{File: &f}); err != nil {
			return err
		}
		return s.putSnapshotTxn(txn, fileID, f.Version, f.Content)
	})
	if err != nil {
		return fmt.Errorf("updating file %s: %w", fileID, err)
	}

	s.logger.Debug("file updated",
		zap.String("file_id", fileID),
		zap.Int("version", update.Version),
	)
	return nil
}

func (s *Store) putSnapshotTxn(txn *badger.Txn, fileID string, version int, content string) error {
	id := snapshotID(fileID, version)
	if err := s.snapshots.SetRawTxn(txn, id, s.codec.encode([]byte(content))); err != nil {
		return fmt.Errorf("storing snapshot: %w", err)
	}
	// the cached value may be stale if a version is ever rewritten
	s.cache.Remove(id)
	return nil
}
