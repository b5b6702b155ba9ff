// internal/document/types.go
package document

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrExists is returned when creating a file whose id is taken
	ErrExists = errors.New("file already exists")
	// ErrNotExist is returned when deleting a file that is not stored
	ErrNotExist = errors.New("file does not exist")
)

// File is the authoritative record for a shared document
type File struct {
	ID         string    `json:"id"`
	FileName   string    `json:"file_name"`
	Content    string    `json:"content"`
	Version    int       `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
	ModifiedBy string    `json:"modified_by"`
}

// Snapshot is the content of a file as of one version
type Snapshot struct {
	FileID  string `json:"file_id"`
	Version int    `json:"version"`
	Content string `json:"content"`
}

// Update is the write applied when a conflict is resolved
type Update struct {
	Content    string    `json:"content"`
	Version    int       `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
	ModifiedBy string    `json:"modified_by,omitempty"`
}

// Store is the persistence boundary the conflict engine depends on.
// GetFile and GetVersionSnapshot return (nil, nil) when nothing is stored.
type Store interface {
	GetFile(ctx context.Context, fileID string) (*File, error)
	GetVersionSnapshot(ctx context.Context, fileID string, version int) (*Snapshot, error)
	// UpdateFile must be atomic with respect to concurrent readers
	UpdateFile(ctx context.Context, fileID string, update Update) error
}

// Deleter is implemented by stores that can remove a file and its snapshots.
// DeleteFile returns ErrNotExist when nothing is stored under fileID.
type Deleter interface {
	DeleteFile(ctx context.Context, fileID string) error
}
