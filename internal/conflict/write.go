// internal/conflict/write.go
package conflict

import (
	"context"
	"errors"
	"fmt"

	"concord/internal/document"
	apperrors "concord/internal/errors"
	"concord/internal/merge"

	"go.uber.org/zap"
)

// WriteResult reports whether a write was committed. A write based on a
// stale version is not committed and carries the conflict it raised.
type WriteResult struct {
	Committed       bool          `json:"committed"`
	NewVersion      int           `json:"new_version,omitempty"`
	Conflict        *Record       `json:"conflict,omitempty"`
	AutoMergeResult *merge.Result `json:"auto_merge_result,omitempty"`
}

// Write commits p.Content at version+1 when p.Version matches the stored
// version. On mismatch it records a conflict exactly as DetectConflict does
// and leaves the file untouched. Writes are refused while the file has an
// unresolved conflict, because resolving it writes over the same version.
func (e *Engine) Write(ctx context.Context, p DetectParams) (*WriteResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p.FileID == "" {
		return nil, apperrors.ValidationError("file id is required", nil)
	}
	if p.Version == nil {
		return nil, apperrors.ValidationError("version is required", map[string]string{"file_id": p.FileID})
	}

	unlock := e.locks.Lock(p.FileID)
	defer unlock()

	current, err := e.store.GetFile(ctx, p.FileID)
	if err != nil {
		return nil, fmt.Errorf("loading file %s: %w", p.FileID, err)
	}
	if current == nil {
		return nil, apperrors.NotFound("file not found: " + p.FileID)
	}

	if *p.Version != current.Version {
		det, err := e.recordConflict(ctx, p, current, *p.Version)
		if err != nil {
			return nil, err
		}
		return &WriteResult{Conflict: det.Conflict, AutoMergeResult: det.AutoMergeResult}, nil
	}

	if existing, ok := e.Active(p.FileID); ok {
		return nil, apperrors.ConflictPending("resolve the pending conflict before writing: "+p.FileID, map[string]string{
			"file_id":     p.FileID,
			"conflict_id": existing.ID,
		})
	}

	newVersion := current.Version + 1
	err = e.store.UpdateFile(ctx, p.FileID, document.Update{
		Content:    p.Content,
		Version:    newVersion,
		UpdatedAt:  e.opts.Now(),
		ModifiedBy: p.ModifiedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("writing file %s: %w", p.FileID, err)
	}

	e.metrics.WriteCommitted()
	e.logger.Info("write committed",
		zap.String("file_id", p.FileID),
		zap.Int("new_version", newVersion),
		zap.String("modified_by", p.ModifiedBy),
	)

	return &WriteResult{Committed: true, NewVersion: newVersion}, nil
}

// DeleteFile removes a file and its version history. A file with an
// unresolved conflict cannot be deleted.
func (e *Engine) DeleteFile(ctx context.Context, fileID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if fileID == "" {
		return apperrors.ValidationError("file id is required", nil)
	}
	d, ok := e.store.(document.Deleter)
	if !ok {
		return errors.New("store does not support deletion")
	}

	unlock := e.locks.Lock(fileID)
	defer unlock()

	if existing, ok := e.Active(fileID); ok {
		return apperrors.ConflictPending("resolve the pending conflict before deleting: "+fileID, map[string]string{
			"file_id":     fileID,
			"conflict_id": existing.ID,
		})
	}

	if err := d.DeleteFile(ctx, fileID); err != nil {
		if errors.Is(err, document.ErrNotExist) {
			return apperrors.NotFound("file not found: " + fileID)
		}
		return fmt.Errorf("deleting file %s: %w", fileID, err)
	}

	e.logger.Info("file deleted", zap.String("file_id", fileID))
	return nil
}
