// internal/conflict/record.go
package conflict

import (
	"time"

	"concord/internal/diff"
	apperrors "concord/internal/errors"
	"concord/internal/merge"

	"github.com/google/uuid"
)

// Kind classifies a conflict. Only VersionMismatch is produced today.
type Kind string

const (
	VersionMismatch Kind = "version_mismatch"
	ConcurrentEdit  Kind = "concurrent_edit"
	DeleteModify    Kind = "delete_modify"
	BinaryConflict  Kind = "binary_conflict"
)

// Strategy is how a conflict is resolved
type Strategy string

const (
	UseMine   Strategy = "use-mine"
	UseTheirs Strategy = "use-theirs"
	Merge     Strategy = "merge"
	AutoMerge Strategy = "auto-merge"
)

// ParseStrategy validates s as a resolution strategy
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case UseMine, UseTheirs, Merge, AutoMerge:
		return st, nil
	default:
		return "", apperrors.UnknownStrategy(s)
	}
}

// Resolution is the terminal outcome of a conflict
type Resolution struct {
	Strategy      Strategy `json:"strategy"`
	MergedContent *string  `json:"merged_content,omitempty"`
	// Content is what gets written back to the store
	Content string `json:"content"`
}

// Record captures one conflict between the stored content of a file and a
// write that was based on an older version.
type Record struct {
	ID       string `json:"id"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Kind     Kind   `json:"kind"`

	CurrentVersion  int `json:"current_version"`
	ExpectedVersion int `json:"expected_version"`

	CurrentContent string  `json:"current_content"`
	NewContent     string  `json:"new_content"`
	BaseContent    *string `json:"base_content,omitempty"`

	CurrentModifiedAt time.Time `json:"current_modified_at"`
	CurrentModifiedBy string    `json:"current_modified_by"`
	NewModifiedAt     time.Time `json:"new_modified_at"`
	NewModifiedBy     string    `json:"new_modified_by"`

	Diff            *diff.Result  `json:"diff,omitempty"`
	ConflictMarkers string        `json:"conflict_markers,omitempty"`
	AutoMergeResult *merge.Result `json:"auto_merge_result,omitempty"`

	Resolved   bool        `json:"resolved"`
	Resolution *Resolution `json:"resolution"`
	ResolvedAt *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy string      `json:"resolved_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	markersGenerated bool
}

// recordParams holds the provenance captured at detection time
type recordParams struct {
	FileID            string
	FileName          string
	CurrentVersion    int
	ExpectedVersion   int
	CurrentContent    string
	NewContent        string
	BaseContent       *string
	CurrentModifiedAt time.Time
	CurrentModifiedBy string
	NewModifiedBy     string
}

func newRecord(p recordParams, now time.Time) *Record {
	return &Record{
		ID:                uuid.New().String(),
		FileID:            p.FileID,
		FileName:          p.FileName,
		Kind:              VersionMismatch,
		CurrentVersion:    p.CurrentVersion,
		ExpectedVersion:   p.ExpectedVersion,
		CurrentContent:    p.CurrentContent,
		NewContent:        p.NewContent,
		BaseContent:       p.BaseContent,
		CurrentModifiedAt: p.CurrentModifiedAt,
		CurrentModifiedBy: p.CurrentModifiedBy,
		NewModifiedAt:     now,
		NewModifiedBy:     p.NewModifiedBy,
		CreatedAt:         now,
	}
}

// GenerateDiff computes the positional diff of current against new content.
// The result is memoized.
func (r *Record) GenerateDiff() *diff.Result {
	if r.Diff == nil {
		r.Diff = diff.Diff(r.CurrentContent, r.NewContent)
	}
	return r.Diff
}

// GenerateConflictMarkers renders a whole-buffer two-way preview. The result
// is memoized.
func (r *Record) GenerateConflictMarkers() string {
	if !r.markersGenerated {
		r.ConflictMarkers = merge.TwoWay(r.CurrentContent, r.NewContent)
		r.markersGenerated = true
	}
	return r.ConflictMarkers
}

// AutoMerge runs the three-way merge with the current content as "mine" and
// the proposed content as "theirs".
func (r *Record) AutoMerge() merge.Result {
	res := merge.Auto(r.BaseContent, r.CurrentContent, r.NewContent)
	r.AutoMergeResult = &res
	return res
}

// Resolve is the terminal transition of a record. merge requires
// mergedContent; auto-merge falls back to a clean auto-merge result when
// mergedContent is nil.
func (r *Record) Resolve(strategy Strategy, mergedContent *string, resolvedBy string, at time.Time) (*Resolution, error) {
	if r.Resolved {
		return nil, apperrors.AlreadyResolved("conflict already resolved: " + r.ID)
	}

	res := &Resolution{Strategy: strategy, MergedContent: mergedContent}
	switch strategy {
	case UseMine:
		res.Content = r.CurrentContent
	case UseTheirs:
		res.Content = r.NewContent
	case Merge:
		if mergedContent == nil {
			return nil, apperrors.ValidationError("merged content is required for strategy merge", nil)
		}
		res.Content = *mergedContent
	case AutoMerge:
		switch {
		case mergedContent != nil:
			res.Content = *mergedContent
		case r.AutoMergeResult != nil && r.AutoMergeResult.Success:
			merged := r.AutoMergeResult.MergedContent
			res.MergedContent = &merged
			res.Content = merged
		default:
			return nil, apperrors.ValidationError("merged content is required: auto-merge did not succeed", nil)
		}
	default:
		return nil, apperrors.UnknownStrategy(string(strategy))
	}

	resolvedAt := at
	r.Resolved = true
	r.Resolution = res
	r.ResolvedAt = &resolvedAt
	r.ResolvedBy = resolvedBy
	return res, nil
}

// clone copies r. Diff and merge results are never mutated once computed, so
// they are shared.
func (r *Record) clone() *Record {
	c := *r
	if r.Resolution != nil {
		res := *r.Resolution
		c.Resolution = &res
	}
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		c.ResolvedAt = &at
	}
	if r.AutoMergeResult != nil {
		mr := *r.AutoMergeResult
		c.AutoMergeResult = &mr
	}
	return &c
}
