// internal/conflict/engine.go
package conflict

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"concord/internal/document"
	apperrors "concord/internal/errors"
	"concord/internal/events"
	"concord/internal/merge"
	"concord/internal/metrics"

	"go.uber.org/zap"
)

// DefaultHistoryLimit is the page size used when no history limit is given
const DefaultHistoryLimit = 50

// PendingPolicy decides what detection does when the file already has an
// unresolved conflict.
type PendingPolicy string

const (
	// PendingReject fails detection with a CONFLICT_PENDING error
	PendingReject PendingPolicy = "reject"
	// PendingOverwrite replaces the outstanding record
	PendingOverwrite PendingPolicy = "overwrite"
)

// Options configures an Engine
type Options struct {
	Logger  *zap.Logger
	Sink    events.Sink
	Metrics *metrics.Collector

	// RequireExpectedVersion makes an omitted expected version a validation
	// error. When false an omitted version equals the stored one, so no
	// conflict can be detected.
	RequireExpectedVersion bool
	PendingPolicy          PendingPolicy
	// MaxHistory caps retained history; 0 keeps everything
	MaxHistory int

	Now func() time.Time
}

// DetectParams is a proposed write
type DetectParams struct {
	FileID  string `json:"file_id"`
	Content string `json:"content"`
	// Version is the version the writer based its content on
	Version    *int   `json:"version,omitempty"`
	ModifiedBy string `json:"modified_by"`
}

type DetectResult struct {
	HasConflict     bool          `json:"has_conflict"`
	Conflict        *Record       `json:"conflict,omitempty"`
	AutoMergeResult *merge.Result `json:"auto_merge_result,omitempty"`
}

type ResolveResult struct {
	Success    bool   `json:"success"`
	Content    string `json:"content"`
	NewVersion int    `json:"new_version"`
}

// Engine detects stale writes against the store and tracks conflicts until
// they are resolved. Calls for the same file are serialized.
type Engine struct {
	store   document.Store
	sink    events.Sink
	metrics *metrics.Collector
	logger  *zap.Logger
	opts    Options
	locks   *keyLock

	mu      sync.RWMutex
	active  map[string]*Record
	history []*Record
}

type nopSink struct{}

func (nopSink) Emit(context.Context, events.Event) {}

// NewEngine creates an engine over store. A nil store is accepted so that
// the process can start; every call then fails with NOT_INITIALIZED.
func NewEngine(store document.Store, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if opts.PendingPolicy == "" {
		opts.PendingPolicy = PendingReject
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Engine{
		store:   store,
		sink:    opts.Sink,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		opts:    opts,
		locks:   newKeyLock(),
		active:  make(map[string]*Record),
	}
}

func (e *Engine) ready() error {
	if e.store == nil {
		return apperrors.NotInitialized("conflict engine has no store")
	}
	return nil
}

// DetectConflict compares the writer's expected version with the stored one.
// On mismatch it records a conflict, attempts an auto-merge and emits
// conflict-detected. Store errors abort detection before any record exists.
func (e *Engine) DetectConflict(ctx context.Context, p DetectParams) (*DetectResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if p.FileID == "" {
		return nil, apperrors.ValidationError("file id is required", nil)
	}

	unlock := e.locks.Lock(p.FileID)
	defer unlock()

	current, err := e.store.GetFile(ctx, p.FileID)
	if err != nil {
		return nil, fmt.Errorf("loading file %s: %w", p.FileID, err)
	}
	if current == nil {
		return &DetectResult{HasConflict: false}, nil
	}

	expected, err := e.expectedVersion(p, current)
	if err != nil {
		return nil, err
	}
	if expected == current.Version {
		return &DetectResult{HasConflict: false}, nil
	}

	return e.recordConflict(ctx, p, current, expected)
}

func (e *Engine) expectedVersion(p DetectParams, current *document.File) (int, error) {
	if p.Version != nil {
		return *p.Version, nil
	}
	if e.opts.RequireExpectedVersion {
		return 0, apperrors.ValidationError("expected version is required", map[string]string{"file_id": p.FileID})
	}
	return current.Version, nil
}

// recordConflict builds and stores the record for a stale write. The caller
// holds the file's lock.
func (e *Engine) recordConflict(ctx context.Context, p DetectParams, current *document.File, expected int) (*DetectResult, error) {
	if existing, ok := e.Active(p.FileID); ok {
		if e.opts.PendingPolicy == PendingReject {
			return nil, apperrors.ConflictPending("conflict already pending for file: "+p.FileID, map[string]string{
				"file_id":     p.FileID,
				"conflict_id": existing.ID,
			})
		}
		e.logger.Warn("overwriting pending conflict",
			zap.String("file_id", p.FileID),
			zap.String("conflict_id", existing.ID),
		)
	}

	rec := newRecord(recordParams{
		FileID:            p.FileID,
		FileName:          current.FileName,
		CurrentVersion:    current.Version,
		ExpectedVersion:   expected,
		CurrentContent:    current.Content,
		NewContent:        p.Content,
		BaseContent:       e.baseVersion(ctx, p.FileID, expected),
		CurrentModifiedAt: current.UpdatedAt,
		CurrentModifiedBy: current.ModifiedBy,
		NewModifiedBy:     p.ModifiedBy,
	}, e.opts.Now())

	rec.GenerateDiff()
	rec.GenerateConflictMarkers()
	mr := rec.AutoMerge()

	e.mu.Lock()
	e.active[p.FileID] = rec
	e.metrics.SetActive(len(e.active))
	snapshot := rec.clone()
	e.mu.Unlock()

	e.metrics.ConflictDetected()
	e.metrics.AutoMerge(mergeOutcome(mr))
	e.logger.Info("conflict detected",
		zap.String("file_id", p.FileID),
		zap.String("conflict_id", rec.ID),
		zap.Int("current_version", current.Version),
		zap.Int("expected_version", expected),
		zap.Bool("auto_merged", mr.Success),
	)
	e.logger.Debug("auto-merge attempted",
		zap.String("conflict_id", rec.ID),
		zap.String("reason", mr.Reason),
		zap.Ints("conflict_lines", mr.Conflicts),
	)

	e.sink.Emit(ctx, events.Event{
		Name:       events.ConflictDetected,
		FileID:     p.FileID,
		ConflictID: rec.ID,
		Timestamp:  rec.CreatedAt,
		Payload:    snapshot.clone(),
	})

	return &DetectResult{
		HasConflict:     true,
		Conflict:        snapshot,
		AutoMergeResult: snapshot.AutoMergeResult,
	}, nil
}

// baseVersion loads the content the writer started from. Failures degrade
// to nil, which makes the auto-merge report no common ancestor.
func (e *Engine) baseVersion(ctx context.Context, fileID string, version int) *string {
	snap, err := e.store.GetVersionSnapshot(ctx, fileID, version)
	if err != nil {
		e.logger.Warn("base version lookup failed",
			zap.String("file_id", fileID),
			zap.Int("version", version),
			zap.Error(err),
		)
		return nil
	}
	if snap == nil {
		return nil
	}
	content := snap.Content
	return &content
}

func mergeOutcome(r merge.Result) string {
	switch {
	case r.Success:
		return "clean"
	case r.HasConflictMarkers:
		return "conflicted"
	default:
		return "no_base"
	}
}

// ResolveConflict applies strategy to the active conflict for fileID, writes
// the result at currentVersion+1 and moves the record to history. If the
// store write fails the record stays active and unresolved.
func (e *Engine) ResolveConflict(ctx context.Context, fileID string, strategy Strategy, mergedContent *string, resolvedBy string) (*ResolveResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	unlock := e.locks.Lock(fileID)
	defer unlock()

	e.mu.RLock()
	rec, ok := e.active[fileID]
	var working *Record
	if ok {
		working = rec.clone()
	}
	e.mu.RUnlock()

	if !ok {
		return nil, apperrors.NotFound("no active conflict for file: " + fileID)
	}
	if working.Resolved {
		return nil, apperrors.AlreadyResolved("conflict already resolved: " + working.ID)
	}

	now := e.opts.Now()
	res, err := working.Resolve(strategy, mergedContent, resolvedBy, now)
	if err != nil {
		return nil, err
	}

	newVersion := working.CurrentVersion + 1
	err = e.store.UpdateFile(ctx, fileID, document.Update{
		Content:    res.Content,
		Version:    newVersion,
		UpdatedAt:  now,
		ModifiedBy: resolvedBy,
	})
	if err != nil {
		e.metrics.ResolveRolledBack()
		e.logger.Error("persisting resolution failed, conflict kept active",
			zap.String("file_id", fileID),
			zap.String("conflict_id", working.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("persisting resolution for %s: %w", fileID, err)
	}

	e.mu.Lock()
	if e.active[fileID] == rec {
		delete(e.active, fileID)
	}
	e.history = append(e.history, working)
	if e.opts.MaxHistory > 0 && len(e.history) > e.opts.MaxHistory {
		e.history = append([]*Record(nil), e.history[len(e.history)-e.opts.MaxHistory:]...)
	}
	e.metrics.SetActive(len(e.active))
	snapshot := working.clone()
	e.mu.Unlock()

	e.metrics.ConflictResolved(string(strategy))
	e.logger.Info("conflict resolved",
		zap.String("file_id", fileID),
		zap.String("conflict_id", working.ID),
		zap.String("strategy", string(strategy)),
		zap.Int("new_version", newVersion),
	)

	e.sink.Emit(ctx, events.Event{
		Name:       events.ConflictResolved,
		FileID:     fileID,
		ConflictID: working.ID,
		Timestamp:  now,
		Payload:    snapshot,
	})

	return &ResolveResult{Success: true, Content: res.Content, NewVersion: newVersion}, nil
}

// Active returns a copy of the unresolved conflict for fileID
func (e *Engine) Active(fileID string) (*Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.active[fileID]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// GetActiveConflicts returns copies of all unresolved conflicts, oldest first
func (e *Engine) GetActiveConflicts() []*Record {
	e.mu.RLock()
	out := make([]*Record, 0, len(e.active))
	for _, rec := range e.active {
		out = append(out, rec.clone())
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].FileID < out[j].FileID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetConflictHistory returns the most recent limit resolved conflicts in
// resolution order. A non-positive limit means DefaultHistoryLimit.
func (e *Engine) GetConflictHistory(limit int) []*Record {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	start := max(0, len(e.history)-limit)
	out := make([]*Record, 0, len(e.history)-start)
	for _, rec := range e.history[start:] {
		out = append(out, rec.clone())
	}
	return out
}

// ClearHistory drops every resolved conflict. Active conflicts are kept.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	n := len(e.history)
	e.history = nil
	e.mu.Unlock()

	e.logger.Info("conflict history cleared", zap.Int("entries", n))
}
