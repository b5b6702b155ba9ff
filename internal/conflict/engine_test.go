package conflict

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"concord/internal/document"
	apperrors "concord/internal/errors"
	"concord/internal/events"
	"concord/internal/merge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore implements document.Store in memory with injectable failures
type fakeStore struct {
	mu        sync.Mutex
	files     map[string]*document.File
	snapshots map[string]string

	getErr      error
	snapshotErr error
	updateErr   error
	updates     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:     make(map[string]*document.File),
		snapshots: make(map[string]string),
	}
}

func snapKey(id string, v int) string { return fmt.Sprintf("%s@%d", id, v) }

// put stores content at version and keeps the snapshot
func (s *fakeStore) put(id, content string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = &document.File{
		ID:         id,
		FileName:   id + ".md",
		Content:    content,
		Version:    version,
		UpdatedAt:  time.Now(),
		ModifiedBy: "alice",
	}
	s.snapshots[snapKey(id, version)] = content
}

func (s *fakeStore) GetFile(_ context.Context, id string) (*document.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	f, ok := s.files[id]
	if !ok {
		return nil, nil
	}
	c := *f
	return &c, nil
}

func (s *fakeStore) GetVersionSnapshot(_ context.Context, id string, v int) (*document.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshotErr != nil {
		return nil, s.snapshotErr
	}
	content, ok := s.snapshots[snapKey(id, v)]
	if !ok {
		return nil, nil
	}
	return &document.Snapshot{FileID: id, Version: v, Content: content}, nil
}

func (s *fakeStore) UpdateFile(_ context.Context, id string, u document.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	f, ok := s.files[id]
	if !ok {
		return fmt.Errorf("file not found: %s", id)
	}
	f.Content = u.Content
	f.Version = u.Version
	f.UpdatedAt = u.UpdatedAt
	f.ModifiedBy = u.ModifiedBy
	s.snapshots[snapKey(id, u.Version)] = u.Content
	s.updates++
	return nil
}

func intPtr(v int) *int { return &v }

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Emit(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) names() []events.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Name
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

func setupEngine(t *testing.T, opts Options) (*Engine, *fakeStore, *recordingSink) {
	t.Helper()
	store := newFakeStore()
	sink := &recordingSink{}
	opts.Sink = sink
	return NewEngine(store, opts), store, sink
}

func TestDetectConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("new file has no conflict", func(t *testing.T) {
		engine, _, sink := setupEngine(t, Options{})

		res, err := engine.DetectConflict(ctx, DetectParams{FileID: "missing", Content: "x", Version: intPtr(1)})
		require.NoError(t, err)
		assert.False(t, res.HasConflict)
		assert.Empty(t, sink.names())
	})

	t.Run("matching version passes through", func(t *testing.T) {
		engine, store, sink := setupEngine(t, Options{})
		store.put("f1", "a", 2)

		res, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "b", Version: intPtr(2)})
		require.NoError(t, err)
		assert.False(t, res.HasConflict)
		assert.Nil(t, res.Conflict)
		assert.Empty(t, engine.GetActiveConflicts())
		assert.Empty(t, sink.names())
	})

	t.Run("omitted version never conflicts by default", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("f1", "a", 5)

		res, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "b"})
		require.NoError(t, err)
		assert.False(t, res.HasConflict)
	})

	t.Run("omitted version rejected when required", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{RequireExpectedVersion: true})
		store.put("f1", "a", 5)

		_, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "b"})
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
	})

	t.Run("empty file id", func(t *testing.T) {
		engine, _, _ := setupEngine(t, Options{})
		_, err := engine.DetectConflict(ctx, DetectParams{Content: "b", Version: intPtr(1)})
		assert.True(t, errors.Is(err, apperrors.ErrValidation))
	})

	t.Run("mismatch builds record and auto-merges", func(t *testing.T) {
		engine, store, sink := setupEngine(t, Options{})
		store.put("f1", "a\nb\nc", 1)
		store.put("f1", "A\nb\nc", 2)

		res, err := engine.DetectConflict(ctx, DetectParams{
			FileID:     "f1",
			Content:    "a\nb\nC",
			Version:    intPtr(1),
			ModifiedBy: "bob",
		})
		require.NoError(t, err)
		require.True(t, res.HasConflict)

		rec := res.Conflict
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, "f1.md", rec.FileName)
		assert.Equal(t, VersionMismatch, rec.Kind)
		assert.Equal(t, 2, rec.CurrentVersion)
		assert.Equal(t, 1, rec.ExpectedVersion)
		assert.Equal(t, "alice", rec.CurrentModifiedBy)
		assert.Equal(t, "bob", rec.NewModifiedBy)
		require.NotNil(t, rec.BaseContent)
		assert.Equal(t, "a\nb\nc", *rec.BaseContent)
		require.NotNil(t, rec.Diff)
		assert.Len(t, rec.Diff.Modifications, 2)
		assert.Contains(t, rec.ConflictMarkers, merge.MarkerLocal)

		require.NotNil(t, res.AutoMergeResult)
		assert.True(t, res.AutoMergeResult.Success)
		assert.Equal(t, "A\nb\nC", res.AutoMergeResult.MergedContent)

		active, ok := engine.Active("f1")
		require.True(t, ok)
		assert.Equal(t, rec.ID, active.ID)
		assert.Equal(t, []events.Name{events.ConflictDetected}, sink.names())
	})

	t.Run("missing base degrades to no common ancestor", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("f1", "current", 4)

		res, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "mine", Version: intPtr(2)})
		require.NoError(t, err)
		assert.True(t, res.HasConflict)
		assert.Nil(t, res.Conflict.BaseContent)
		assert.False(t, res.AutoMergeResult.Success)
		assert.Equal(t, merge.ReasonNoCommonAncestor, res.AutoMergeResult.Reason)
	})

	t.Run("snapshot errors degrade instead of aborting", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("f1", "current", 4)
		store.snapshotErr = errors.New("history table missing")

		res, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "mine", Version: intPtr(3)})
		require.NoError(t, err)
		assert.True(t, res.HasConflict)
		assert.Equal(t, merge.ReasonNoCommonAncestor, res.AutoMergeResult.Reason)
	})

	t.Run("store errors abort detection", func(t *testing.T) {
		engine, store, sink := setupEngine(t, Options{})
		store.put("f1", "current", 4)
		store.getErr = errors.New("connection reset")

		_, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "mine", Version: intPtr(3)})
		assert.ErrorIs(t, err, store.getErr)
		assert.Empty(t, engine.GetActiveConflicts())
		assert.Empty(t, sink.names())
	})

	t.Run("returned record is a copy", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("f1", "current", 2)

		res, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "mine", Version: intPtr(1)})
		require.NoError(t, err)
		res.Conflict.NewContent = "tampered"

		active, _ := engine.Active("f1")
		assert.Equal(t, "mine", active.NewContent)
	})
}

func TestDetectConflictPending(t *testing.T) {
	ctx := context.Background()

	t.Run("reject keeps the existing record", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("f1", "current", 2)

		first, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "one", Version: intPtr(1)})
		require.NoError(t, err)

		_, err = engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "two", Version: intPtr(1)})
		assert.True(t, errors.Is(err, apperrors.ErrConflictPending))

		active, ok := engine.Active("f1")
		require.True(t, ok)
		assert.Equal(t, first.Conflict.ID, active.ID)
		assert.Equal(t, "one", active.NewContent)
		assert.Len(t, engine.GetActiveConflicts(), 1)
	})

	t.Run("overwrite replaces it", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{PendingPolicy: PendingOverwrite})
		store.put("f1", "current", 2)

		first, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "one", Version: intPtr(1)})
		require.NoError(t, err)
		second, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "two", Version: intPtr(1)})
		require.NoError(t, err)

		active, ok := engine.Active("f1")
		require.True(t, ok)
		assert.NotEqual(t, first.Conflict.ID, active.ID)
		assert.Equal(t, second.Conflict.ID, active.ID)
		assert.Len(t, engine.GetActiveConflicts(), 1)
	})
}

func TestResolveConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("use-mine bumps version", func(t *testing.T) {
		engine, store, sink := setupEngine(t, Options{})
		store.put("f1", "local", 3)

		_, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "remote", Version: intPtr(2)})
		require.NoError(t, err)

		res, err := engine.ResolveConflict(ctx, "f1", UseMine, nil, "carol")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "local", res.Content)
		assert.Equal(t, 4, res.NewVersion)

		f, _ := store.GetFile(ctx, "f1")
		assert.Equal(t, 4, f.Version)
		assert.Equal(t, "local", f.Content)

		_, ok := engine.Active("f1")
		assert.False(t, ok)

		history := engine.GetConflictHistory(0)
		require.Len(t, history, 1)
		assert.True(t, history[0].Resolved)
		assert.Equal(t, UseMine, history[0].Resolution.Strategy)
		assert.Equal(t, "carol", history[0].ResolvedBy)
		assert.NotNil(t, history[0].ResolvedAt)

		assert.Equal(t, []events.Name{events.ConflictDetected, events.ConflictResolved}, sink.names())
	})

	t.Run("use-theirs and merge", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("a", "local", 1)
		store.put("b", "local", 1)

		for _, id := range []string{"a", "b"} {
			_, err := engine.DetectConflict(ctx, DetectParams{FileID: id, Content: "remote", Version: intPtr(0)})
			require.NoError(t, err)
		}

		res, err := engine.ResolveConflict(ctx, "a", UseTheirs, nil, "")
		require.NoError(t, err)
		assert.Equal(t, "remote", res.Content)

		res, err = engine.ResolveConflict(ctx, "b", Merge, strPtr("both"), "")
		require.NoError(t, err)
		assert.Equal(t, "both", res.Content)
		assert.Equal(t, 2, res.NewVersion)
	})

	t.Run("auto-merge uses merge result", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("f1", "a\nb", 1)
		store.put("f1", "a\nb", 2)

		det, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "a\nZ", Version: intPtr(1)})
		require.NoError(t, err)
		require.True(t, det.AutoMergeResult.Success)

		res, err := engine.ResolveConflict(ctx, "f1", AutoMerge, nil, "")
		require.NoError(t, err)
		assert.Equal(t, "a\nZ", res.Content)
		assert.Equal(t, 3, res.NewVersion)
	})

	t.Run("not found", func(t *testing.T) {
		engine, _, _ := setupEngine(t, Options{})
		_, err := engine.ResolveConflict(ctx, "nope", UseMine, nil, "")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("second resolution finds nothing", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("f1", "local", 2)
		_, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "remote", Version: intPtr(1)})
		require.NoError(t, err)

		_, err = engine.ResolveConflict(ctx, "f1", UseMine, nil, "")
		require.NoError(t, err)
		_, err = engine.ResolveConflict(ctx, "f1", UseTheirs, nil, "")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
		assert.Equal(t, 1, store.updates)
	})

	t.Run("invalid strategy leaves record active", func(t *testing.T) {
		engine, store, _ := setupEngine(t, Options{})
		store.put("f1", "local", 2)
		_, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "remote", Version: intPtr(1)})
		require.NoError(t, err)

		_, err = engine.ResolveConflict(ctx, "f1", Strategy("rebase"), nil, "")
		assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))

		_, err = engine.ResolveConflict(ctx, "f1", Merge, nil, "")
		assert.True(t, errors.Is(err, apperrors.ErrValidation))

		active, ok := engine.Active("f1")
		require.True(t, ok)
		assert.False(t, active.Resolved)
		assert.Zero(t, store.updates)
	})

	t.Run("persistence failure rolls back", func(t *testing.T) {
		engine, store, sink := setupEngine(t, Options{})
		store.put("f1", "local", 2)
		_, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "remote", Version: intPtr(1)})
		require.NoError(t, err)

		store.updateErr = errors.New("disk full")
		_, err = engine.ResolveConflict(ctx, "f1", UseTheirs, nil, "")
		assert.ErrorIs(t, err, store.updateErr)

		active, ok := engine.Active("f1")
		require.True(t, ok)
		assert.False(t, active.Resolved)
		assert.Nil(t, active.Resolution)
		assert.Empty(t, engine.GetConflictHistory(0))
		assert.Equal(t, []events.Name{events.ConflictDetected}, sink.names())

		// retry succeeds once the store recovers
		store.updateErr = nil
		res, err := engine.ResolveConflict(ctx, "f1", UseTheirs, nil, "")
		require.NoError(t, err)
		assert.Equal(t, 3, res.NewVersion)
	})
}

func TestNotInitialized(t *testing.T) {
	engine := NewEngine(nil, Options{})

	_, err := engine.DetectConflict(context.Background(), DetectParams{FileID: "f1"})
	assert.True(t, errors.Is(err, apperrors.ErrNotInitialized))

	_, err = engine.ResolveConflict(context.Background(), "f1", UseMine, nil, "")
	assert.True(t, errors.Is(err, apperrors.ErrNotInitialized))

	_, err = engine.Write(context.Background(), DetectParams{FileID: "f1", Version: intPtr(1)})
	assert.True(t, errors.Is(err, apperrors.ErrNotInitialized))

	err = engine.DeleteFile(context.Background(), "f1")
	assert.True(t, errors.Is(err, apperrors.ErrNotInitialized))
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := setupEngine(t, Options{})

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("f%d", i)
		store.put(id, "local", 2)
		_, err := engine.DetectConflict(ctx, DetectParams{FileID: id, Content: "remote", Version: intPtr(1)})
		require.NoError(t, err)
	}
	assert.Len(t, engine.GetActiveConflicts(), 5)

	for i := 0; i < 4; i++ {
		_, err := engine.ResolveConflict(ctx, fmt.Sprintf("f%d", i), UseMine, nil, "")
		require.NoError(t, err)
	}

	recent := engine.GetConflictHistory(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "f2", recent[0].FileID)
	assert.Equal(t, "f3", recent[1].FileID)
	assert.Len(t, engine.GetConflictHistory(100), 4)

	engine.ClearHistory()
	assert.Empty(t, engine.GetConflictHistory(0))
	assert.Len(t, engine.GetActiveConflicts(), 1)
}

func TestMaxHistory(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := setupEngine(t, Options{MaxHistory: 2})

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("f%d", i)
		store.put(id, "local", 2)
		_, err := engine.DetectConflict(ctx, DetectParams{FileID: id, Content: "remote", Version: intPtr(1)})
		require.NoError(t, err)
		_, err = engine.ResolveConflict(ctx, id, UseMine, nil, "")
		require.NoError(t, err)
	}

	history := engine.GetConflictHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "f1", history[0].FileID)
	assert.Equal(t, "f2", history[1].FileID)
}

func TestEngineEmitsThroughBus(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.put("f1", "local", 2)

	bus := events.NewBus(nil)
	var got []events.Event
	bus.Subscribe(func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return errors.New("subscriber down")
	})

	engine := NewEngine(store, Options{Sink: bus})
	det, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "remote", Version: intPtr(1)})
	require.NoError(t, err)
	_, err = engine.ResolveConflict(ctx, "f1", UseMine, nil, "")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, det.Conflict.ID, got[0].ConflictID)
	payload, ok := got[1].Payload.(*Record)
	require.True(t, ok)
	assert.True(t, payload.Resolved)
}

func TestConcurrentResolveSameFile(t *testing.T) {
	ctx := context.Background()
	engine, store, _ := setupEngine(t, Options{})
	store.put("f1", "local", 2)
	_, err := engine.DetectConflict(ctx, DetectParams{FileID: "f1", Content: "remote", Version: intPtr(1)})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.ResolveConflict(ctx, "f1", UseMine, nil, ""); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, store.updates)
	f, _ := store.GetFile(ctx, "f1")
	assert.Equal(t, 3, f.Version)
	assert.Zero(t, engine.locks.size())
}
