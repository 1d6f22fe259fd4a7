package upload

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkarren/castbucket/internal/storage"
	"github.com/tkarren/castbucket/pkg/config"
	"github.com/tkarren/castbucket/pkg/types"
)

type fakeCatalog struct {
	mu      sync.Mutex
	entries map[string]*types.Recording
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{entries: make(map[string]*types.Recording)}
}

func (f *fakeCatalog) Upsert(ctx context.Context, recording *types.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[recording.ID] = recording
	return nil
}

func (f *fakeCatalog) get(id string) (*types.Recording, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.entries[id]
	return rec, ok
}

func testUploadConfig() *config.UploadConfig {
	return &config.UploadConfig{
		MaxChunkBytes:  1 << 20,
		MaxUploadBytes: 10 << 20,
		SessionTTL:     30 * time.Minute,
		ReapInterval:   5 * time.Minute,
		MaxSlots:       6,
	}
}

func testLayout() *config.StorageConfig {
	return &config.StorageConfig{
		StagingDir:    "staging",
		RecordingsDir: "recordings",
	}
}

func newTestManager(t *testing.T) (*Manager, storage.Store, *fakeCatalog) {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	cat := newFakeCatalog()
	return NewManager(store, cat, testUploadConfig(), testLayout()), store, cat
}

func chunk(uploadID string, index int, payload string) *ChunkRequest {
	return &ChunkRequest{
		UploadID: uploadID,
		MimeType: "video/webm",
		Slot:     2,
		Index:    index,
		Owner:    "alice-1234",
		Token:    "alice-token",
		Size:     int64(len(payload)),
		Data:     strings.NewReader(payload),
	}
}

func TestAppendChunk_InOrder(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	next, err := m.AppendChunk(ctx, chunk("u1", 0, strings.Repeat("a", 1000)))
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	next, err = m.AppendChunk(ctx, chunk("u1", 1, strings.Repeat("b", 1000)))
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	info, err := store.Stat(ctx, "staging/u1.webm")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), info.Size)

	// Ownership marker written alongside the staging file.
	exists, err := store.Exists(ctx, "staging/u1.owner")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAppendChunk_DuplicateIndex(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendChunk(ctx, chunk("u2", 0, "first"))
	require.NoError(t, err)

	_, err = m.AppendChunk(ctx, chunk("u2", 0, "duplicate"))
	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, ue.Kind)
	assert.Equal(t, 1, ue.Expected)

	// The rejected duplicate must not advance the counter.
	sess, exists := m.getSession("u2")
	require.True(t, exists)
	assert.Equal(t, 1, sess.ExpectedIndex)
	assert.Equal(t, int64(len("first")), sess.BytesWritten)
}

func TestAppendChunk_OutOfOrderIndex(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendChunk(ctx, chunk("u1", 0, "zero"))
	require.NoError(t, err)

	_, err = m.AppendChunk(ctx, chunk("u1", 5, "five"))
	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, ue.Kind)
	assert.Equal(t, 1, ue.Expected)

	// Rejected bytes never reach the staging file.
	info, err := store.Stat(ctx, "staging/u1.webm")
	require.NoError(t, err)
	assert.Equal(t, int64(len("zero")), info.Size)
}

func TestAppendChunk_SlotOutOfRange(t *testing.T) {
	m, _, _ := newTestManager(t)

	req := chunk("u1", 0, "data")
	req.Slot = 7
	_, err := m.AppendChunk(context.Background(), req)

	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, ue.Kind)

	// Validation happens before session creation.
	assert.Equal(t, 0, m.SessionCount())
}

func TestAppendChunk_SlotMismatch(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendChunk(ctx, chunk("u1", 0, "data"))
	require.NoError(t, err)

	req := chunk("u1", 1, "more")
	req.Slot = 3
	_, err = m.AppendChunk(ctx, req)

	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindConflict, ue.Kind)
}

func TestAppendChunk_WrongOwner(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendChunk(ctx, chunk("u1", 0, "data"))
	require.NoError(t, err)

	req := chunk("u1", 1, "more")
	req.Owner = "mallory-9999"
	_, err = m.AppendChunk(ctx, req)

	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindAuthorization, ue.Kind)
}

func TestAppendChunk_ChunkCeiling(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.cfg.MaxChunkBytes = 10

	req := chunk("u1", 0, strings.Repeat("x", 11))
	_, err := m.AppendChunk(context.Background(), req)

	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindQuota, ue.Kind)
	assert.Equal(t, 0, m.SessionCount())
}

func TestAppendChunk_UploadCeiling(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.cfg.MaxUploadBytes = 1500
	ctx := context.Background()

	_, err := m.AppendChunk(ctx, chunk("u1", 0, strings.Repeat("a", 1000)))
	require.NoError(t, err)

	_, err = m.AppendChunk(ctx, chunk("u1", 1, strings.Repeat("b", 1000)))
	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindQuota, ue.Kind)

	// The rejected chunk leaves the counters where they were.
	sess, _ := m.getSession("u1")
	assert.Equal(t, 1, sess.ExpectedIndex)
	assert.Equal(t, int64(1000), sess.BytesWritten)
}

func TestAppendChunk_IndependentSessions(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendChunk(ctx, chunk("u1", 0, "aaaa"))
	require.NoError(t, err)

	reqB := chunk("u2", 0, "bbbbbbbb")
	reqB.Owner = "bob-5678"
	reqB.Token = "bob-token"
	reqB.Slot = 3
	_, err = m.AppendChunk(ctx, reqB)
	require.NoError(t, err)

	s1, _ := m.getSession("u1")
	s2, _ := m.getSession("u2")
	assert.Equal(t, int64(4), s1.BytesWritten)
	assert.Equal(t, int64(8), s2.BytesWritten)

	i1, err := store.Stat(ctx, "staging/u1.webm")
	require.NoError(t, err)
	i2, err := store.Stat(ctx, "staging/u2.webm")
	require.NoError(t, err)
	assert.Equal(t, int64(4), i1.Size)
	assert.Equal(t, int64(8), i2.Size)
}

func TestAppendChunk_UnknownMimeFallsBack(t *testing.T) {
	m, store, _ := newTestManager(t)

	req := chunk("u1", 0, "data")
	req.MimeType = "application/x-strange"
	_, err := m.AppendChunk(context.Background(), req)
	require.NoError(t, err)

	exists, err := store.Exists(context.Background(), "staging/u1.webm")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestAppendChunk_FirstChunkWins(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendChunk(ctx, chunk("u1", 0, "data"))
	require.NoError(t, err)

	// A retried "first chunk" with a different declared MIME type reuses the
	// existing session state rather than resetting it.
	req := chunk("u1", 1, "more")
	req.MimeType = "video/mp4"
	next, err := m.AppendChunk(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, next)

	sess, _ := m.getSession("u1")
	assert.Equal(t, ".webm", sess.Extension)
}

func TestAppendChunk_ConcurrentSameIndex(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.AppendChunk(ctx, chunk("u1", 0, "seed"))
	require.NoError(t, err)

	// Two racing submissions of index 1: exactly one may win, the loser must
	// get the ordering conflict rather than double-writing.
	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = m.AppendChunk(ctx, chunk("u1", 1, "race-payload"))
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		if err == nil {
			successes++
		} else if ue, ok := AsError(err); ok && ue.Kind == KindConflict {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	sess, _ := m.getSession("u1")
	assert.Equal(t, 2, sess.ExpectedIndex)
	assert.Equal(t, int64(len("seed")+len("race-payload")), sess.BytesWritten)
}

func TestAppendChunk_MissingUploadID(t *testing.T) {
	m, _, _ := newTestManager(t)

	req := chunk("", 0, "data")
	_, err := m.AppendChunk(context.Background(), req)

	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, ue.Kind)
}

func TestAppendChunk_NegativeIndex(t *testing.T) {
	m, _, _ := newTestManager(t)

	req := chunk("u1", -1, "data")
	_, err := m.AppendChunk(context.Background(), req)

	ue, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, ue.Kind)
}
