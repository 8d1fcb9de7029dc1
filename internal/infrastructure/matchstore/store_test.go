package matchstore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/matcher"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleMatch(receiptID string) matcher.ReceiptMatch {
	return matcher.ReceiptMatch{
		ReceiptID:    receiptID,
		Confidence:   matcher.ConfidenceExact,
		TimeDeltaSec: 110,
		CreatedAt:    time.Date(2025, 9, 20, 14, 5, 0, 0, time.UTC),
		Source:       matcher.SourceAuto,
	}
}

func TestStore_SetGetRemove(t *testing.T) {
	// Arrange
	s, err := OpenDir(t.TempDir(), quietLogger())
	require.NoError(t, err)
	txID := uuid.New()
	m := sampleMatch("receipt-1")

	// Act
	require.NoError(t, s.Set(txID, &m))
	got, ok := s.Get(txID)

	// Assert
	require.True(t, ok)
	assert.Equal(t, m, got)

	require.NoError(t, s.Set(txID, nil))
	_, ok = s.Get(txID)
	assert.False(t, ok)

	require.NoError(t, s.Remove(txID), "removing an absent match is a no-op")
}

func TestStore_ReloadReproducesMapping(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDir(dir, quietLogger())
	require.NoError(t, err)

	a, b := uuid.New(), uuid.New()
	ma, mb := sampleMatch("ra"), sampleMatch("rb")
	mb.Source = matcher.SourceUser
	require.NoError(t, s.Set(a, &ma))
	require.NoError(t, s.Set(b, &mb))

	reopened, err := OpenDir(dir, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, s.All(), reopened.All())
	got, ok := reopened.Get(b)
	require.True(t, ok)
	assert.True(t, got.IsUser())
}

func TestStore_SetIfAbsentKeepsExisting(t *testing.T) {
	s, err := OpenDir(t.TempDir(), quietLogger())
	require.NoError(t, err)
	txID := uuid.New()

	user := sampleMatch("picked-by-user")
	user.Source = matcher.SourceUser
	require.NoError(t, s.Set(txID, &user))

	stored, err := s.SetIfAbsent(txID, sampleMatch("inferred"))
	require.NoError(t, err)
	assert.False(t, stored)

	got, _ := s.Get(txID)
	assert.Equal(t, "picked-by-user", got.ReceiptID)

	other := uuid.New()
	stored, err = s.SetIfAbsent(other, sampleMatch("inferred"))
	require.NoError(t, err)
	assert.True(t, stored)
	assert.Equal(t, 2, s.Len())
}

func TestStore_FailedWriteLeavesStateUntouched(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDir(dir, quietLogger())
	require.NoError(t, err)
	txID := uuid.New()
	m := sampleMatch("r1")
	require.NoError(t, s.Set(txID, &m))

	// Replace the file with a non-empty directory so the rename fails.
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0o700))

	other := sampleMatch("r2")
	err = s.Set(uuid.New(), &other)
	require.Error(t, err)
	assert.Error(t, s.Remove(txID))

	assert.Equal(t, 1, s.Len())
	got, ok := s.Get(txID)
	require.True(t, ok)
	assert.Equal(t, "r1", got.ReceiptID)
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o600))

	_, err := OpenDir(dir, quietLogger())

	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenDir(dir, quietLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 20)
	for i := range ids {
		ids[i] = uuid.New()
	}
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			m := sampleMatch(id.String())
			assert.NoError(t, s.Set(id, &m))
		}(id)
	}
	wg.Wait()

	reopened, err := OpenDir(dir, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, len(ids), reopened.Len())
}
