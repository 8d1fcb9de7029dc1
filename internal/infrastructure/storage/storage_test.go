package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorage(filepath.Join(t.TempDir(), "receipts.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func sampleReceipt(id string, issuedAt time.Time) *receipt.Receipt {
	return &receipt.Receipt{
		ID:        id,
		IssuedAt:  issuedAt,
		Total:     decimal.RequireFromString("350.00"),
		Merchant:  "CAFE AROMA",
		TaxID:     strPtr("01234567890123"),
		Address:   strPtr("Bishkek, Chui 100"),
		SourceURL: "https://tax.salyk.kg/client/api/v1/ticket?fd=1&fn=2&fm=" + id,
		ItemsJSON: strPtr(`[{"name":"Latte","price":"175","qty":"2","sum":"350"}]`),
	}
}

func TestStorage_CreateAndGetReceipt(t *testing.T) {
	// Arrange
	store := newTestStorage(t)
	ctx := context.Background()
	issued := time.Date(2025, 9, 20, 14, 1, 10, 0, time.FixedZone("KGT", 6*3600))
	r := sampleReceipt("abc", issued)

	// Act
	require.NoError(t, store.CreateReceipt(ctx, r))
	got, err := store.GetReceipt(ctx, "abc")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.ID)
	assert.True(t, got.IssuedAt.Equal(issued))
	assert.True(t, got.Total.Equal(decimal.RequireFromString("350")))
	assert.Equal(t, "CAFE AROMA", got.Merchant)
	assert.Equal(t, "01234567890123", *got.TaxID)
	assert.Equal(t, r.SourceURL, got.SourceURL)
	assert.Nil(t, got.PhotoPath)
	assert.False(t, got.CreatedAt.IsZero())

	items, err := got.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Latte", items[0].Name)
}

func TestStorage_GetReceipt_NotFound(t *testing.T) {
	store := newTestStorage(t)

	got, err := store.GetReceipt(context.Background(), "missing")

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStorage_CreateReceipt_Duplicate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	require.NoError(t, store.CreateReceipt(ctx, sampleReceipt("dup", time.Now())))

	err := store.CreateReceipt(ctx, sampleReceipt("dup", time.Now()))

	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestStorage_UpdateReceipt(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	r := sampleReceipt("upd", time.Now().Truncate(time.Second))
	require.NoError(t, store.CreateReceipt(ctx, r))

	r.Address = strPtr("Bishkek, Manas 5")
	r.PhotoPath = strPtr("Photos/upd.jpg")
	r.TaxID = nil
	r.UpdatedAt = time.Time{}
	require.NoError(t, store.UpdateReceipt(ctx, r))

	got, err := store.GetReceipt(ctx, "upd")
	require.NoError(t, err)
	assert.Equal(t, "Bishkek, Manas 5", *got.Address)
	assert.Equal(t, "Photos/upd.jpg", *got.PhotoPath)
	assert.Nil(t, got.TaxID)
	assert.Equal(t, "CAFE AROMA", got.Merchant)
}

func TestStorage_UpdateReceipt_NotFound(t *testing.T) {
	store := newTestStorage(t)

	err := store.UpdateReceipt(context.Background(), sampleReceipt("ghost", time.Now()))

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorage_ListReceipts(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		r := sampleReceipt(id, base.Add(time.Duration(i)*24*time.Hour))
		if id == "r3" {
			r.TaxID = strPtr("999")
		}
		require.NoError(t, store.CreateReceipt(ctx, r))
	}

	t.Run("all newest first", func(t *testing.T) {
		got, err := store.ListReceipts(ctx, ReceiptFilter{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "r3", got[0].ID)
		assert.Equal(t, "r1", got[2].ID)
	})

	t.Run("by tax id", func(t *testing.T) {
		got, err := store.ListReceipts(ctx, ReceiptFilter{TaxID: "999"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r3", got[0].ID)
	})

	t.Run("by issued range", func(t *testing.T) {
		got, err := store.ListReceipts(ctx, ReceiptFilter{
			From: base.Add(12 * time.Hour),
			To:   base.Add(48 * time.Hour),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r2", got[0].ID)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := store.ListReceipts(ctx, ReceiptFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "r2", got[0].ID)
	})
}

func TestMockRepository_MatchesStorageSemantics(t *testing.T) {
	mock := NewMockRepository()
	ctx := context.Background()
	r := sampleReceipt("m1", time.Now())

	require.NoError(t, mock.CreateReceipt(ctx, r))
	assert.ErrorIs(t, mock.CreateReceipt(ctx, r), ErrDuplicate)

	// Mutating the caller's copy must not change stored state.
	r.Merchant = "changed"
	got, err := mock.GetReceipt(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "CAFE AROMA", got.Merchant)

	missing, err := mock.GetReceipt(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, mock.UpdateReceipt(ctx, sampleReceipt("nope", time.Now())), ErrNotFound)
}
