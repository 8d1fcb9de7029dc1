package receipts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipts-reconciler/internal/adapters/salyk"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/receipt"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/storage"
)

const ticketURL = "https://tax.salyk.kg/client/api/v1/ticket?fd_number=101&fn_number=202&fm=303&sum=35000"

type fakeFetcher struct {
	mu     sync.Mutex
	parsed *receipt.ParsedReceipt
	err    error
	calls  int
}

func (f *fakeFetcher) FetchAndParse(_ context.Context, _ *url.URL) (*receipt.ParsedReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.parsed
	return &p, nil
}

type fakeDecoder struct {
	payload string
	err     error
}

func (d fakeDecoder) Decode([]byte) (string, error) { return d.payload, d.err }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func cafeReceipt() *receipt.ParsedReceipt {
	return &receipt.ParsedReceipt{
		Merchant: "CAFE AROMA",
		TaxID:    strPtr("01234567890123"),
		Address:  strPtr("Bishkek, Chui 100"),
		IssuedAt: time.Date(2025, 9, 20, 14, 1, 10, 0, time.UTC),
		Total:    decimal.RequireFromString("350.00"),
		Items: []receipt.LineItem{
			{Name: "Latte", Price: decimal.RequireFromString("175"), Qty: decimal.RequireFromString("2"), Sum: decimal.RequireFromString("350")},
		},
	}
}

type harness struct {
	svc    *Service
	repo   *storage.MockRepository
	photos *storage.PhotoStore
	events <-chan struct{}
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	repo := storage.NewMockRepository()
	photos := storage.NewPhotoStore(t.TempDir())
	notifier := NewNotifier()
	events, unsubscribe := notifier.Subscribe()
	t.Cleanup(unsubscribe)

	base := []Option{
		WithPhotos(photos),
		WithNotifier(notifier),
		WithClock(func() time.Time { return time.Date(2025, 9, 21, 9, 0, 0, 0, time.UTC) }),
	}
	svc := NewService(repo, quietLogger(), append(base, opts...)...)
	return &harness{svc: svc, repo: repo, photos: photos, events: events}
}

func (h *harness) drained() bool {
	select {
	case <-h.events:
		return true
	default:
		return false
	}
}

func TestUpsert_CreatesReceipt(t *testing.T) {
	// Arrange
	h := newHarness(t)
	u := mustURL(t, ticketURL)

	// Act
	res, err := h.svc.Upsert(context.Background(), cafeReceipt(), u, nil)

	// Assert
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Changed)
	assert.Equal(t, receipt.Identity(u), res.Receipt.ID)
	assert.Equal(t, "350.00", res.Receipt.Total.StringFixed(2))
	assert.Equal(t, ticketURL, res.Receipt.SourceURL)
	require.NotNil(t, res.Receipt.ItemsJSON)
	assert.True(t, h.drained(), "create must notify")
}

func TestUpsert_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := mustURL(t, ticketURL)

	_, err := h.svc.Upsert(ctx, cafeReceipt(), u, nil)
	require.NoError(t, err)
	h.drained()

	res, err := h.svc.Upsert(ctx, cafeReceipt(), u, nil)

	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.False(t, res.Changed)
	assert.Equal(t, 1, h.repo.CreateCalls)
	assert.Equal(t, 0, h.repo.UpdateCalls, "unchanged input must not write")
	assert.False(t, h.drained(), "unchanged input must not notify")

	all, err := h.svc.List(ctx, storage.ReceiptFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsert_ConvergesOnChangedField(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := mustURL(t, ticketURL)
	first, err := h.svc.Upsert(ctx, cafeReceipt(), u, nil)
	require.NoError(t, err)
	h.drained()

	changed := cafeReceipt()
	changed.Address = strPtr("Bishkek, Manas 5")
	// Same fiscal triple, extra tracking parameter: same identity.
	u2 := mustURL(t, "https://tax.salyk.kg/client/api/v1/ticket?fd_number=101&fn_number=202&fm=303&utm=x")
	res, err := h.svc.Upsert(ctx, changed, u2, nil)

	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.False(t, res.Created)
	assert.Equal(t, first.Receipt.ID, res.Receipt.ID)
	assert.Equal(t, "Bishkek, Manas 5", *res.Receipt.Address)
	assert.Equal(t, u2.String(), res.Receipt.SourceURL)
	assert.Equal(t, first.Receipt.Merchant, res.Receipt.Merchant)
	assert.Equal(t, *first.Receipt.TaxID, *res.Receipt.TaxID)
	assert.True(t, first.Receipt.Total.Equal(res.Receipt.Total))
	assert.True(t, h.drained())

	stored, err := h.svc.Get(ctx, first.Receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bishkek, Manas 5", *stored.Address)
}

func TestUpsert_TotalFallsBackToItemSum(t *testing.T) {
	h := newHarness(t)
	parsed := cafeReceipt()
	parsed.Total = decimal.Zero

	res, err := h.svc.Upsert(context.Background(), parsed, mustURL(t, ticketURL), nil)

	require.NoError(t, err)
	assert.Equal(t, "350.00", res.Receipt.Total.StringFixed(2))
}

func TestUpsert_FallbackTimestampDoesNotOverwrite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := mustURL(t, ticketURL)
	_, err := h.svc.Upsert(ctx, cafeReceipt(), u, nil)
	require.NoError(t, err)

	guessed := cafeReceipt()
	guessed.IssuedAt = time.Now()
	guessed.IssuedAtFallback = true
	res, err := h.svc.Upsert(ctx, guessed, u, nil)

	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.True(t, res.Receipt.IssuedAt.Equal(cafeReceipt().IssuedAt))
}

func TestUpsert_AttachesPhotoOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := mustURL(t, ticketURL)
	_, err := h.svc.Upsert(ctx, cafeReceipt(), u, nil)
	require.NoError(t, err)

	res, err := h.svc.Upsert(ctx, cafeReceipt(), u, []byte{0xFF, 0xD8, 0xFF, 1})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	require.NotNil(t, res.Receipt.PhotoPath)
	assert.Equal(t, "Photos/"+res.Receipt.ID+".jpg", *res.Receipt.PhotoPath)

	res, err = h.svc.Upsert(ctx, cafeReceipt(), u, []byte{0xFF, 0xD8, 0xFF, 2})
	require.NoError(t, err)
	assert.False(t, res.Changed, "an existing photo is kept")

	data, err := h.photos.Load(*res.Receipt.PhotoPath)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 1}, data)
}

func TestUpsert_StorageFailureLeavesRecordUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	u := mustURL(t, ticketURL)
	first, err := h.svc.Upsert(ctx, cafeReceipt(), u, nil)
	require.NoError(t, err)
	h.drained()

	h.repo.UpdateReceiptErr = storage.ErrStorage
	changed := cafeReceipt()
	changed.Merchant = "CAFE AROMA 2"
	_, err = h.svc.Upsert(ctx, changed, u, []byte{0xFF, 0xD8, 0xFF, 1})

	require.ErrorIs(t, err, storage.ErrStorage)
	assert.False(t, h.drained())
	stored, err := h.svc.Get(ctx, first.Receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, "CAFE AROMA", stored.Merchant)
	assert.Nil(t, stored.PhotoPath)
	_, err = h.photos.Load("Photos/" + first.Receipt.ID + ".jpg")
	assert.Error(t, err, "orphaned photo is removed")
}

func TestUpsert_ConcurrentSameIdentity(t *testing.T) {
	h := newHarness(t)
	u := mustURL(t, ticketURL)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.svc.Upsert(context.Background(), cafeReceipt(), u, nil)
			assert.NoError(t, err)
			if res.Created {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 1, h.repo.CreateCalls)
}

func TestUpsert_IdentityCollision(t *testing.T) {
	// Arrange: every URL hashes to the same identity.
	h := newHarness(t, WithIdentity(func(*url.URL) string { return "collide" }))
	ctx := context.Background()
	first := mustURL(t, ticketURL)
	other := mustURL(t, "https://tax.salyk.kg/client/api/v1/ticket?fd_number=999&fn_number=202&fm=303")

	created, err := h.svc.Upsert(ctx, cafeReceipt(), first, nil)
	require.NoError(t, err)
	require.Equal(t, "collide", created.Receipt.ID)

	// Act
	_, err = h.svc.Upsert(ctx, cafeReceipt(), other, nil)

	// Assert
	assert.ErrorIs(t, err, receipt.ErrIdentityConflict)
	assert.Equal(t, 0, h.repo.UpdateCalls)
	stored, err := h.svc.Get(ctx, "collide")
	require.NoError(t, err)
	assert.Equal(t, ticketURL, stored.SourceURL)

	// Same fiscal triple with extra parameters is not a collision.
	res, err := h.svc.Upsert(ctx, cafeReceipt(), mustURL(t, ticketURL+"&utm_source=qr"), nil)
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestScan(t *testing.T) {
	fetcher := &fakeFetcher{parsed: cafeReceipt()}
	h := newHarness(t, WithFetcher(fetcher))

	res, err := h.svc.Scan(context.Background(), "http://evil.example/client/api/v1/ticket?fd_number=101&fn_number=202&fm=303&sum=35000", nil)

	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, ticketURL, res.Receipt.SourceURL, "host is forced and scheme upgraded")
	assert.Equal(t, 1, fetcher.calls)
}

func TestScan_Rejections(t *testing.T) {
	fetchErr := &salyk.FetchError{Kind: salyk.KindNetwork, StatusCode: 502, Err: salyk.ErrBadStatus}
	fetcher := &fakeFetcher{err: fetchErr}
	h := newHarness(t, WithFetcher(fetcher))
	ctx := context.Background()

	_, err := h.svc.Scan(ctx, "https://example.com/menu", nil)
	assert.ErrorIs(t, err, salyk.ErrNotReceipt)
	assert.Equal(t, 0, fetcher.calls)

	_, err = h.svc.Scan(ctx, ticketURL, nil)
	assert.ErrorIs(t, err, salyk.ErrBadStatus)
	assert.Equal(t, 0, h.repo.CreateCalls)
}

func TestRecover(t *testing.T) {
	h := newHarness(t, WithDecoder(fakeDecoder{payload: "http://tax.salyk.kg/client/api/v1/ticket?fd_number=101&fn_number=202&fm=303"}))
	ctx := context.Background()
	u := mustURL(t, ticketURL)
	res, err := h.svc.Upsert(ctx, cafeReceipt(), u, []byte{0xFF, 0xD8, 0xFF, 1})
	require.NoError(t, err)
	h.drained()

	// Simulate a lost source URL.
	lost := res.Receipt.Clone()
	lost.SourceURL = ""
	require.NoError(t, h.repo.UpdateReceipt(ctx, lost))

	recovered, err := h.svc.Recover(ctx, res.Receipt.ID)

	require.NoError(t, err)
	assert.Equal(t, "https://tax.salyk.kg/client/api/v1/ticket?fd_number=101&fn_number=202&fm=303", recovered.SourceURL)
	assert.True(t, h.drained())
	stored, err := h.svc.Get(ctx, res.Receipt.ID)
	require.NoError(t, err)
	assert.Equal(t, recovered.SourceURL, stored.SourceURL)
}

func TestRecover_Failures(t *testing.T) {
	ctx := context.Background()
	u := mustURL(t, ticketURL)

	t.Run("unknown receipt", func(t *testing.T) {
		h := newHarness(t, WithDecoder(fakeDecoder{}))
		_, err := h.svc.Recover(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no photo", func(t *testing.T) {
		h := newHarness(t, WithDecoder(fakeDecoder{}))
		res, err := h.svc.Upsert(ctx, cafeReceipt(), u, nil)
		require.NoError(t, err)
		_, err = h.svc.Recover(ctx, res.Receipt.ID)
		assert.ErrorIs(t, err, ErrNoPhoto)
	})

	t.Run("code is not a receipt", func(t *testing.T) {
		h := newHarness(t, WithDecoder(fakeDecoder{payload: "WIFI:S:cafe;;"}))
		res, err := h.svc.Upsert(ctx, cafeReceipt(), u, []byte{0xFF, 0xD8, 0xFF, 1})
		require.NoError(t, err)
		_, err = h.svc.Recover(ctx, res.Receipt.ID)
		assert.ErrorIs(t, err, salyk.ErrNotReceipt)
	})

	t.Run("code belongs to another receipt", func(t *testing.T) {
		h := newHarness(t, WithDecoder(fakeDecoder{payload: "https://tax.salyk.kg/client/api/v1/ticket?fd_number=9&fn_number=9&fm=9"}))
		res, err := h.svc.Upsert(ctx, cafeReceipt(), u, []byte{0xFF, 0xD8, 0xFF, 1})
		require.NoError(t, err)
		_, err = h.svc.Recover(ctx, res.Receipt.ID)
		assert.ErrorIs(t, err, receipt.ErrIdentityConflict)
	})

	t.Run("decoder failure", func(t *testing.T) {
		h := newHarness(t, WithDecoder(fakeDecoder{err: errors.New("no code")}))
		res, err := h.svc.Upsert(ctx, cafeReceipt(), u, []byte{0xFF, 0xD8, 0xFF, 1})
		require.NoError(t, err)
		_, err = h.svc.Recover(ctx, res.Receipt.ID)
		assert.Error(t, err)
	})
}

func TestTickets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.Upsert(ctx, cafeReceipt(), mustURL(t, ticketURL), nil)
	require.NoError(t, err)

	tickets, err := h.svc.Tickets(ctx)

	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, int64(35000), tickets[0].AmountMinor())
}
