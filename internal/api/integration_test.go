package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/receipts-reconciler/internal/adapters/salyk"
	"github.com/eshaffer321/receipts-reconciler/internal/adapters/statement"
	"github.com/eshaffer321/receipts-reconciler/internal/api"
	"github.com/eshaffer321/receipts-reconciler/internal/api/dto"
	"github.com/eshaffer321/receipts-reconciler/internal/application/receipts"
	"github.com/eshaffer321/receipts-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/matchstore"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/storage"
)

// These tests run the full stack: HTTP request, router, handlers, services,
// the real ticket parser against a local copy of the authority's page, and
// SQLite.

const ticketPage = `<!DOCTYPE html>
<html><body>
<div class="content">
  <div class="text-align-center">
    <div class="mb-1">КАССОВЫЙ ЧЕК</div>
    <div class="mb-1">CAFE AROMA</div>
    <div class="mb-1">ИНН: <span>01234567890123</span></div>
  </div>
  <div class="mb-1">г. Бишкек, пр. Чуй 100</div>
  <div class="mb-1">20.09.2025 14:01:10</div>
  <table class="table">
    <tr><th>№</th><th>Наименование</th><th>Цена</th><th>Кол-во</th><th>Сумма</th></tr>
    <tr><td>1</td><td>Латте</td><td>175,00</td><td>2</td><td>350,00</td></tr>
  </table>
  <div>ИТОГО К ОПЛАТЕ: 350.00</div>
</div>
</body></html>`

// redirectTransport sends every request to target, keeping path and query.
type redirectTransport struct {
	target *url.URL
	hits   atomic.Int32
}

func (rt *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.hits.Add(1)
	out := req.Clone(req.Context())
	out.URL.Scheme = rt.target.Scheme
	out.URL.Host = rt.target.Host
	out.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

type integrationEnv struct {
	ts        *httptest.Server
	transport *redirectTransport
	store     *storage.Storage
}

func createTestServer(t *testing.T) *integrationEnv {
	t.Helper()
	logger := quietLogger()

	authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != salyk.DefaultTicketPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(ticketPage))
	}))
	t.Cleanup(authority.Close)
	target, err := url.Parse(authority.URL)
	require.NoError(t, err)
	transport := &redirectTransport{target: target}

	dataDir := t.TempDir()
	store, err := storage.NewStorage(filepath.Join(dataDir, "receipts.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	parser, err := salyk.NewParser(salyk.DefaultLayout(), bishkek, logger)
	require.NoError(t, err)
	client := salyk.NewClient(salyk.DefaultConfig(), parser, logger,
		salyk.WithHTTPClient(&http.Client{Transport: transport}))

	notifier := receipts.NewNotifier()
	rs := receipts.NewService(store, logger,
		receipts.WithFetcher(client),
		receipts.WithPhotos(storage.NewPhotoStore(dataDir)),
		receipts.WithNotifier(notifier))

	matches, err := matchstore.OpenDir(dataDir, logger)
	require.NoError(t, err)
	rc := reconcile.NewService(rs, matcher.NewMatcher(matcher.DefaultConfig()), matches, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = rc.Run(ctx, notifier) }()

	server := api.NewServer(api.DefaultConfig(), rs, rc, statement.NewDecoder(bishkek), logger)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &integrationEnv{ts: ts, transport: transport, store: store}
}

func postJSON(t *testing.T, u string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(u, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestAPI_Integration_HealthCheck(t *testing.T) {
	env := createTestServer(t)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health dto.HealthResponse
	err = json.NewDecoder(resp.Body).Decode(&health)
	require.NoError(t, err)

	assert.Equal(t, "ok", health.Status)
}

func TestAPI_Integration_ListReceipts_Empty(t *testing.T) {
	env := createTestServer(t)

	resp, err := http.Get(env.ts.URL + "/api/receipts")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list dto.ReceiptListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 0, list.Count)
	assert.NotNil(t, list.Receipts)
}

func TestAPI_Integration_ScanThenReconcile(t *testing.T) {
	env := createTestServer(t)

	// Scan: the payload carries a foreign host and plain http.
	resp := postJSON(t, env.ts.URL+"/api/receipts/scan", dto.ScanRequest{
		Payload: "http://evil.example/client/api/v1/ticket?fd_number=101&fn_number=202&fm=303&sum=35000",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var scan dto.ScanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scan))
	assert.Equal(t, "CAFE AROMA", scan.Receipt.Merchant)
	assert.Equal(t, "01234567890123", scan.Receipt.TaxID)
	assert.Equal(t, "350.00", scan.Receipt.Total)
	assert.True(t, strings.HasPrefix(scan.Receipt.SourceURL, "https://tax.salyk.kg/"))
	require.Len(t, scan.Receipt.Items, 1)
	assert.Equal(t, "Латте", scan.Receipt.Items[0].Name)
	assert.Equal(t, int32(1), env.transport.hits.Load())

	// The stored record survives the round trip through SQLite.
	got, err := http.Get(env.ts.URL + "/api/receipts/" + scan.Receipt.ID)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	var stored dto.ReceiptResponse
	require.NoError(t, json.NewDecoder(got.Body).Decode(&stored))
	assert.Equal(t, mustUTC(t, scan.Receipt.IssuedAt), mustUTC(t, stored.IssuedAt))
	assert.Equal(t, "2025-09-20T08:01:10Z", mustUTC(t, stored.IssuedAt))

	// Reconcile once the index has picked up the new receipt.
	statementJSON := `{"transactions": [{"date": "2025-09-20T14:03:00", "description": "CAFE AROMA", "debit": 350.00}]}`
	var report dto.ReconcileResponse
	require.Eventually(t, func() bool {
		r, err := http.Post(env.ts.URL+"/api/statements/reconcile", "application/json", strings.NewReader(statementJSON))
		if err != nil {
			return false
		}
		defer r.Body.Close()
		report = dto.ReconcileResponse{}
		return r.StatusCode == http.StatusOK &&
			json.NewDecoder(r.Body).Decode(&report) == nil &&
			report.Matched == 1
	}, 2*time.Second, 20*time.Millisecond)

	match := report.Transactions[0].Match
	require.NotNil(t, match)
	assert.Equal(t, scan.Receipt.ID, match.ReceiptID)
	assert.Equal(t, "exact", match.Confidence)
	assert.Equal(t, int64(110), match.TimeDeltaSec)

	// Extra query parameters keep the fiscal identity.
	again := postJSON(t, env.ts.URL+"/api/receipts/scan", dto.ScanRequest{
		Payload: "https://tax.salyk.kg/client/api/v1/ticket?fd_number=101&fn_number=202&fm=303&utm=qr",
	})
	defer again.Body.Close()
	assert.Equal(t, http.StatusOK, again.StatusCode)
	var second dto.ScanResponse
	require.NoError(t, json.NewDecoder(again.Body).Decode(&second))
	assert.Equal(t, scan.Receipt.ID, second.Receipt.ID)
	assert.False(t, second.Created)
}

func mustUTC(t *testing.T, s string) string {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts.UTC().Format(time.RFC3339)
}
