package cli

import (
	"fmt"
	"log/slog"

	"github.com/eshaffer321/receipts-reconciler/internal/adapters/qrscan"
	"github.com/eshaffer321/receipts-reconciler/internal/adapters/salyk"
	"github.com/eshaffer321/receipts-reconciler/internal/adapters/statement"
	"github.com/eshaffer321/receipts-reconciler/internal/application/receipts"
	"github.com/eshaffer321/receipts-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/receipts-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/matchstore"
	"github.com/eshaffer321/receipts-reconciler/internal/infrastructure/storage"
)

// App holds the services every command works with.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     *storage.Storage
	Notifier  *receipts.Notifier
	Receipts  *receipts.Service
	Reconcile *reconcile.Service
	Statement *statement.Decoder
}

// NewApp opens storage and the match file and wires the services.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.NewStorage(cfg.Storage.DatabasePath, logger.With("system", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	matches, err := matchstore.OpenDir(cfg.Storage.DataDir, logger.With("system", "matches"))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open match file: %w", err)
	}

	client, err := NewReceiptClient(cfg, logger.With("system", "salyk"))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	notifier := receipts.NewNotifier()
	rs := receipts.NewService(store, logger.With("system", "receipts"),
		receipts.WithFetcher(client),
		receipts.WithPhotos(storage.NewPhotoStore(cfg.Storage.DataDir)),
		receipts.WithDecoder(qrscan.NewDecoder()),
		receipts.WithNormalizer(salyk.Normalizer{Host: cfg.Fetcher.Host, TicketPath: cfg.Fetcher.TicketPath}),
		receipts.WithNotifier(notifier),
	)

	m := matcher.NewMatcher(matcher.Config{
		BucketSize:      cfg.Matcher.BucketSize,
		MerchantAliases: cfg.Matcher.MerchantAliases,
	})
	rc := reconcile.NewService(rs, m, matches, logger.With("system", "reconcile"))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Notifier:  notifier,
		Receipts:  rs,
		Reconcile: rc,
		Statement: statement.NewDecoder(cfg.Parser.Location()),
	}, nil
}

// Close releases storage.
func (a *App) Close() error {
	return a.Store.Close()
}

// NewReceiptClient creates the receipt authority client from config.
func NewReceiptClient(cfg *config.Config, logger *slog.Logger) (*salyk.Client, error) {
	layout := salyk.DefaultLayout()
	if len(cfg.Parser.TotalPatterns) > 0 {
		layout.TotalPatterns = cfg.Parser.TotalPatterns
	}
	parser, err := salyk.NewParser(layout, cfg.Parser.Location(), logger)
	if err != nil {
		return nil, fmt.Errorf("receipt layout: %w", err)
	}

	fetchCfg := salyk.DefaultConfig()
	if cfg.Fetcher.Timeout > 0 {
		fetchCfg.Timeout = cfg.Fetcher.Timeout
	}
	if cfg.Fetcher.UserAgent != "" {
		fetchCfg.UserAgent = cfg.Fetcher.UserAgent
	}
	if cfg.Fetcher.AcceptLanguage != "" {
		fetchCfg.AcceptLanguage = cfg.Fetcher.AcceptLanguage
	}
	return salyk.NewClient(fetchCfg, parser, logger), nil
}
