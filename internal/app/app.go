// Package app holds the explicit application context: the configuration,
// logger, active store path and lock that every command needs. Nothing in
// the inventory packages reads globals; they receive what they use from here.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/stockbook/internal/backup"
	"github.com/roach88/stockbook/internal/catalog"
	"github.com/roach88/stockbook/internal/config"
	"github.com/roach88/stockbook/internal/logging"
	"github.com/roach88/stockbook/internal/media"
	"github.com/roach88/stockbook/internal/money"
	"github.com/roach88/stockbook/internal/sales"
	"github.com/roach88/stockbook/internal/store"
	"github.com/roach88/stockbook/internal/store/migrate"
)

// App is the per-process context.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Store  store.Provider
	Lock   *store.Lock

	// Clock and NewID are replaceable for tests. NewID nil means uuid v7.
	Clock func() time.Time
	NewID func() string
}

// New builds an App from cfg, logging to console.
func New(cfg config.Config, console io.Writer) (*App, error) {
	logger, err := logging.New(cfg.Logging, console)
	if err != nil {
		return nil, err
	}
	return NewWithLogger(cfg, logger), nil
}

// NewWithLogger builds an App around an existing logger. A nil logger
// discards output.
func NewWithLogger(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := store.Provider{Path: cfg.Store}
	return &App{
		Config: cfg,
		Logger: logger,
		Store:  provider,
		Lock:   provider.Lock(),
		Clock:  time.Now,
	}
}

// Catalog returns the product, category and profile service.
func (a *App) Catalog() *catalog.Service {
	return catalog.NewService(a.Store,
		catalog.WithDeletePolicy(a.Config.DeletePolicy()),
		catalog.WithClock(a.Clock),
		catalog.WithLogger(a.Logger.Named("catalog")),
	)
}

// Sales returns the sale recorder. Recording holds the store lock shared.
func (a *App) Sales() *sales.Recorder {
	return sales.NewRecorder(a.Store,
		sales.WithLock(a.Lock),
		sales.WithClock(a.Clock),
		sales.WithLogger(a.Logger.Named("sales")),
	)
}

// Backups returns the backup and import manager for the active store.
func (a *App) Backups() *backup.Manager {
	return backup.NewManager(a.Config.Store,
		backup.WithClock(a.Clock),
		backup.WithLogger(a.Logger.Named("backup")),
		backup.WithBestEffortCheckpoint(a.Config.Backup.BestEffortCheckpoint),
	)
}

// Media returns the image store.
func (a *App) Media() *media.Store {
	return &media.Store{Dir: a.Config.MediaPath(), NewID: a.NewID}
}

// Money returns the display formatter for amounts.
func (a *App) Money() (*money.Formatter, error) {
	return money.NewFormatter(a.Config.Display.Locale, a.Config.Display.Currency)
}

// Init creates the store if needed and brings its schema up to date.
func (a *App) Init(ctx context.Context) (migrate.Report, error) {
	st, err := a.Store.Open(ctx)
	if err != nil {
		return migrate.Report{}, fmt.Errorf("init: %w", err)
	}
	defer st.Close()

	report := st.Migration()
	a.Logger.Info("store ready",
		zap.String("path", st.Path()),
		zap.Int("from", report.From),
		zap.Int("to", report.To),
		zap.Bool("fresh", report.Fresh),
		zap.Strings("applied", report.Applied),
	)
	return report, nil
}

// MigrationStatus describes the schema of the active store.
type MigrationStatus struct {
	Path    string            `json:"path"`
	Version int               `json:"version"`
	Latest  int               `json:"latest"`
	Pending []string          `json:"pending,omitempty"`
	History []migrate.Applied `json:"history"`
}

// MigrationStatus reports the recorded version and history without
// migrating. The store must exist.
func (a *App) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	st, err := store.OpenExisting(ctx, a.Config.Store)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migration status: %w", err)
	}
	defer st.Close()

	version, err := st.SchemaVersion(ctx)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migration status: %w", err)
	}
	history, err := migrate.History(ctx, st.DB())
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migration status: %w", err)
	}

	m := migrate.Default()
	status := MigrationStatus{
		Path:    st.Path(),
		Version: version,
		Latest:  m.Latest(),
		History: history,
	}
	for _, step := range m.Steps() {
		if step.Version > version {
			status.Pending = append(status.Pending, step.Name)
		}
	}
	return status, nil
}

// Close flushes the logger.
func (a *App) Close() error {
	// Sync on a console logger returns EINVAL on some terminals.
	_ = a.Logger.Sync()
	return nil
}
