// Package container wires the application's dependencies: configuration,
// logging, the ledger backend, the matching pipeline and the reconciler.
// All components receive their dependencies through constructors; nothing
// reaches for globals.
package container

import (
	"fmt"

	"fintrack/billrecon/internal/categorizer"
	"fintrack/billrecon/internal/config"
	"fintrack/billrecon/internal/ledger"
	"fintrack/billrecon/internal/ledger/memorydb"
	"fintrack/billrecon/internal/ledger/sqlitedb"
	"fintrack/billrecon/internal/logging"
	"fintrack/billrecon/internal/matcher"
	"fintrack/billrecon/internal/notify"
	"fintrack/billrecon/internal/reconciler"
	"fintrack/billrecon/internal/rules"
)

// Container holds the wired application dependencies. It is immutable
// after creation; components are reached through getters.
type Container struct {
	config      *config.Config
	logger      logging.Logger
	ledger      ledger.Ledger
	categorizer *categorizer.Categorizer
	matcher     *matcher.Matcher
	notifier    notify.Notifier
	reconciler  *reconciler.Reconciler
}

// New creates and wires all dependencies from the configuration.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	logger := logging.NewLogrusAdapter(cfg.Log.Level, cfg.Log.Format)

	var store ledger.Ledger
	switch cfg.Ledger.Backend {
	case "sqlite":
		sqlStore, err := sqlitedb.NewStore(cfg.Ledger.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
		}
		store = sqlStore
	case "memory":
		store = memorydb.NewStore()
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", cfg.Ledger.Backend)
	}

	ruleStore := rules.NewStore(cfg.Rules.File, logger)
	cat := categorizer.New(ruleStore, logger)
	m := matcher.New(cfg.Owner.Token, cfg.Matcher.AmountTolerance, logger)

	var notifier notify.Notifier
	if cfg.Reconciler.NotifyEnabled {
		notifier = notify.NewLogNotifier(logger)
	}

	rec := reconciler.New(
		store, m, cat, notifier, logger,
		cfg.Owner.Token, cfg.Owner.CategoryKey,
		reconciler.WithMaxAttempts(cfg.Reconciler.MaxAttempts),
	)

	return &Container{
		config:      cfg,
		logger:      logger,
		ledger:      store,
		categorizer: cat,
		matcher:     m,
		notifier:    notifier,
		reconciler:  rec,
	}, nil
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config { return c.config }

// Logger returns the shared logger.
func (c *Container) Logger() logging.Logger { return c.logger }

// Ledger returns the obligation ledger backend.
func (c *Container) Ledger() ledger.Ledger { return c.ledger }

// Categorizer returns the keyword categorizer.
func (c *Container) Categorizer() *categorizer.Categorizer { return c.categorizer }

// Matcher returns the gate matcher.
func (c *Container) Matcher() *matcher.Matcher { return c.matcher }

// Reconciler returns the reconciliation orchestrator.
func (c *Container) Reconciler() *reconciler.Reconciler { return c.reconciler }
