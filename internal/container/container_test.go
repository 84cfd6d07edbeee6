package container

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fintrack/billrecon/internal/config"
	"fintrack/billrecon/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Log.Level = "error"
	cfg.Log.Format = "text"
	cfg.Owner.Token = "jo"
	cfg.Owner.CategoryKey = "family"
	cfg.Matcher.AmountTolerance = 0.10
	cfg.Ledger.Backend = "memory"
	cfg.Reconciler.MaxAttempts = 3
	cfg.Reconciler.NotifyEnabled = true
	return cfg
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestNew_MemoryBackend(t *testing.T) {
	c, err := New(baseConfig())
	require.NoError(t, err)
	require.NotNil(t, c.Reconciler())
	require.NotNil(t, c.Ledger())

	// The wired reconciler is functional end to end.
	result, err := c.Reconciler().Process(context.Background(), models.Transaction{
		ID:           "tx-1",
		Date:         time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		Amount:       decimal.RequireFromString("1200"),
		MerchantText: "jo Electricity Board",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.ObligationID)
}

func TestNew_SQLiteBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.Ledger.Backend = "sqlite"
	cfg.Ledger.SQLitePath = filepath.Join(t.TempDir(), "ledger.db")

	c, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, c.Ledger())
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := baseConfig()
	cfg.Ledger.Backend = "postgres"
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger backend")
}
