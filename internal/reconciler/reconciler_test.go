package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fintrack/billrecon/internal/categorizer"
	"fintrack/billrecon/internal/ledger"
	"fintrack/billrecon/internal/ledger/memorydb"
	"fintrack/billrecon/internal/logging"
	"fintrack/billrecon/internal/matcher"
	"fintrack/billrecon/internal/models"
	"fintrack/billrecon/internal/notify"
	"fintrack/billrecon/internal/reconerror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store      *memorydb.Store
	notifier   *notify.MockNotifier
	logger     *logging.MockLogger
	reconciler *Reconciler
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store := memorydb.NewStore()
	notifier := &notify.MockNotifier{}
	logger := logging.NewMockLogger()

	var seq int64
	defaults := []Option{
		WithClock(func() time.Time { return time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string {
			return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1))
		}),
	}

	r := New(
		store,
		matcher.New("jo", 0.10, logger),
		categorizer.New(nil, logger),
		notifier,
		logger,
		"jo",
		"family",
		append(defaults, opts...)...,
	)
	return &fixture{store: store, notifier: notifier, logger: logger, reconciler: r}
}

func (f *fixture) seedObligation(t *testing.T, provider, nominal string, due time.Time) models.Obligation {
	t.Helper()
	ob := models.Obligation{
		ID:            "seed-" + provider,
		CategoryKey:   "family",
		DisplayName:   provider,
		Provider:      provider,
		Category:      models.CategoryElectricity,
		NominalAmount: decimal.RequireFromString(nominal),
		PeriodStart:   due.AddDate(0, 0, -10),
		DueDate:       due,
		Frequency:     models.FrequencyMonthly,
		Status:        models.StatusPending,
	}
	stored, created, err := f.store.CreateIfAbsent(context.Background(), ob)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func electricityTx(id, amount string, date time.Time) models.Transaction {
	return models.Transaction{
		ID:           id,
		Date:         date,
		Amount:       decimal.RequireFromString(amount),
		MerchantText: "jo jo Electricity Board",
		Method:       "upi",
		Description:  "march bill",
	}
}

var (
	marchDue = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	march5   = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	march7   = time.Date(2024, 3, 7, 0, 0, 0, 0, time.UTC)
)

func TestProcess_EmptyLedgerCreatesObligation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.reconciler.Process(ctx, electricityTx("tx-1", "1200", march5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	require.NotEmpty(t, result.ObligationID)

	ob, err := f.store.GetByID(ctx, result.ObligationID)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryElectricity, ob.Category)
	assert.Equal(t, "jo jo Electricity Board", ob.Provider)
	assert.Equal(t, models.StatusPaid, ob.Status)
	assert.True(t, ob.TotalPaid.Equal(decimal.RequireFromString("1200")))
	assert.True(t, ob.AutoCreated)
	assert.Equal(t, march5, ob.DueDate)
	assert.Equal(t, march5, ob.PeriodStart)
	require.Len(t, ob.Payments, 1)
	assert.Equal(t, "tx-1", ob.Payments[0].SourceTransactionID)

	assert.Equal(t, 1, f.notifier.CallCount())
}

func TestProcess_FullPaymentAppends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeded := f.seedObligation(t, "Electricity Board", "1200", marchDue)

	result, err := f.reconciler.Process(ctx, electricityTx("tx-1", "1200", march7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, result.Outcome)
	assert.Equal(t, seeded.ID, result.ObligationID)

	ob, err := f.store.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, ob.Status)
	assert.True(t, ob.TotalPaid.Equal(decimal.RequireFromString("1200")))
	require.Len(t, ob.Payments, 1)
}

func TestProcess_PartialPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeded := f.seedObligation(t, "Electricity Board", "1200", marchDue)

	result, err := f.reconciler.Process(ctx, electricityTx("tx-1", "700", march7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, result.Outcome)

	ob, err := f.store.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPartial, ob.Status)
	assert.True(t, ob.TotalPaid.Equal(decimal.RequireFromString("700")))
}

func TestProcess_AmountOutsideToleranceCreatesNewObligation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeded := f.seedObligation(t, "Electricity Board", "1200", marchDue)

	// 25% above nominal: the amount gate fails, so a fresh obligation is
	// synthesized instead of appending to the seeded one.
	result, err := f.reconciler.Process(ctx, electricityTx("tx-1", "1500", march7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.NotEqual(t, seeded.ID, result.ObligationID)

	untouched, err := f.store.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Empty(t, untouched.Payments)
	assert.Equal(t, models.StatusPending, untouched.Status)
}

func TestProcess_GateFailingDuplicateBooksOnSameObligation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.reconciler.Process(ctx, electricityTx("tx-1", "1200", march5))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, first.Outcome)

	// Same merchant and month, but 66% above the synthesized nominal:
	// the gates reject the auto-created obligation, yet its logical key
	// is taken, so the payment must land there instead of failing.
	second, err := f.reconciler.Process(ctx, electricityTx("tx-2", "2000", march5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, second.Outcome)
	assert.Equal(t, first.ObligationID, second.ObligationID)

	all, err := f.store.ListPartition(ctx, "family")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Len(t, all[0].Payments, 2)
	assert.True(t, all[0].TotalPaid.Equal(decimal.RequireFromString("3200")))
	assert.Equal(t, models.StatusPaid, all[0].Status)
}

func TestProcess_SkipsTransactionWithoutOwnerToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx := models.Transaction{
		ID:           "tx-1",
		Date:         march5,
		Amount:       decimal.RequireFromString("1200"),
		MerchantText: "Electricity Board",
	}
	result, err := f.reconciler.Process(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, result.Outcome)
	assert.Empty(t, result.ObligationID)

	all, err := f.store.ListPartition(ctx, "family")
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 0, f.notifier.CallCount())
}

func TestProcess_InvalidTransaction(t *testing.T) {
	f := newFixture(t)

	_, err := f.reconciler.Process(context.Background(), models.Transaction{ID: "tx-1"})
	require.Error(t, err)

	var verr *reconerror.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestProcess_RepeatedTransactionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedObligation(t, "Electricity Board", "1200", marchDue)

	tx := electricityTx("tx-1", "1200", march7)
	first, err := f.reconciler.Process(ctx, tx)
	require.NoError(t, err)
	second, err := f.reconciler.Process(ctx, tx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeAppended, first.Outcome)
	assert.Equal(t, OutcomeAppended, second.Outcome)
	assert.Equal(t, first.ObligationID, second.ObligationID)

	ob, err := f.store.GetByID(ctx, first.ObligationID)
	require.NoError(t, err)
	require.Len(t, ob.Payments, 1)
	assert.True(t, ob.TotalPaid.Equal(decimal.RequireFromString("1200")))
}

func TestProcess_ConcurrentIdenticalTransactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	results := make([]Result, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], errs[n] = f.reconciler.Process(ctx, electricityTx("tx-1", "1200", march5))
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Outcome == OutcomeCreated {
			created++
		} else {
			assert.Equal(t, OutcomeAppended, results[i].Outcome)
		}
	}
	assert.Equal(t, 1, created)

	all, err := f.store.ListPartition(ctx, "family")
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Len(t, all[0].Payments, 1)
	assert.True(t, all[0].TotalPaid.Equal(decimal.RequireFromString("1200")))
}

func TestProcess_ConcurrentDistinctPaymentsAllLand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Generous retry budget: every worker conflicts with every other.
	f.reconciler.maxAttempts = 32
	seeded := f.seedObligation(t, "Electricity Board", "10000", marchDue)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			tx := electricityTx(fmt.Sprintf("tx-%d", n), "9500", march7)
			_, errs[n] = f.reconciler.Process(ctx, tx)
		}(i)
	}
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
	}

	ob, err := f.store.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	require.Len(t, ob.Payments, workers)

	sum := decimal.Zero
	for _, p := range ob.Payments {
		sum = sum.Add(p.Amount)
	}
	assert.True(t, ob.TotalPaid.Equal(sum))
	assert.Equal(t, models.StatusPaid, ob.Status)
}

func TestProcess_AmbiguousMatchIsLoggedAndFirstWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.seedObligation(t, "Electricity Board", "1200", marchDue)
	f.seedObligation(t, "Electricity Board North", "1200", marchDue)

	result, err := f.reconciler.Process(ctx, electricityTx("tx-1", "1200", march7))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppended, result.Outcome)
	assert.Equal(t, first.ID, result.ObligationID)

	assert.True(t, f.logger.HasEntry("WARN", "Ambiguous match, appending to first candidate"))
}

func TestProcess_NotifierFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.Err = errors.New("transaction source unreachable")
	ctx := context.Background()

	result, err := f.reconciler.Process(ctx, electricityTx("tx-1", "1200", march5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, result.Outcome)
	assert.True(t, f.logger.HasEntry("WARN", "Reverse sync failed"))
}

func TestProcess_CancelledBeforePersistence(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.reconciler.Process(ctx, electricityTx("tx-1", "1200", march5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	all, listErr := f.store.ListPartition(context.Background(), "family")
	require.NoError(t, listErr)
	assert.Empty(t, all)
}

type failingLedger struct {
	ledger.Ledger
	scanErr error
}

func (f *failingLedger) ListPartition(ctx context.Context, categoryKey string) ([]models.Obligation, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	return f.Ledger.ListPartition(ctx, categoryKey)
}

func TestProcess_PersistenceFailureSurfacesAsReconciliationError(t *testing.T) {
	logger := logging.NewMockLogger()
	broken := &failingLedger{Ledger: memorydb.NewStore(), scanErr: errors.New("io timeout")}
	r := New(
		broken,
		matcher.New("jo", 0.10, logger),
		categorizer.New(nil, logger),
		&notify.MockNotifier{},
		logger,
		"jo",
		"family",
	)

	result, err := r.Process(context.Background(), electricityTx("tx-1", "1200", march5))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)

	var rerr *reconerror.ReconciliationError
	require.True(t, errors.As(err, &rerr))
	var perr *reconerror.PersistenceError
	assert.True(t, errors.As(err, &perr))
}

func TestProcess_ConflictBudgetExhausted(t *testing.T) {
	f := newFixture(t, WithMaxAttempts(2))
	ctx := context.Background()
	seeded := f.seedObligation(t, "Electricity Board", "1200", marchDue)

	// Force a version conflict on every attempt by bumping the stored
	// obligation between the reconciler's read and its write.
	conflicting := &conflictingLedger{Store: f.store}
	r := New(
		conflicting,
		matcher.New("jo", 0.10, f.logger),
		categorizer.New(nil, f.logger),
		f.notifier,
		f.logger,
		"jo",
		"family",
		WithMaxAttempts(2),
	)

	_, err := r.Process(ctx, electricityTx("tx-1", "1200", march7))
	require.Error(t, err)
	var cerr *reconerror.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 2, cerr.Attempts)

	// The failed reconciliation left no partial write behind.
	ob, getErr := f.store.GetByID(ctx, seeded.ID)
	require.NoError(t, getErr)
	assert.Empty(t, ob.Payments)
}

// conflictingLedger hands out stale versions so every Update loses.
type conflictingLedger struct {
	*memorydb.Store
}

func (c *conflictingLedger) ListPartition(ctx context.Context, categoryKey string) ([]models.Obligation, error) {
	obs, err := c.Store.ListPartition(ctx, categoryKey)
	if err != nil {
		return nil, err
	}
	for i := range obs {
		obs[i].Version--
	}
	return obs, nil
}
