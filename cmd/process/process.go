// Package process implements the batch reconciliation command: it reads
// transactions from a CSV file and runs each one through the reconciler.
package process

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/billrecon/internal/config"
	"fintrack/billrecon/internal/container"
	"fintrack/billrecon/internal/models"
	"fintrack/billrecon/internal/reconciler"
	"fintrack/billrecon/internal/report"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var inputFile string

// Cmd is the process command.
var Cmd = &cobra.Command{
	Use:   "process",
	Short: "Reconcile a CSV file of transactions against the obligation ledger",
	Long: `Reads transactions from a CSV file (columns: id, date, amount,
merchant, category, method, description) and reconciles each one. A
summary is printed when the batch completes; individual failures never
abort the run.`,
	RunE: run,
}

func init() {
	Cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input CSV file with transactions (required)")
	_ = Cmd.MarkFlagRequired("input")
}

// csvTransaction is one CSV row. Amount stays a string until conversion
// so malformed rows fail with a row-level error instead of a CSV error.
type csvTransaction struct {
	ID          string `csv:"id"`
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Merchant    string `csv:"merchant"`
	Category    string `csv:"category"`
	Method      string `csv:"method"`
	Description string `csv:"description"`
}

func (row *csvTransaction) toTransaction() (models.Transaction, error) {
	date, err := time.Parse("2006-01-02", row.Date)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("bad date %q: %w", row.Date, err)
	}
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("bad amount %q: %w", row.Amount, err)
	}
	return models.Transaction{
		ID:           row.ID,
		Date:         date,
		Amount:       amount,
		MerchantText: row.Merchant,
		Category:     row.Category,
		Method:       row.Method,
		Description:  row.Description,
	}, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	c, err := container.New(cfg)
	if err != nil {
		return err
	}

	file, err := os.Open(inputFile)
	if err != nil {
		return fmt.Errorf("failed to open input file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var rows []*csvTransaction
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return fmt.Errorf("failed to parse input file: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var summary report.Summary
	for _, row := range rows {
		if ctx.Err() != nil {
			break
		}
		tx, err := row.toTransaction()
		if err != nil {
			summary.Record(reconciler.Result{Outcome: reconciler.OutcomeFailed, TransactionID: row.ID}, err)
			continue
		}
		result, err := c.Reconciler().Process(ctx, tx)
		summary.Record(result, err)
	}

	fmt.Fprint(cmd.OutOrStdout(), summary.Render())
	return nil
}
