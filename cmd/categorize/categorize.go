// Package categorize implements a debugging command that classifies a
// single merchant string the same way the reconciler would.
package categorize

import (
	"fmt"

	"fintrack/billrecon/internal/config"
	"fintrack/billrecon/internal/container"

	"github.com/spf13/cobra"
)

var (
	merchantText string
	hintCategory string
)

// Cmd is the categorize command.
var Cmd = &cobra.Command{
	Use:   "categorize",
	Short: "Classify a merchant string into an obligation category",
	RunE:  run,
}

func init() {
	Cmd.Flags().StringVarP(&merchantText, "merchant", "m", "", "Merchant/description text to classify (required)")
	Cmd.Flags().StringVar(&hintCategory, "hint", "", "Optional category hint from the transaction source")
	_ = Cmd.MarkFlagRequired("merchant")
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

	category := c.Categorizer().Classify(merchantText, hintCategory)
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", category)
	return nil
}
