// Package root contains the root command for the application.
package root

import (
	"github.com/spf13/cobra"
)

// Cmd is the root command. Subcommands are attached in main.
var Cmd = &cobra.Command{
	Use:   "billrecon",
	Short: "Reconcile payment transactions against recurring obligations.",
	Long: `billrecon is the transaction-to-obligation reconciliation engine.
For each incoming payment transaction it decides whether the payment
satisfies an existing recurring obligation ("bill") or represents a new
one, and maintains an append-only, duplicate-free payment history per
obligation.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}
