// Package report aggregates the outcomes of a batch reconciliation run
// into a printable summary.
package report

import (
	"fmt"
	"strings"

	"fintrack/billrecon/internal/reconciler"
)

// Failure is one transaction whose reconciliation failed. The failure is
// informational: the source transaction itself stays committed.
type Failure struct {
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
}

// Summary tallies the outcome of every processed transaction.
type Summary struct {
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Appended  int       `json:"appended"`
	Created   int       `json:"created"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Record adds one Process result to the summary.
func (s *Summary) Record(result reconciler.Result, err error) {
	s.Processed++
	switch result.Outcome {
	case reconciler.OutcomeSkipped:
		s.Skipped++
	case reconciler.OutcomeAppended:
		s.Appended++
	case reconciler.OutcomeCreated:
		s.Created++
	default:
		s.Failed++
		reason := "unknown failure"
		if err != nil {
			reason = err.Error()
		}
		s.Failures = append(s.Failures, Failure{TransactionID: result.TransactionID, Reason: reason})
	}
}

// Render returns a human-readable summary block.
func (s *Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reconciliation summary\n")
	fmt.Fprintf(&b, "  processed: %d\n", s.Processed)
	fmt.Fprintf(&b, "  appended:  %d\n", s.Appended)
	fmt.Fprintf(&b, "  created:   %d\n", s.Created)
	fmt.Fprintf(&b, "  skipped:   %d\n", s.Skipped)
	fmt.Fprintf(&b, "  failed:    %d\n", s.Failed)
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "    %s: %s\n", f.TransactionID, f.Reason)
	}
	return b.String()
}
