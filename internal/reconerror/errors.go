// Package reconerror defines the error taxonomy of the reconciliation
// engine. All reconciliation errors are local to Process; they are never
// allowed to propagate into the caller's own transaction write.
package reconerror

import (
	"fmt"
	"strings"
)

// PersistenceError reports a failed ledger read or write.
type PersistenceError struct {
	Op  string // ledger operation, e.g. "append", "create", "scan"
	Key string // logical key or obligation id involved
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger %s failed for %s: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ConflictError reports that the compare-and-swap retry budget was
// exhausted by concurrent writers on the same obligation.
type ConflictError struct {
	Key      string
	Attempts int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("gave up on %s after %d conflicting write attempts", e.Key, e.Attempts)
}

// AmbiguousMatchError records that more than one candidate obligation
// passed every matching gate. The reconciler still appends to the first
// candidate; this error exists for the audit log, not for control flow.
type AmbiguousMatchError struct {
	TransactionID string
	CandidateIDs  []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("transaction %s matched %d obligations [%s]; appended to the first",
		e.TransactionID, len(e.CandidateIDs), strings.Join(e.CandidateIDs, ", "))
}

// ReconciliationError wraps any failure of Process for one transaction.
// It is reported to the caller but must never block or roll back the
// transaction that triggered reconciliation.
type ReconciliationError struct {
	TransactionID string
	Err           error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation failed for transaction %s: %v", e.TransactionID, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// ValidationError reports an invalid incoming transaction.
type ValidationError struct {
	TransactionID string
	Reason        string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction %s: %s", e.TransactionID, e.Reason)
}
