package domain

import (
	"errors"
	"fmt"
)

var (
	ErrExtraction      = errors.New("extraction failure")
	ErrRuleEvaluation  = errors.New("rule evaluation error")
	ErrLedgerImbalance = errors.New("ledger imbalance")
	ErrTimeout         = errors.New("processing timeout")
	ErrNotFound        = errors.New("not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
