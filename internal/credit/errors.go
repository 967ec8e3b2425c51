package credit

import (
	"errors"
	"fmt"
)

// ErrBalanceUnavailable means every balance read failed, so no spendable
// total could be computed. Nothing was changed.
var ErrBalanceUnavailable = errors.New("credit: all balance reads failed")

// InsufficientCreditsError reports the shortfall between what a request needs
// and what can actually be drawn. Available is the aggregate total when the
// total itself falls short, or the largest single source when only the
// no-split-reservation rule blocks the spend.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}
