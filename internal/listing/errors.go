package listing

import (
	"errors"
	"fmt"

	"github.com/iliyamo/real-estate-listings/internal/quota"
)

var (
	// ErrQuotaExceeded is returned when the owner's plan has no free slot.
	// The concrete error is a *QuotaError carrying the decision.
	ErrQuotaExceeded = errors.New("active listing limit reached for current plan")
	ErrBanned        = errors.New("account is banned")
	ErrForbidden     = errors.New("not the owner of this listing")
	ErrInvalidDraft  = errors.New("invalid listing")
	ErrNotApproved   = errors.New("only approved listings can be featured")
)

// QuotaError reports a refused quota-consuming action.
type QuotaError struct {
	Decision quota.Decision
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s (%s plan: %d of %d active)",
		ErrQuotaExceeded.Error(), e.Decision.Plan, e.Decision.Active, e.Decision.Limit)
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

// ValidationError lists the offending fields of a Draft by name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %d field(s) rejected", ErrInvalidDraft.Error(), len(e.Fields))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidDraft }
