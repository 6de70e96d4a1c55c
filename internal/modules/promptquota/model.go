package promptquota

import "carpool/internal/apperr"

// ErrExhausted is returned when a user has no prompts left for the current month.
var ErrExhausted = apperr.QuotaExceeded("Monthly prompt search quota exhausted")

// DefaultMonthlyPrompts is the allowance used when none is configured.
const DefaultMonthlyPrompts = 100

const monthLayout = "2006-01"
