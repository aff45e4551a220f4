package domain

import (
	"strconv"
	"strings"
)

// MaxResultLimit caps the number of hits a single query may request.
const MaxResultLimit = 100

// ValidateIDPolicy checks that p names a known identifier policy.
func ValidateIDPolicy(p IDPolicy) error {
	if !ValidIDPolicies[p] {
		return NewValidationError("id_policy", string(p), ErrInvalidPolicy)
	}
	return nil
}

// ValidateExternalID checks that m carries an id usable as a point id.
func ValidateExternalID(m RawMovie) error {
	if !m.HasID {
		return NewValidationError("id", m.Title, ErrMissingID)
	}
	if m.ID < 0 {
		return NewValidationError("id", strconv.FormatInt(m.ID, 10), ErrNegativeID)
	}
	return nil
}

// ValidateBatchSize checks an upsert batch size.
func ValidateBatchSize(n int) error {
	if n <= 0 {
		return NewValidationError("batch_size", strconv.Itoa(n), ErrInvalidBatchSize)
	}
	return nil
}

// ValidateLimit checks a query result limit.
func ValidateLimit(k int) error {
	if k <= 0 || k > MaxResultLimit {
		return NewValidationError("limit", strconv.Itoa(k), ErrInvalidLimit)
	}
	return nil
}

// NormalizeQuery trims q; an empty result means the query is a no-op.
func NormalizeQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return q, nil
}
