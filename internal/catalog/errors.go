package catalog

import (
	"errors"
	"fmt"
)

// Category groups per-item failures in the run summary.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryParse      Category = "parse"
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	// CategoryAnomaly is a record that was kept but flagged, ex. a special price above the original.
	CategoryAnomaly Category = "anomaly"
)

var Categories = []Category{
	CategoryNetwork,
	CategoryParse,
	CategoryValidation,
	CategoryNotFound,
	CategoryAnomaly,
}

// ErrNotFound is returned when every lookup candidate for a title was exhausted.
var ErrNotFound = errors.New("no enrichment page matched")

// ErrPriceInversion flags a listing whose special price is above its original price,
// the listing is kept.
var ErrPriceInversion = errors.New("special price above original price")

// NetworkError is a request that failed, after retries if it was retryable.
type NetworkError struct {
	Url string
	// Status is 0 when no response was received.
	Status    int
	Retryable bool
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.Url, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Url, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NotFound is true for 404 and 410 responses.
func (e *NetworkError) NotFound() bool {
	return e.Status == 404 || e.Status == 410
}

// ParseError is content that could not be interpreted at all.
type ParseError struct {
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ValidationError is a field that was found but holds a malformed or out of range value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// CategoryOf maps an error to the summary category it is counted under.
func CategoryOf(err error) Category {
	var networkErr *NetworkError
	var parseErr *ParseError
	var validationErr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.As(err, &networkErr):
		return CategoryNetwork
	case errors.As(err, &validationErr):
		return CategoryValidation
	case errors.As(err, &parseErr):
		return CategoryParse
	default:
		return CategoryAnomaly
	}
}

// Anomaly is a record or field that was skipped (or flagged) instead of aborting the run.
type Anomaly struct {
	Category Category
	// Item identifies what was skipped, usually a title or a url.
	Item string
	Err  error
}

func NewAnomaly(item string, err error) Anomaly {
	return Anomaly{Category: CategoryOf(err), Item: item, Err: err}
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s: %s: %v", a.Category, a.Item, a.Err)
}
