// Package errors provides custom error types for the backtesting engine.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrChronology        = errors.New("datetime precedes current watermark")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrMissingPrice      = errors.New("missing market price")
	ErrPortfolioExists   = errors.New("portfolio already exists")
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrUnknownCurrency   = errors.New("unknown currency")
	ErrAssetMismatch     = errors.New("asset mismatch")
	ErrInvalidWeight     = errors.New("invalid weight")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDataNotFound      = errors.New("data not found")
	ErrDatabaseError     = errors.New("database error")
	ErrSessionCompleted  = errors.New("session already run")
)

// ChronologyError is returned when a mutation is dated before the entity's clock.
type ChronologyError struct {
	Entity    string
	Operation string
	Requested time.Time
	Current   time.Time
}

func (e *ChronologyError) Error() string {
	return fmt.Sprintf("%s %s: datetime %s is earlier than current datetime %s",
		e.Entity, e.Operation, e.Requested.Format(time.RFC3339), e.Current.Format(time.RFC3339))
}

func (e *ChronologyError) Unwrap() error {
	return ErrChronology
}

// NewChronologyError creates a new ChronologyError.
func NewChronologyError(entity, operation string, requested, current time.Time) *ChronologyError {
	return &ChronologyError{
		Entity:    entity,
		Operation: operation,
		Requested: requested,
		Current:   current,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError wrapping ErrInvalidAmount.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     ErrInvalidAmount,
	}
}

// NewConfigError creates a ValidationError wrapping ErrConfigInvalid.
func NewConfigError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Err:     ErrConfigInvalid,
	}
}

// FundsError is returned when a withdrawal exceeds the available balance.
type FundsError struct {
	Entity    string
	Requested float64
	Available float64
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s: requested %.2f, available %.2f",
		e.Entity, e.Requested, e.Available)
}

func (e *FundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// NewFundsError creates a new FundsError.
func NewFundsError(entity string, requested, available float64) *FundsError {
	return &FundsError{
		Entity:    entity,
		Requested: requested,
		Available: available,
	}
}

// PriceError is returned when a price lookup yields NaN.
type PriceError struct {
	Asset string
	Side  string
	At    time.Time
}

func (e *PriceError) Error() string {
	return fmt.Sprintf("missing %s price for %s at %s", e.Side, e.Asset, e.At.Format(time.RFC3339))
}

func (e *PriceError) Unwrap() error {
	return ErrMissingPrice
}

// NewPriceError creates a new PriceError.
func NewPriceError(asset, side string, at time.Time) *PriceError {
	return &PriceError{
		Asset: asset,
		Side:  side,
		At:    at,
	}
}

// PortfolioError ties an identity failure to a portfolio id.
type PortfolioError struct {
	ID  string
	Err error
}

func (e *PortfolioError) Error() string {
	return fmt.Sprintf("portfolio %q: %v", e.ID, e.Err)
}

func (e *PortfolioError) Unwrap() error {
	return e.Err
}

// NewPortfolioError creates a new PortfolioError.
func NewPortfolioError(id string, err error) *PortfolioError {
	return &PortfolioError{
		ID:  id,
		Err: err,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
