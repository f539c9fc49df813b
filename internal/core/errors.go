package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrConfiguration is wrapped by configuration validation failures.
var ErrConfiguration = errors.New("configuration error")

// ErrorKind classifies data source failures.
type ErrorKind string

const (
	KindConnection ErrorKind = "connection"
	KindQuery      ErrorKind = "query"
	KindTimeout    ErrorKind = "timeout"
)

// DataError is returned by the data layer for every failed operation.
type DataError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// NewDataError builds a DataError, promoting deadline errors to KindTimeout.
func NewDataError(kind ErrorKind, op string, err error) *DataError {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &DataError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a DataError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var de *DataError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func IsConnection(err error) bool { return KindOf(err) == KindConnection }
func IsQuery(err error) bool      { return KindOf(err) == KindQuery }
func IsTimeout(err error) bool    { return KindOf(err) == KindTimeout }
