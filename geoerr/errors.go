// Package geoerr holds the error kinds returned by the raster and vector
// packages. Each typed error matches its sentinel through errors.Is, so callers
// can branch on the kind without caring about the details.
package geoerr

import (
	"errors"
	"fmt"
)

var (
	ErrIO                   = errors.New("io error")
	ErrComputation          = errors.New("computation error")
	ErrUnsupportedStatistic = errors.New("unsupported statistic")
	ErrUnsupportedFormat    = errors.New("unsupported format")
	ErrCRSMismatch          = errors.New("crs mismatch")
)

// IOError reports a file that could not be opened, read, written or closed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// ComputationError reports invalid band indices or mismatched grid shapes.
type ComputationError struct {
	Msg string
}

func (e *ComputationError) Error() string { return "computation: " + e.Msg }

func (e *ComputationError) Is(target error) bool { return target == ErrComputation }

// Computationf builds a ComputationError from a format string.
func Computationf(format string, args ...any) error {
	return &ComputationError{Msg: fmt.Sprintf(format, args...)}
}

type UnsupportedStatisticError struct {
	Name      string
	Supported []string
}

func (e *UnsupportedStatisticError) Error() string {
	return fmt.Sprintf("statistic %q not supported, choose from %v", e.Name, e.Supported)
}

func (e *UnsupportedStatisticError) Is(target error) bool { return target == ErrUnsupportedStatistic }

// UnsupportedFormatError is returned when an output path carries an extension
// no driver is registered for.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("%s: missing file extension", e.Path)
	}
	return fmt.Sprintf("%s: unsupported extension %q", e.Path, e.Ext)
}

func (e *UnsupportedFormatError) Is(target error) bool { return target == ErrUnsupportedFormat }

// CRSMismatchError wraps a failed reprojection between two spatial references.
type CRSMismatchError struct {
	From string
	To   string
	Err  error
}

func (e *CRSMismatchError) Error() string {
	return fmt.Sprintf("reproject %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *CRSMismatchError) Unwrap() error { return e.Err }

func (e *CRSMismatchError) Is(target error) bool { return target == ErrCRSMismatch }
