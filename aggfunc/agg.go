// Package aggfunc provides the statistics used to summarise raster cells,
// either per polygon or per S2 cell.
package aggfunc

import (
	"strings"

	"ndvi-tools/geoerr"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// AggFunc reduces a non-empty set of values to one.
type AggFunc func(...float64) float64

type Statistic int

const (
	Mean Statistic = iota
	Min
	Max
	Sum
)

var names = [...]string{
	Mean: "mean",
	Min:  "min",
	Max:  "max",
	Sum:  "sum",
}

func (s Statistic) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return names[s]
}

// Names lists the supported statistic names in declaration order.
func Names() []string {
	return append([]string(nil), names[:]...)
}

// Parse maps a statistic name (case-insensitive) to a Statistic.
func Parse(name string) (Statistic, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range names {
		if n == key {
			return Statistic(i), nil
		}
	}
	return 0, &geoerr.UnsupportedStatisticError{Name: name, Supported: Names()}
}

// Valid reports whether s is one of the declared statistics.
func (s Statistic) Valid() bool {
	return s >= 0 && int(s) < len(names)
}

// Func returns the function behind s, or nil for an invalid statistic.
func (s Statistic) Func() AggFunc {
	switch s {
	case Mean:
		return MeanOf
	case Min:
		return MinOf
	case Max:
		return MaxOf
	case Sum:
		return SumOf
	default:
		return nil
	}
}

// Apply runs the statistic over values. ok is false when values is empty, in
// which case the statistic is undefined, or when s is not a valid statistic.
func (s Statistic) Apply(values []float64) (res float64, ok bool) {
	fn := s.Func()
	if len(values) == 0 || fn == nil {
		return 0, false
	}
	return fn(values...), true
}

func MeanOf(inData ...float64) float64 {
	return stat.Mean(inData, nil)
}

func SumOf(inData ...float64) float64 {
	return floats.Sum(inData)
}

func MaxOf(inData ...float64) float64 {
	return floats.Max(inData)
}

func MinOf(inData ...float64) float64 {
	return floats.Min(inData)
}
