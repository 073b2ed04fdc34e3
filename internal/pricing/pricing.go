// Package pricing implements the pure billing math: measurement to billable
// amount, volumetric weight, chargeable weight and the declared-vs-verified
// discrepancy check. Nothing in here touches storage or I/O.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/andrescamacho/guiatrack/internal/model"
)

// ErrInvalidInput is returned for negative measurements, dimensions or amounts.
var ErrInvalidInput = errors.New("invalid input")

// volumetricDivisor is the standard air-freight divisor for converting
// centimeter dimensions into kilograms.
const volumetricDivisor = 6000

// Discrepancy is the non-fatal advisory raised when the warehouse-verified
// measurement drifts beyond tolerance from the declared one. The verification
// still completes; the advisory is surfaced to staff and the notifier.
type Discrepancy struct {
	Declared  float64 `json:"declared"`
	Verified  float64 `json:"verified"`
	Delta     float64 `json:"delta"`
	Tolerance float64 `json:"tolerance"`
}

// Engine holds the per-mode unit rates and the verification tolerance. Rates
// are configuration constants: air and domestic bill per kg, sea per cubic
// foot. A single flat rate is also valid configuration (the same rate mapped
// to every mode).
type Engine struct {
	rates            map[model.Mode]decimal.Decimal
	tolerancePercent float64
}

// NewEngine constructs an Engine. tolerancePercent is the allowed drift between
// declared and verified measurements, as a percentage of the declared value.
func NewEngine(rates map[model.Mode]decimal.Decimal, tolerancePercent float64) (*Engine, error) {
	if len(rates) == 0 {
		return nil, fmt.Errorf("pricing: no unit rates configured")
	}
	for mode, rate := range rates {
		if rate.IsNegative() {
			return nil, fmt.Errorf("pricing: negative rate for mode %s", mode)
		}
	}
	if tolerancePercent < 0 {
		return nil, fmt.Errorf("pricing: negative tolerance")
	}
	return &Engine{rates: rates, tolerancePercent: tolerancePercent}, nil
}

// UnitRate returns the configured rate for a mode.
func (e *Engine) UnitRate(mode model.Mode) (decimal.Decimal, error) {
	rate, ok := e.rates[mode]
	if !ok {
		return decimal.Zero, fmt.Errorf("no unit rate for mode %q: %w", mode, ErrInvalidInput)
	}
	return rate, nil
}

// Billable returns measurement × unitRate(mode), rounded to cents.
func (e *Engine) Billable(measurement float64, mode model.Mode) (decimal.Decimal, error) {
	if measurement < 0 {
		return decimal.Zero, fmt.Errorf("negative measurement: %w", ErrInvalidInput)
	}
	rate, err := e.UnitRate(mode)
	if err != nil {
		return decimal.Zero, err
	}
	return rate.Mul(decimal.NewFromFloat(measurement)).Round(2), nil
}

// CheckDiscrepancy compares a verified measurement against the declared one and
// returns an advisory when the drift exceeds tolerance, nil otherwise.
func (e *Engine) CheckDiscrepancy(declared, verified float64) *Discrepancy {
	delta := math.Abs(verified - declared)
	threshold := declared * e.tolerancePercent / 100
	if delta <= threshold {
		return nil
	}
	return &Discrepancy{
		Declared:  declared,
		Verified:  verified,
		Delta:     delta,
		Tolerance: threshold,
	}
}

// Volumetric returns (length × width × height) / 6000, the volumetric weight
// for centimeter dimensions.
func Volumetric(length, width, height float64) (float64, error) {
	if length < 0 || width < 0 || height < 0 {
		return 0, fmt.Errorf("negative dimension: %w", ErrInvalidInput)
	}
	return length * width * height / volumetricDivisor, nil
}

// Chargeable returns the greater of the actual and volumetric weights, the
// figure airlines actually bill.
func Chargeable(actual, volumetric float64) float64 {
	return math.Max(actual, volumetric)
}
