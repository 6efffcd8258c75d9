// Package ticker handles yield market ticker parsing, validation, and
// derivation of the curve scalar root from observed implied-rate data.
package ticker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Supported yield-bearing asset kinds.
const (
	KindLSU   = "LSU"   // liquid stake units
	KindLP    = "LP"    // AMM pool units
	KindVault = "VAULT" // yield vault shares
)

var validKinds = map[string]bool{
	KindLSU:   true,
	KindLP:    true,
	KindVault: true,
}

// tickerRegex matches: PRISM-{asset}-{kind}-{YYYYMMDD}
// Example: PRISM-XRD-LSU-20270101
var tickerRegex = regexp.MustCompile(
	`^PRISM-([A-Z0-9]+)-([A-Z]+)-(\d{8})$`,
)

var (
	ErrInvalidTicker = errors.New("ticker: invalid ticker format")
	ErrInvalidKind   = errors.New("ticker: unsupported asset kind")
)

// Ticker represents a parsed yield market ticker.
type Ticker struct {
	Ticker       string    `json:"ticker"`
	Asset        string    `json:"asset"`
	Kind         string    `json:"kind"`
	MaturityDate time.Time `json:"maturity_date"`
}

// Parse parses and validates a market ticker string.
// Format: PRISM-{asset}-{kind}-{YYYYMMDD}
func Parse(t string) (*Ticker, error) {
	matches := tickerRegex.FindStringSubmatch(t)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected PRISM-{asset}-{kind}-{YYYYMMDD})",
			ErrInvalidTicker, t)
	}

	asset := matches[1]
	kind := matches[2]
	dateStr := matches[3]

	if !validKinds[kind] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	maturity, err := time.Parse("20060102", dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %s", ErrInvalidTicker, dateStr)
	}

	return &Ticker{
		Ticker:       t,
		Asset:        asset,
		Kind:         kind,
		MaturityDate: maturity,
	}, nil
}

// Build assembles a ticker string from its parts.
func Build(asset, kind string, maturity time.Time) (string, error) {
	if !validKinds[kind] {
		return "", fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
	asset = strings.ToUpper(asset)
	if asset == "" {
		return "", fmt.Errorf("%w: empty asset", ErrInvalidTicker)
	}
	return fmt.Sprintf("PRISM-%s-%s-%s", asset, kind, maturity.UTC().Format("20060102")), nil
}

// RateObservations holds percentile values of recently observed implied
// rates for an asset, taken from comparable live markets or an off-chain
// rate feed.
type RateObservations struct {
	Percentile10 decimal.Decimal `json:"percentile_10"`
	Percentile25 decimal.Decimal `json:"percentile_25"`
	Percentile50 decimal.Decimal `json:"percentile_50"` // median
	Percentile75 decimal.Decimal `json:"percentile_75"`
	Percentile90 decimal.Decimal `json:"percentile_90"`
}

var (
	minScalarRoot = decimal.NewFromInt(10)
	maxScalarRoot = decimal.NewFromInt(500)
)

// DeriveScalarRoot computes a curve scalar root from rate observations.
// Uses the interquartile range (IQR = P75 - P25) relative to the median
// as a measure of rate uncertainty: a volatile rate wants a flatter
// curve (lower scalar) so the market can discover the rate, a stable
// rate wants a steep curve (higher scalar) for low slippage around it.
func DeriveScalarRoot(obs RateObservations, baseScalar decimal.Decimal) (decimal.Decimal, error) {
	if !baseScalar.IsPositive() {
		return decimal.Decimal{}, errors.New("ticker: base scalar must be positive")
	}

	iqr := obs.Percentile75.Sub(obs.Percentile25)
	median := obs.Percentile50

	if median.LessThanOrEqual(decimal.Zero) || iqr.LessThanOrEqual(decimal.Zero) {
		// No usable dispersion signal.
		return baseScalar.Round(2), nil
	}

	// Coefficient of variation: IQR / median.
	cv := iqr.Div(median)
	scalar := baseScalar.Div(decimal.NewFromInt(1).Add(cv))

	if scalar.LessThan(minScalarRoot) {
		return minScalarRoot, nil
	}
	if scalar.GreaterThan(maxScalarRoot) {
		return maxScalarRoot, nil
	}
	return scalar.Round(2), nil
}
