package pdec

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestDiv_Basic(t *testing.T) {
	got, err := Div(d(1), d(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(d(0.25)) {
		t.Errorf("expected 0.25, got %s", got)
	}
}

func TestDiv_ByZero(t *testing.T) {
	_, err := Div(d(1), decimal.Zero)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestLn_One(t *testing.T) {
	got, err := Ln(decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected ln(1)=0, got %s", got)
	}
}

func TestLn_NonPositive(t *testing.T) {
	for _, v := range []decimal.Decimal{decimal.Zero, d(-1)} {
		if _, err := Ln(v); !errors.Is(err, ErrLnNonPositive) {
			t.Errorf("ln(%s): expected ErrLnNonPositive, got %v", v, err)
		}
	}
}

func TestExp_Zero(t *testing.T) {
	got, err := Exp(decimal.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected exp(0)=1, got %s", got)
	}
}

func TestExpLn_RoundTrip(t *testing.T) {
	tolerance := d(0.000000001)
	for _, f := range []float64{0.5, 1, 1.04, 2, 50} {
		v := d(f)
		ln, err := Ln(v)
		if err != nil {
			t.Fatalf("ln(%s): %v", v, err)
		}
		back, err := Exp(ln)
		if err != nil {
			t.Fatalf("exp(ln(%s)): %v", v, err)
		}
		if back.Sub(v).Abs().GreaterThan(tolerance) {
			t.Errorf("round trip of %s drifted to %s", v, back)
		}
	}
}

func TestRoundAmount_HalfToEven(t *testing.T) {
	tests := []struct {
		in   decimal.Decimal
		want decimal.Decimal
	}{
		{d(2.5), d(2)},
		{d(3.5), d(4)},
		{d(-2.5), d(-2)},
		{d(2.4), d(2)},
		{d(2.6), d(3)},
	}
	for _, tt := range tests {
		if got := RoundAmount(tt.in, 0); !got.Equal(tt.want) {
			t.Errorf("RoundAmount(%s, 0) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestRoundAmount_PreservesDivisibility(t *testing.T) {
	in, _ := decimal.NewFromString("1.0000000000000000005")
	got := RoundAmount(in, 18)
	if got.Exponent() < -18 {
		t.Errorf("expected 18 places max, got exponent %d", got.Exponent())
	}
}
