package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a monetary value in micro-units (1e-6) of the settlement
// currency. All balance arithmetic in the core is integer arithmetic;
// decimal strings appear only at configuration and API boundaries.
type Amount int64

// MicrosPerUnit is the number of micro-units in one whole currency unit.
const MicrosPerUnit = 1_000_000

// ParseAmount parses a non-negative decimal string ("0.05", "12", "3.250000")
// into an Amount. More than six fractional digits is an error, not a rounding.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("parse amount: empty string")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("parse amount: negative value %q", s)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		return 0, fmt.Errorf("parse amount: %q has more than 6 fractional digits", s)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount: %q: %w", s, err)
	}

	var micros int64
	if frac != "" {
		// Right-pad to exactly six digits: "05" -> "050000".
		padded := frac + strings.Repeat("0", 6-len(frac))
		micros, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse amount: %q: %w", s, err)
		}
	}

	return Amount(units*MicrosPerUnit + micros), nil
}

// MustParseAmount is ParseAmount that panics on error. For tests and
// static configuration tables only.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount as a decimal with trailing zeros trimmed.
func (a Amount) String() string {
	neg := a < 0
	if neg {
		a = -a
	}
	units := int64(a) / MicrosPerUnit
	micros := int64(a) % MicrosPerUnit

	s := strconv.FormatInt(units, 10)
	if micros > 0 {
		frac := strings.TrimRight(fmt.Sprintf("%06d", micros), "0")
		s += "." + frac
	}
	if neg {
		s = "-" + s
	}
	return s
}

// Micros returns the raw micro-unit count.
func (a Amount) Micros() int64 { return int64(a) }

// Float64 converts to a float for scoring math. Never used for balance
// arithmetic.
func (a Amount) Float64() float64 { return float64(a) / MicrosPerUnit }

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool { return a > 0 }
