package common

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math/big"
)

// decimals is the number of fractional digits every Amount carries, per the
// "20 digits total, 8 fractional" contract.
const decimals = 8

var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)

// Amount is a fixed-point token quantity, stored internally as an integer
// count of 1e-8 units so addition and subtraction are always exact — no
// float64 ever enters a balance computation.
type Amount struct {
	units *big.Int
}

// Zero is the additive identity.
func Zero() Amount { return Amount{units: big.NewInt(0)} }

// NewFromUnits builds an Amount directly from a count of 1e-8 units.
func NewFromUnits(units int64) Amount {
	return Amount{units: big.NewInt(units)}
}

// ParseAmount parses a decimal string such as "100.00000000" or "1" into an
// Amount. It rejects more than 8 fractional digits and negative inputs are
// permitted (callers that must reject negative coins do so explicitly).
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	neg := false
	if s[0] == '-' {
		neg = true
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	for i, c := range s {
		if c == '.' {
			intPart = s[:i]
			fracPart = s[i+1:]
			break
		}
	}
	if len(fracPart) > decimals {
		return Amount{}, fmt.Errorf("amount %q has more than %d fractional digits", s, decimals)
	}
	for len(fracPart) < decimals {
		fracPart += "0"
	}
	if intPart == "" {
		intPart = "0"
	}
	units, ok := new(big.Int).SetString(intPart+fracPart, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	if neg {
		units.Neg(units)
	}
	return Amount{units: units}, nil
}

// MustParseAmount panics on a malformed literal; for constants only.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) bigOrZero() *big.Int {
	if a.units == nil {
		return big.NewInt(0)
	}
	return a.units
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{units: new(big.Int).Add(a.bigOrZero(), b.bigOrZero())}
}

// Sub returns a - b.
func (a Amount) Sub(b Amount) Amount {
	return Amount{units: new(big.Int).Sub(a.bigOrZero(), b.bigOrZero())}
}

// Cmp returns -1, 0, or 1 as a is less than, equal to, or greater than b.
func (a Amount) Cmp(b Amount) int {
	return a.bigOrZero().Cmp(b.bigOrZero())
}

// Sign returns -1, 0, or 1 per the sign of the amount.
func (a Amount) Sign() int {
	return a.bigOrZero().Sign()
}

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool {
	return a.Sign() > 0
}

// String renders the amount with exactly 8 fractional digits, zero-padded,
// never in scientific notation — the canonical wire/preimage form.
func (a Amount) String() string {
	units := a.bigOrZero()
	neg := units.Sign() < 0
	abs := new(big.Int).Abs(units)
	s := abs.String()
	for len(s) <= decimals {
		s = "0" + s
	}
	intPart := s[:len(s)-decimals]
	fracPart := s[len(s)-decimals:]
	out := intPart + "." + fracPart
	if neg {
		out = "-" + out
	}
	return out
}

// MarshalJSON renders the amount as a JSON string, preserving precision.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses the amount from a JSON string.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Value implements driver.Valuer so gorm stores amounts as decimal strings.
func (a Amount) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner so gorm reads amounts back out as decimal
// strings rather than lossy floats.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseAmount(v)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case []byte:
		parsed, err := ParseAmount(string(v))
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	case nil:
		*a = Zero()
		return nil
	default:
		return fmt.Errorf("unsupported Scan type %T for Amount", src)
	}
}
