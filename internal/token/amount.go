package token

import (
	"fmt"
	"math/big"
	"strings"
)

// Decimals is the fixed-point precision of the token (USDC uses 6).
const Decimals = 6

var unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// ParseAmount converts a decimal string into integer token units.
// The parse is exact: no floating point is involved, and fractional
// digits beyond the token precision are rejected rather than rounded.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("amount %q is negative", s)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("amount %q exceeds %d decimal places", s, Decimals)
	}
	frac += strings.Repeat("0", Decimals-len(frac))

	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	f := big.NewInt(0)
	if frac != strings.Repeat("0", Decimals) {
		f, ok = new(big.Int).SetString(frac, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount %q", s)
		}
	}

	return new(big.Int).Add(new(big.Int).Mul(w, unit), f), nil
}

// FormatUnits renders integer token units as a decimal string with
// trailing zeros trimmed.
func FormatUnits(v *big.Int) string {
	if v == nil || v.Sign() == 0 {
		return "0"
	}
	q, r := new(big.Int).QuoRem(v, unit, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%0*d", Decimals, r), "0")
	return q.String() + "." + frac
}

// WithinTolerance reports whether observed covers expected within the
// given tolerance in basis points. Pure integer arithmetic: a 1%
// band (100 bps) accepts observed*10000 >= expected*9900.
func WithinTolerance(observed, expected *big.Int, toleranceBps int64) bool {
	if observed == nil || expected == nil {
		return false
	}
	lhs := new(big.Int).Mul(observed, big.NewInt(10000))
	rhs := new(big.Int).Mul(expected, big.NewInt(10000-toleranceBps))
	return lhs.Cmp(rhs) >= 0
}
