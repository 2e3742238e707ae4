package allocation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

// Normalize folds full-width characters (IME digit input) to half width.
func Normalize(s string) string {
	return strings.TrimSpace(width.Narrow.String(s))
}

// ParseQuantity reads a cell value. Empty input is zero; negatives clamp to zero.
func ParseQuantity(s string) (int, error) {
	s = Normalize(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// ParsePrice accepts "¥1,200" style input. Empty input is zero.
func ParsePrice(s string) (decimal.Decimal, error) {
	s = Normalize(s)
	s = strings.NewReplacer("¥", "", "￥", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", s)
	}
	return d, nil
}

// isNumeral reports whether key is text that belongs in a numeric field.
func isNumeral(key string, allowPoint bool) bool {
	k := Normalize(key)
	if k == "" {
		return false
	}
	for _, r := range k {
		switch {
		case r >= '0' && r <= '9':
		case allowPoint && r == '.':
		default:
			return false
		}
	}
	return true
}
