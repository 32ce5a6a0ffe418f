package domain

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Figure is a numeric profile field. The web client sends these as JSON
// numbers, numeric strings, empty strings or null depending on which form
// produced the row, so decoding is lenient: anything that is not a number is
// treated as absent.
type Figure struct {
	Value decimal.Decimal
	Valid bool
}

func NewFigure(v int64) Figure {
	return Figure{Value: decimal.NewFromInt(v), Valid: true}
}

func (f *Figure) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	d, err := decimal.NewFromString(s)
	if s == "" || s == "null" || err != nil {
		*f = Figure{}
		return nil
	}
	*f = Figure{Value: d, Valid: true}
	return nil
}

func (f Figure) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return []byte(f.Value.String()), nil
}

// Positive reports whether the figure is present and greater than zero.
func (f Figure) Positive() bool {
	return f.Valid && f.Value.IsPositive()
}

func (f Figure) String() string {
	if !f.Valid {
		return ""
	}
	return f.Value.String()
}

// Or returns the figure's value, or def when it is absent.
func (f Figure) Or(def decimal.Decimal) decimal.Decimal {
	if !f.Valid {
		return def
	}
	return f.Value
}
