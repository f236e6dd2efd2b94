package clinic

import (
	"fmt"
	"strconv"
	"strings"
)

// Cents is a fixed-point monetary amount with two fractional digits, stored
// as an integer number of cents. All totals are computed in integer
// arithmetic; floats never enter the calculation.
type Cents int64

// ParseAmount parses a decimal string such as "95.00" or "-3.5" into cents.
// Fractional digits beyond the second are rounded half-even.
func ParseAmount(s string) (Cents, error) {
	raw := strings.TrimSpace(s)
	body := raw
	neg := false
	switch {
	case strings.HasPrefix(body, "-"):
		neg = true
		body = body[1:]
	case strings.HasPrefix(body, "+"):
		body = body[1:]
	}
	intPart, fracPart, _ := strings.Cut(body, ".")
	if intPart == "" && fracPart == "" {
		return 0, fmt.Errorf("clinic: malformed amount %q", raw)
	}
	if intPart == "" {
		intPart = "0"
	}
	if !digitsOnly(intPart) || !digitsOnly(fracPart) {
		return 0, fmt.Errorf("clinic: malformed amount %q", raw)
	}
	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("clinic: malformed amount %q", raw)
	}

	padded := fracPart + "00"
	frac := int64(padded[0]-'0')*10 + int64(padded[1]-'0')
	cents := whole*100 + frac

	// Half-even rounding on any digits past the second.
	if len(fracPart) > 2 {
		rest := strings.TrimRight(fracPart[2:], "0")
		switch {
		case rest == "":
			// exact
		case rest[0] > '5' || (rest[0] == '5' && len(rest) > 1):
			cents++
		case rest == "5" && cents%2 == 1:
			cents++
		}
	}
	if neg {
		cents = -cents
	}
	return Cents(cents), nil
}

// MulQty multiplies a unit price by an integer quantity. Exact in cents.
func (c Cents) MulQty(q int32) Cents {
	return c * Cents(q)
}

// String renders the amount with two decimals, e.g. "95.00".
func (c Cents) String() string {
	n := int64(c)
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%02d", sign, n/100, n%100)
}

// MarshalJSON renders the amount as a decimal string.
func (c Cents) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number
// literal. Both paths go through ParseAmount so floats stay out of the math.
func (c *Cents) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
