// Package units converts between sexagesimal and decimal-degree angles.
//
// Right ascension strings are accepted either colon separated ("17:40:42.09")
// or with unit markers ("17h40m42.09s"). Fractional seconds are always kept;
// nothing is truncated to whole seconds.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAngle is returned when an angle string cannot be parsed.
var ErrInvalidAngle = errors.New("invalid angle")

// ParseRA converts a sexagesimal right ascension in hours to decimal degrees.
func ParseRA(s string) (float64, error) {
	neg, h, m, sec, err := splitSexagesimal(s, "hms")
	if err != nil {
		return 0, err
	}
	if neg || h >= 24 {
		return 0, fmt.Errorf("%w: right ascension %q out of range", ErrInvalidAngle, s)
	}
	return 15 * (h + m/60 + sec/3600), nil
}

// ParseDec converts a sexagesimal declination to decimal degrees. The sign
// applies to the whole value, so "-00:30:00" is -0.5.
func ParseDec(s string) (float64, error) {
	neg, d, m, sec, err := splitSexagesimal(s, "dms")
	if err != nil {
		return 0, err
	}
	v := d + m/60 + sec/3600
	if v > 90 {
		return 0, fmt.Errorf("%w: declination %q out of range", ErrInvalidAngle, s)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// FormatRA renders decimal degrees as "HHhMMmSS.SSs".
func FormatRA(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// Work in hundredths of a second so rounding carries into minutes and hours.
	centis := int64(math.Round(deg / 15 * 3600 * 100))
	centis %= 24 * 3600 * 100
	h := centis / (3600 * 100)
	m := (centis / (60 * 100)) % 60
	s := float64(centis%(60*100)) / 100
	return fmt.Sprintf("%02dh%02dm%05.2fs", h, m, s)
}

// FormatDec renders decimal degrees as "±DD:MM:SS.SS".
func FormatDec(deg float64) string {
	sign := "+"
	if deg < 0 {
		sign = "-"
		deg = -deg
	}
	centis := int64(math.Round(deg * 3600 * 100))
	d := centis / (3600 * 100)
	m := (centis / (60 * 100)) % 60
	s := float64(centis%(60*100)) / 100
	return fmt.Sprintf("%s%02d:%02d:%05.2f", sign, d, m, s)
}

// FormatDecimal renders a plain decimal number with the shortest exact digits,
// keeping a ".0" on whole numbers ("10.0", "-5.0", "0.8333333333333334").
func FormatDecimal(v float64) string {
	out := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(out, ".NI") {
		out += ".0"
	}
	return out
}

// splitSexagesimal parses the three fields of a sexagesimal angle. markers
// holds the optional unit letters accepted after each field (e.g. "hms").
func splitSexagesimal(s, markers string) (neg bool, a, b, c float64, err error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return false, 0, 0, 0, fmt.Errorf("%w: empty", ErrInvalidAngle)
	}
	switch raw[0] {
	case '-':
		neg = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}

	var fields []string
	if strings.Contains(raw, ":") {
		fields = strings.Split(raw, ":")
	} else {
		fields = strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
			return strings.ContainsRune(markers, r) || r == ' ' || r == '°' || r == '\'' || r == '"'
		})
	}
	if len(fields) != 3 {
		return false, 0, 0, 0, fmt.Errorf("%w: %q needs three fields", ErrInvalidAngle, s)
	}

	vals := make([]float64, 3)
	for i, f := range fields {
		v, perr := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if perr != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false, 0, 0, 0, fmt.Errorf("%w: field %q in %q", ErrInvalidAngle, f, s)
		}
		vals[i] = v
	}
	if vals[1] >= 60 || vals[2] >= 60 {
		return false, 0, 0, 0, fmt.Errorf("%w: minutes and seconds must be below 60 in %q", ErrInvalidAngle, s)
	}
	return neg, vals[0], vals[1], vals[2], nil
}
