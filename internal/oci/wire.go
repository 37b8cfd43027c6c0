package oci

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

// maxMantissa is the number of base-100 digits a NUMBER can hold.
const maxMantissa = 20

var errNumberFormat = errors.New("invalid number")

// EncodeNumber writes the internal NUMBER form of the decimal text s into dst
// and returns the number of bytes used. dst must hold NumberSize bytes.
func EncodeNumber(dst []byte, s string) (int, error) {
	neg, digits, exp10, err := splitDecimal(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q", errNumberFormat, s)
	}
	if digits == "" {
		dst[0] = 0x80
		return 1, nil
	}
	// value = 0.digits * 10^exp10; realign to base 100.
	if exp10%2 != 0 {
		digits = "0" + digits
		exp10++
	}
	if len(digits)%2 != 0 {
		digits += "0"
	}
	exp100 := exp10 / 2
	mantissa := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		mantissa = append(mantissa, (digits[i]-'0')*10+digits[i+1]-'0')
	}
	for len(mantissa) > 0 && mantissa[len(mantissa)-1] == 0 {
		mantissa = mantissa[:len(mantissa)-1]
	}
	if len(mantissa) > maxMantissa {
		return 0, fmt.Errorf("number %q exceeds %d significant digits", s, maxMantissa*2)
	}
	if exp100 < -65 || exp100 > 62 {
		return 0, fmt.Errorf("number %q out of range", s)
	}

	n := 0
	if neg {
		dst[n] = byte(63 - exp100)
		n++
		for _, d := range mantissa {
			dst[n] = 101 - d
			n++
		}
		if len(mantissa) < maxMantissa {
			dst[n] = 102
			n++
		}
		return n, nil
	}
	dst[n] = byte(192 + exp100)
	n++
	for _, d := range mantissa {
		dst[n] = d + 1
		n++
	}
	return n, nil
}

// DecodeNumber renders an internal NUMBER as decimal text.
func DecodeNumber(b []byte) (string, error) {
	if len(b) == 0 {
		return "", fmt.Errorf("%w: empty", errNumberFormat)
	}
	if b[0] == 0x80 {
		return "0", nil
	}
	neg := b[0]&0x80 == 0
	var exp100 int
	var mantissa []int
	if neg {
		exp100 = 63 - int(b[0])
		body := b[1:]
		if len(body) > 0 && body[len(body)-1] == 102 {
			body = body[:len(body)-1]
		}
		for _, x := range body {
			mantissa = append(mantissa, 101-int(x))
		}
	} else {
		exp100 = int(b[0]) - 192
		for _, x := range b[1:] {
			mantissa = append(mantissa, int(x)-1)
		}
	}
	var sb strings.Builder
	for _, d := range mantissa {
		if d < 0 || d > 99 {
			return "", fmt.Errorf("%w: digit %d", errNumberFormat, d)
		}
		sb.WriteByte(byte('0' + d/10))
		sb.WriteByte(byte('0' + d%10))
	}
	digits := sb.String()

	point := exp100 * 2
	var intPart, fracPart string
	switch {
	case point <= 0:
		intPart = "0"
		fracPart = strings.Repeat("0", -point) + digits
	case point >= len(digits):
		intPart = digits + strings.Repeat("0", point-len(digits))
	default:
		intPart, fracPart = digits[:point], digits[point:]
	}
	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart = strings.TrimRight(fracPart, "0")
	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg && out != "0" {
		out = "-" + out
	}
	return out, nil
}

// splitDecimal parses s into sign, significant digits without leading or
// trailing zeros, and the decimal exponent e such that |s| = 0.digits * 10^e.
func splitDecimal(s string) (neg bool, digits string, exp10 int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return false, "", 0, errNumberFormat
	}
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	sciExp := 0
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		if _, err := fmt.Sscanf(s[i+1:], "%d", &sciExp); err != nil {
			return false, "", 0, errNumberFormat
		}
		s = s[:i]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" && fracPart == "" {
		return false, "", 0, errNumberFormat
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return false, "", 0, errNumberFormat
		}
	}
	all := intPart + fracPart
	exp10 = len(intPart) + sciExp
	trimmed := strings.TrimLeft(all, "0")
	exp10 -= len(all) - len(trimmed)
	digits = strings.TrimRight(trimmed, "0")
	if digits == "" {
		return false, "", 0, nil
	}
	return neg, digits, exp10, nil
}

// EncodeDate writes the 7 byte DATE form of t's wall clock into dst.
func EncodeDate(dst []byte, t time.Time) {
	year := t.Year()
	dst[0] = byte(year/100 + 100)
	dst[1] = byte(year%100 + 100)
	dst[2] = byte(t.Month())
	dst[3] = byte(t.Day())
	dst[4] = byte(t.Hour() + 1)
	dst[5] = byte(t.Minute() + 1)
	dst[6] = byte(t.Second() + 1)
}

// DecodeDate reads a 7 byte DATE as wall clock time in loc.
func DecodeDate(b []byte, loc *time.Location) time.Time {
	year := (int(b[0])-100)*100 + int(b[1]) - 100
	return time.Date(year, time.Month(b[2]), int(b[3]),
		int(b[4])-1, int(b[5])-1, int(b[6])-1, 0, loc)
}

// EncodeTimestamp writes the 11 byte TIMESTAMP form of t into dst.
func EncodeTimestamp(dst []byte, t time.Time) {
	EncodeDate(dst, t)
	binary.BigEndian.PutUint32(dst[7:11], uint32(t.Nanosecond()))
}

// DecodeTimestamp reads an 11 byte TIMESTAMP as wall clock time in loc.
func DecodeTimestamp(b []byte, loc *time.Location) time.Time {
	t := DecodeDate(b, loc)
	if len(b) >= TimestampSize {
		t = t.Add(time.Duration(binary.BigEndian.Uint32(b[7:11])))
	}
	return t
}
