// Package humanfmt formats byte sizes, durations, counts, rates and currency
// amounts for log lines and CLI reports.
package humanfmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var byteUnits = []struct {
	size float64
	name string
}{
	{1 << 40, "TiB"},
	{1 << 30, "GiB"},
	{1 << 20, "MiB"},
	{1 << 10, "KiB"},
}

// Bytes formats a byte count using IEC binary units, e.g. "1.50 MiB".
func Bytes(b int64) string {
	for _, u := range byteUnits {
		if float64(b) >= u.size {
			return fmt.Sprintf("%.2f %s", float64(b)/u.size, u.name)
		}
	}
	return fmt.Sprintf("%d B", b)
}

// Duration formats d compactly: "2h15m", "1m30s", "1.23s", "45.6ms".
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return d.String()
	case d >= time.Hour:
		h, m := d/time.Hour, (d%time.Hour)/time.Minute
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	case d >= time.Minute:
		m, s := d/time.Minute, (d%time.Minute)/time.Second
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	default:
		return d.String()
	}
}

// Count abbreviates large counts: "1.23M", "45.60K", "789".
func Count(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("%.2fK", float64(n)/1e3)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// Rate formats n items over d as "<count>/s".
func Rate(n int64, d time.Duration) string {
	if d <= 0 {
		return "∞/s"
	}
	return Count(int64(float64(n)/d.Seconds())) + "/s"
}

// Money formats an amount with two decimals and thousands separators,
// e.g. "$1,234,567.89".
func Money(d decimal.Decimal) string {
	s := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return sign + "$" + b.String() + "." + frac
}
