package utils

import (
	"strconv"
	"time"
)

// PadTwo renders n with at least two digits, keeping the last two characters
// of the zero-prefixed decimal form.
func PadTwo(n int) string {
	s := "00" + strconv.Itoa(n)
	return s[len(s)-2:]
}

// FormatClock renders t as HH:MM:SS using 24-hour components in loc.
// A nil loc means the local time zone.
func FormatClock(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return PadTwo(t.Hour()) + ":" + PadTwo(t.Minute()) + ":" + PadTwo(t.Second())
}
