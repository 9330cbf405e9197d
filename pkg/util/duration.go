package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d compactly, largest unit first:
//
//	FormatDuration(9500 * time.Millisecond)  // "9.5s"
//	FormatDuration(65 * time.Second)         // "1m 5s"
//	FormatDuration(26 * time.Hour)           // "1d 2h"
//	FormatDuration(250 * time.Millisecond)   // "250ms"
//
// Seconds keep one decimal only while the duration is under a minute.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	if d < time.Minute {
		s := float64(d.Milliseconds()/100) / 10
		return strconv.FormatFloat(s, 'f', -1, 64) + "s"
	}

	var parts []string
	units := []struct {
		size   time.Duration
		suffix string
	}{
		{24 * time.Hour, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}
	for _, u := range units {
		if n := d / u.size; n > 0 {
			parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
			d -= n * u.size
		}
	}
	return strings.Join(parts, " ")
}
