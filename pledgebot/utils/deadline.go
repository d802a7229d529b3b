package utils

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativePattern = regexp.MustCompile(`^(?:(\d+)w)?(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?$`)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// ParseDeadline accepts a relative offset from now ("7d", "1w2d", "36h", "90m")
// or an absolute time. Absolute times without a zone are read as UTC, and a bare
// date ("2025-07-01") means the end of that day.
func ParseDeadline(input string, now time.Time) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return time.Time{}, fmt.Errorf("deadline is empty")
	}

	if m := relativePattern.FindStringSubmatch(s); m != nil {
		var offset time.Duration
		units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute}
		for i, unit := range units {
			if m[i+1] == "" {
				continue
			}
			n, err := strconv.ParseInt(m[i+1], 10, 64)
			if err != nil || n > math.MaxInt64/int64(unit) {
				return time.Time{}, fmt.Errorf("deadline %q is out of range", input)
			}
			part := time.Duration(n) * unit
			if offset > math.MaxInt64-part {
				return time.Time{}, fmt.Errorf("deadline %q is out of range", input)
			}
			offset += part
		}
		if offset <= 0 {
			return time.Time{}, fmt.Errorf("deadline %q must be in the future", input)
		}
		return now.Add(offset).Truncate(time.Second), nil
	}

	raw := strings.TrimSpace(input)
	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
		return t.Add(24*time.Hour - time.Second), nil
	}

	return time.Time{}, fmt.Errorf("invalid deadline %q: use 7d, 36h or 2006-01-02 15:04", input)
}

// Timestamp renders t as a Discord timestamp in the given style (R, f, F, d...).
func Timestamp(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// FormatDuration prints the largest two units of d, e.g. "3d 4h" or "12m 5s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, h)
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
