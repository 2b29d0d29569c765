// Package timeutil converts between seconds and the timecode formats used
// across the clip pipeline: user-facing HH:MM:SS[.fff] ranges, SRT and
// WebVTT millisecond timestamps, and ASS centisecond timestamps.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var timecodeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})(\.\d+)?$`)

// ParseTimecode parses "HH:MM:SS" or "HH:MM:SS.fff" into seconds.
func ParseTimecode(value string) (float64, error) {
	m := timecodeRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, fmt.Errorf("invalid timecode %q: want HH:MM:SS[.fff]", value)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid timecode %q: minutes and seconds must be < 60", value)
	}
	total := float64(hours*3600 + minutes*60 + seconds)
	if m[4] != "" {
		frac, err := strconv.ParseFloat("0"+m[4], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timecode %q: %w", value, err)
		}
		total += frac
	}
	return total, nil
}

// ParseSRTTime parses an SRT timestamp "HH:MM:SS,mmm" into seconds.
// A period is accepted in place of the comma; some tools emit it.
func ParseSRTTime(value string) (float64, error) {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, ".", ",")
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid SRT timestamp %q", value)
	}
	hms := strings.Split(parts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid SRT timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(parts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid SRT timestamp %q", value)
	}
	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// splitMillis breaks seconds into h/m/s/ms components, rounding to the
// nearest millisecond.
func splitMillis(seconds float64) (h, m, s, ms int) {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds*1000 + 0.5)
	h = total / 3600000
	total %= 3600000
	m = total / 60000
	total %= 60000
	s = total / 1000
	ms = total % 1000
	return h, m, s, ms
}

// FormatSRTTime renders seconds as "HH:MM:SS,mmm".
func FormatSRTTime(seconds float64) string {
	h, m, s, ms := splitMillis(seconds)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatVTTTime renders seconds as "HH:MM:SS.mmm" (WebVTT).
func FormatVTTTime(seconds float64) string {
	h, m, s, ms := splitMillis(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// FormatASSTime renders seconds as "H:MM:SS.cc" (ASS, centiseconds).
func FormatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds*100 + 0.5)
	h := total / 360000
	total %= 360000
	m := total / 6000
	total %= 6000
	s := total / 100
	cs := total % 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs)
}

// FormatSeconds renders seconds with millisecond precision for ffmpeg
// -ss/-t arguments.
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
