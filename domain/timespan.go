package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatTimeSpan renders a duration as "[-][d.]hh:mm:ss[.fffffff]",
// the form the automation runtime uses for uptime.
func FormatTimeSpan(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	ticks := (d - seconds*time.Second) / 100

	res := sign
	if days > 0 {
		res += fmt.Sprintf("%d.", days)
	}
	res += fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	if ticks > 0 {
		res += fmt.Sprintf(".%07d", ticks)
	}
	return res
}

// ParseTimeSpan is the inverse of FormatTimeSpan.
func ParseTimeSpan(s string) (time.Duration, error) {
	raw := s
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var days int64
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("timespan %q: expected hh:mm:ss", raw)
	}
	if dayPart, hourPart, ok := strings.Cut(parts[0], "."); ok {
		d, err := strconv.ParseInt(dayPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("timespan %q: days: %w", raw, err)
		}
		days = d
		parts[0] = hourPart
	}
	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || hours > 23 {
		return 0, fmt.Errorf("timespan %q: invalid hours", raw)
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || minutes > 59 {
		return 0, fmt.Errorf("timespan %q: invalid minutes", raw)
	}
	secPart, fracPart, hasFrac := strings.Cut(parts[2], ".")
	seconds, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil || seconds > 59 {
		return 0, fmt.Errorf("timespan %q: invalid seconds", raw)
	}
	var ticks int64
	if hasFrac {
		if len(fracPart) == 0 || len(fracPart) > 7 {
			return 0, fmt.Errorf("timespan %q: invalid fraction", raw)
		}
		fracPart += strings.Repeat("0", 7-len(fracPart))
		ticks, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("timespan %q: invalid fraction", raw)
		}
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(ticks)*100
	if negative {
		d = -d
	}
	return d, nil
}

// MarshalJSON keeps the uptime in the runtime's timespan form.
func (s StatusSnapshot) MarshalJSON() ([]byte, error) {
	type alias StatusSnapshot
	return json.Marshal(struct {
		alias
		Uptime string `json:"uptime"`
	}{alias: alias(s), Uptime: FormatTimeSpan(s.Uptime)})
}

func (s *StatusSnapshot) UnmarshalJSON(data []byte) error {
	type alias StatusSnapshot
	aux := struct {
		*alias
		Uptime string `json:"uptime"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Uptime == "" {
		s.Uptime = 0
		return nil
	}
	uptime, err := ParseTimeSpan(aux.Uptime)
	if err != nil {
		return err
	}
	s.Uptime = uptime
	return nil
}
