package netquality

import (
	"strconv"
	"strings"
)

// Status summarizes the state as RUNNING, COMPLETED, FAILED or IDLE.
func (s TestState) Status() string {
	switch {
	case s.IsRunning:
		return "RUNNING"
	case s.IsCompleted && s.Error == "":
		return "COMPLETED"
	case s.Error != "":
		return "FAILED"
	}
	return "IDLE"
}

// Percent returns progress as a whole percentage clamped to [0, 100].
func (s TestState) Percent() int {
	max := s.ProgressMax
	if max <= 0 {
		max = ProgressMax
	}
	return clamp(s.Progress*100/max, 0, 100)
}

// ProgressBar draws a fixed-width bar such as "▐███░░░▌ 50%".
func ProgressBar(current, max, width int) string {
	if max <= 0 {
		max = 1
	}
	percent := clamp(current*100/max, 0, 100)
	filled := clamp(current*width/max, 0, width)

	var b strings.Builder
	b.WriteString("▐")
	b.WriteString(strings.Repeat("█", filled))
	b.WriteString(strings.Repeat("░", width-filled))
	b.WriteString("▌ ")
	b.WriteString(strconv.Itoa(percent))
	b.WriteString("%")
	return b.String()
}

func SpeedRating(mbps float64) string {
	switch {
	case mbps >= 100:
		return "★ Excellent"
	case mbps >= 50:
		return "▲ Very Good"
	case mbps >= 25:
		return "● Good"
	case mbps >= 10:
		return "○ Fair"
	case mbps >= 5:
		return "▽ Slow"
	}
	return "✗ Very Slow"
}

func PingRating(ms int) string {
	switch {
	case ms <= 20:
		return "★ Excellent"
	case ms <= 50:
		return "● Good"
	case ms <= 100:
		return "○ Fair"
	case ms <= 200:
		return "▽ Poor"
	}
	return "✗ Very Poor"
}

func JitterRating(ms int) string {
	switch {
	case ms <= 5:
		return "★ Excellent"
	case ms <= 15:
		return "● Good"
	case ms <= 30:
		return "○ Fair"
	case ms <= 50:
		return "▽ Poor"
	}
	return "✗ Very Poor"
}

func PacketLossRating(percent float64) string {
	switch {
	case percent == 0:
		return "★ Perfect"
	case percent <= 1:
		return "● Good"
	case percent <= 3:
		return "○ Fair"
	case percent <= 5:
		return "▽ Poor"
	}
	return "✗ Very Poor"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
