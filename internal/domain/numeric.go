package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	suffixRe = regexp.MustCompile(`^([+-]?\d+(?:\.\d+)?)([KMBT])$`)
	floatRe  = regexp.MustCompile(`^[+-]?\d+(?:\.\d+)?$`)
	embedRe  = regexp.MustCompile(`[+-]?\d+(?:\.\d+)?`)
)

var suffixMultiplier = map[string]float64{
	"K": 1e3,
	"M": 1e6,
	"B": 1e9,
	"T": 1e12,
}

// ParseNumber parses the numeric formats economic calendars publish:
//
//	"1.2", "-0.3", "1.2%" (percent kept as 1.2), "250K", "1.2M",
//	"1,234.5", "(0.3)" (accounting negative), "0.1 pips".
//
// Empty strings and the usual not-available markers return nil.
func ParseNumber(raw string) *float64 {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if s == "" {
		return nil
	}

	switch strings.ToLower(s) {
	case "n/a", "na", "none", "null", "--", "—", "-":
		return nil
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	// Commas and spaces both appear as thousands separators.
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")

	if m := suffixRe.FindStringSubmatch(strings.ToUpper(s)); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		v *= suffixMultiplier[m[2]]
		return finite(v, neg)
	}

	if floatRe.MatchString(s) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		return finite(v, neg)
	}

	// Values like "0.1 pips": take the first embedded number.
	if m := embedRe.FindString(s); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
		return finite(v, neg)
	}

	return nil
}

func finite(v float64, neg bool) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if neg {
		v = -v
	}
	return &v
}

// ImpactScoreOf maps a calendar impact label to the 1-3 score used by
// downstream filters. Unknown labels return nil.
func ImpactScoreOf(impact string) *int {
	v := strings.ToLower(strings.TrimSpace(impact))
	if v == "" {
		return nil
	}
	var score int
	switch {
	case strings.Contains(v, "high"):
		score = 3
	case strings.Contains(v, "med"):
		score = 2
	case strings.Contains(v, "low"):
		score = 1
	default:
		return nil
	}
	return &score
}
