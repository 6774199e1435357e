package utils

import (
	"strconv"
	"strings"
	"unicode"
)

// StripQuotes removes every double-quote character and surrounding whitespace.
func StripQuotes(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

// trimLeft drops the whitespace a lenient numeric parser skips.
func trimLeft(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

// ParseIntPrefix parses the longest leading integer of s (optionally signed),
// ignoring trailing garbage: "17 yrs" -> 17, "3.9" -> 3, "abc" -> fails.
func ParseIntPrefix(s string) (int, bool) {
	s = trimLeft(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseFloatPrefix parses the longest leading decimal of s: "3.8x" -> 3.8,
// ".5" -> 0.5, "1e2" -> 100, "" -> fails.
func ParseFloatPrefix(s string) (float64, bool) {
	s = trimLeft(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	intDigits := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
		intDigits++
	}
	fracDigits := 0
	if end < len(s) && s[end] == '.' {
		j := end + 1
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
			fracDigits++
		}
		if intDigits > 0 || fracDigits > 0 {
			end = j
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return 0, false
	}
	if end < len(s) && (s[end] == 'e' || s[end] == 'E') {
		j := end + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expStart := j
		for j < len(s) && s[j] >= '0' && s[j] <= '9' {
			j++
		}
		if j > expStart {
			end = j
		}
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// IntOr returns the parsed non-negative integer or fallback.
func IntOr(s string, fallback int) int {
	n, ok := ParseIntPrefix(s)
	if !ok || n < 0 {
		return fallback
	}
	return n
}

// FloatOr returns the parsed decimal or fallback.
func FloatOr(s string, fallback float64) float64 {
	f, ok := ParseFloatPrefix(s)
	if !ok {
		return fallback
	}
	return f
}
