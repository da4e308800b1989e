package domain

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// Wire field names a record's date may arrive under. The weather source
// uses "date"; the demand source uses "period".
const (
	DateFieldDate   = "date"
	DateFieldPeriod = "period"
)

// errNoDate signals that a record carried neither date field. Callers wrap
// it in a SchemaError with source and city context.
var errNoDate = errors.New("record has neither date nor period field")

// dateLayouts covers the formats the two sources emit.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// CanonicalDate resolves a record's date from its two possible wire fields.
// The canonical "date" field wins; when it is absent or empty the secondary
// "period" field is used instead. The returned field name records which one
// supplied the value, so provenance survives without two ambiguous keys
// coexisting downstream. Neither field parseable is a schema failure.
//
// Canonicalization happens exactly once, at ingestion. Everything after the
// fetch stage sees a single UTC-midnight date.
func CanonicalDate(dateField, periodField string) (time.Time, string, error) {
	if d, ok := parseDay(dateField); ok {
		return d, DateFieldDate, nil
	}
	if d, ok := parseDay(periodField); ok {
		return d, DateFieldPeriod, nil
	}
	return time.Time{}, "", errNoDate
}

// IsNoDate reports whether err came from a record missing both date fields.
func IsNoDate(err error) bool { return errors.Is(err, errNoDate) }

func parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), true
		}
	}
	return time.Time{}, false
}

// Day truncates t to a UTC midnight, the canonical form of a record date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// StandardizeCity normalizes city-name formatting: surrounding whitespace
// trimmed, each word title-cased. "new york " and "NEW YORK" both resolve
// to the registry key "New York".
func StandardizeCity(city string) string {
	words := strings.Fields(strings.ToLower(city))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
