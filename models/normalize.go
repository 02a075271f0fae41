package models

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

// Invoice numbers often carry a financial-year suffix on the books side
// ("INV-100/24-25") that the portal drops. Strip it before comparing.
var fySuffixRegex = regexp.MustCompile(`[/\-]\d{2,4}-\d{2,4}$`)

// NormalizeInvoiceNumber trims, strips trailing financial-year suffixes and
// uppercases. Idempotent: normalizing an already-normalized number is a no-op.
func NormalizeInvoiceNumber(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for {
		stripped := fySuffixRegex.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// Spreadsheet serial epoch for the 1900 date system. Day 1 is 1900-01-01 but
// the system inherits the Lotus 1-2-3 leap-year bug, so the working epoch is
// 1899-12-30.
var excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Serials outside this window are treated as "not a date" rather than
// guessed at (covers roughly 1902..2118).
const (
	minExcelSerial = 1000
	maxExcelSerial = 80000
)

// ParseInvoiceDate converts the raw date cell into a calendar date pinned to
// 00:00:00 UTC. Accepted shapes: time.Time, a numeric spreadsheet serial
// (float64/int or numeric string), or a DD-MM-YYYY / DD/MM/YYYY string with
// strict day/month/year validation. Anything else yields ok=false; the
// caller must treat that record as invalid, never as a best-effort guess.
func ParseInvoiceDate(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return pinToUTCDate(t), true
	case float64:
		return dateFromSerial(t)
	case int:
		return dateFromSerial(float64(t))
	case int64:
		return dateFromSerial(float64(t))
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if d, ok := parseDayMonthYear(s); ok {
			return d, true
		}
		if serial, err := strconv.ParseFloat(s, 64); err == nil {
			return dateFromSerial(serial)
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func pinToUTCDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func dateFromSerial(serial float64) (time.Time, bool) {
	if serial < minExcelSerial || serial > maxExcelSerial {
		return time.Time{}, false
	}
	// Drop any fractional time-of-day; only the calendar day matters.
	d := excelEpoch.AddDate(0, 0, int(serial))
	return d, true
}

func parseDayMonthYear(s string) (time.Time, bool) {
	sep := "-"
	if strings.Contains(s, "/") {
		sep = "/"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 {
		return time.Time{}, false
	}
	day, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	month, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	year, err3 := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 1900 || year > 2200 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (e.g. 31-02 becomes 02/03 or 03/03);
	// a round-trip mismatch means the calendar date never existed.
	if d.Day() != day || int(d.Month()) != month || d.Year() != year {
		return time.Time{}, false
	}
	return d, true
}

// MonthYear returns the "YYYY-MM" grouping key, or "" for a zero time.
func MonthYear(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01")
}

// FinancialYear maps a date onto the April-March accounting cycle:
// 2024-03-31 belongs to "2023-24", 2024-04-01 to "2024-25".
func FinancialYear(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	start := t.Year()
	if t.Month() < time.April {
		start--
	}
	return strconv.Itoa(start) + "-" + twoDigit((start+1)%100)
}

// FinancialQuarter returns the quarter index within the financial year
// (1=Apr-Jun, 2=Jul-Sep, 3=Oct-Dec, 4=Jan-Mar), or 0 for a zero time.
func FinancialQuarter(t time.Time) int {
	if t.IsZero() {
		return 0
	}
	return (int(t.Month())+8)%12/3 + 1
}

func twoDigit(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

const (
	SimilarityMethodNumeric     = "Numeric"
	SimilarityMethodLevenshtein = "Levenshtein"
)

// CheckSimilarity decides whether two invoice numbers that already failed
// exact equality are close enough to surface as a potential match.
// Tier 1: digit sequences equal after stripping leading zeros ("INV-001" vs
// "INV 1"). Tier 2: small edit distance, tightened for short strings.
func CheckSimilarity(a, b string) (method string, score int, ok bool) {
	da, db := digitSequence(a), digitSequence(b)
	if da != "" && db != "" && trimLeadingZeros(da) == trimLeadingZeros(db) {
		return SimilarityMethodNumeric, 0, true
	}

	// Whitespace is the most common transcription artifact; ignore it.
	sa, sb := squashSpaces(a), squashSpaces(b)
	minLen := len(sa)
	if len(sb) < minLen {
		minLen = len(sb)
	}
	if minLen < 3 {
		return "", 0, false
	}
	maxDistance := 2
	if minLen < 6 {
		maxDistance = 1
	}
	distance := levenshtein.ComputeDistance(sa, sb)
	if distance > 0 && distance <= maxDistance {
		return SimilarityMethodLevenshtein, distance, true
	}
	return "", 0, false
}

func squashSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func digitSequence(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func trimLeadingZeros(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
