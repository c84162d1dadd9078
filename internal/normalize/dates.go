package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// DateRange is the result of ParseDateRange. Empty fields mean the value
// could not be derived.
type DateRange struct {
	StartISO string
	EndISO   string
	StartRaw string
	EndRaw   string
}

// IsZero reports whether no date at all was derived.
func (r DateRange) IsZero() bool {
	return r.StartISO == "" && r.EndISO == ""
}

const isoLayout = "2006-01-02"

var (
	rangeSeparator = regexp.MustCompile(`(?i)\s+(?:to|until|till|through|thru)\s+|\s*[–—]\s*|\s+-\s+`)
	compactRange   = regexp.MustCompile(`^(\d{1,2})\s*[-–—]\s*(\d{1,2})\s+([A-Za-z]+)\.?,?\s+(\d{4})$`)
	numericRange   = regexp.MustCompile(`^(\d{1,2}[./]\d{1,2}[./]\d{2,4})\s*[-–—]\s*(\d{1,2}[./]\d{1,2}[./]\d{2,4})$`)
	numericDate    = regexp.MustCompile(`^(\d{1,2})[./](\d{1,2})[./](\d{2}|\d{4})$`)
	numericDayMon  = regexp.MustCompile(`^(\d{1,2})[./](\d{1,2})[./]?$`)
	numericDay     = regexp.MustCompile(`^(\d{1,2})[./]?$`)
	dateLike       = regexp.MustCompile(`(?i)\d|\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b`)
	endOnly        = regexp.MustCompile(`(?i)^(?:until|till|through|thru|ends|closes|to)\s+(.+)$`)
	startOnly      = regexp.MustCompile(`(?i)^(?:from|opens|opening|starts|since)\s+(.+)$`)
	yearPattern    = regexp.MustCompile(`\b\d{4}\b`)
	monthPattern   = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b`)
	weekdayPattern = regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)\b\.?,?`)
	ordinalPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\b`)
	septPattern    = regexp.MustCompile(`(?i)\bsept\b`)
	ofPattern      = regexp.MustCompile(`(?i)\s+of\s+`)
)

var dateLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
	"2 January, 2006",
	"January 2 2006",
	"January 2, 2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"2006-01-02",
	"January 2006",
	"Jan 2006",
}

// ParseDateRange derives ISO start and end dates from free-form exhibition
// date text. Recognised forms, in order: explicit "A to B" / "A – B" /
// "A - B" separators, numeric "DD.MM.YYYY-DD.MM.YYYY", compact
// "D1-D2 Month YYYY", "until X" / "from X", and a single date. A left
// fragment missing its year (and month) inherits them from the right one.
// When both sides of a range look like dates but carry no year, the raw
// fragments are returned without ISO values.
func ParseDateRange(text string) DateRange {
	s := stripDayNoise(text)
	if s == "" {
		return DateRange{}
	}

	if parts := rangeSeparator.Split(s, 2); len(parts) == 2 {
		left, right := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if left != "" && right != "" {
			left, inherited := inheritMonthYear(left, right)
			return buildRange(left, right, inherited)
		}
	}

	if m := numericRange.FindStringSubmatch(s); m != nil {
		return buildRange(m[1], m[2], false)
	}

	if m := compactRange.FindStringSubmatch(s); m != nil {
		tail := m[3] + " " + m[4]
		return buildRange(m[1]+" "+tail, m[2]+" "+tail, false)
	}

	if m := endOnly.FindStringSubmatch(s); m != nil {
		if t, ok := parseSingle(m[1]); ok {
			return DateRange{EndISO: t.Format(isoLayout), EndRaw: m[1]}
		}
		return DateRange{}
	}

	if m := startOnly.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if t, ok := parseSingle(s); ok {
		return DateRange{StartISO: t.Format(isoLayout), StartRaw: s}
	}
	return DateRange{}
}

// ParseDate parses a single date fragment into ISO form.
func ParseDate(text string) (string, bool) {
	t, ok := parseSingle(text)
	if !ok {
		return "", false
	}
	return t.Format(isoLayout), true
}

func buildRange(left, right string, inherited bool) DateRange {
	start, startOK := parseSingle(left)
	end, endOK := parseSingle(right)
	if startOK && endOK && inherited && start.After(end) {
		start = start.AddDate(-1, 0, 0)
	}
	var r DateRange
	if !startOK && !endOK && dateLike.MatchString(left) && dateLike.MatchString(right) {
		return DateRange{StartRaw: left, EndRaw: right}
	}
	if startOK {
		r.StartISO = start.Format(isoLayout)
		r.StartRaw = left
	}
	if endOK {
		r.EndISO = end.Format(isoLayout)
		r.EndRaw = right
	}
	return r
}

// inheritMonthYear completes a left fragment such as "27 June", "1" or
// "27.06." with the month and year found in the right fragment.
func inheritMonthYear(left, right string) (string, bool) {
	if yearPattern.MatchString(left) || numericDate.MatchString(left) {
		return left, false
	}
	if m := numericDate.FindStringSubmatch(right); m != nil {
		if dm := numericDayMon.FindStringSubmatch(left); dm != nil {
			return dm[1] + "." + dm[2] + "." + m[3], true
		}
		if d := numericDay.FindStringSubmatch(left); d != nil {
			return d[1] + "." + m[2] + "." + m[3], true
		}
		return left, false
	}
	years := yearPattern.FindAllString(right, -1)
	if len(years) == 0 {
		return left, false
	}
	year := years[len(years)-1]
	if monthPattern.MatchString(left) {
		return left + " " + year, true
	}
	month := monthPattern.FindString(right)
	if month == "" {
		return left, false
	}
	return left + " " + month + " " + year, true
}

func parseSingle(text string) (time.Time, bool) {
	if m := numericDate.FindStringSubmatch(CleanText(text)); m != nil {
		return numericToDate(m[1], m[2], m[3])
	}
	s := cleanFragment(text)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseAny(s, dateparse.PreferMonthFirst(false))
	if err != nil || t.Year() < 1800 || t.Year() > 2200 {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// stripDayNoise drops weekday names and ordinal suffixes so "Thursday 1st"
// reads "1".
func stripDayNoise(text string) string {
	s := weekdayPattern.ReplaceAllString(text, " ")
	s = ordinalPattern.ReplaceAllString(s, "$1")
	return strings.Trim(CleanText(s), " ,;:")
}

func cleanFragment(text string) string {
	s := stripDayNoise(text)
	s = septPattern.ReplaceAllString(s, "Sep")
	s = ofPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, ".", " ")
	s = CleanText(s)
	return strings.Trim(s, " ,;:")
}

func numericToDate(dayText, monthText, yearText string) (time.Time, bool) {
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(monthText)
	if err != nil {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(yearText)
	if err != nil {
		return time.Time{}, false
	}
	if len(yearText) == 2 {
		year += 2000
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}
