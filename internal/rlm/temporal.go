package rlm

import (
	"fmt"
	"strings"
	"time"
)

// ParseDateRange builds an inclusive range from explicit since/until ISO
// dates. An empty until defaults to today.
func ParseDateRange(since, until string, now time.Time) (*DateRange, error) {
	if since == "" && until == "" {
		return nil, nil
	}
	if since != "" && !isISODate(since) {
		return nil, fmt.Errorf("since must be an ISO date (YYYY-MM-DD): %q", since)
	}
	if until != "" && !isISODate(until) {
		return nil, fmt.Errorf("until must be an ISO date (YYYY-MM-DD): %q", until)
	}
	if until == "" {
		until = now.Format("2006-01-02")
	}
	if since == "" {
		since = "0000-01-01"
	}
	return &DateRange{Start: since, End: until}, nil
}

// temporal phrases resolved against the query time, in match order.
// No phrase contains another; the first phrase found in list order wins.
var temporalPhrases = []struct {
	phrase   string
	daysBack int // days from now to the range start
	spanDays int // range length beyond the start day
}{
	{"today", 0, 0},
	{"yesterday", 1, 0},
	{"last week", 13, 6},
	{"this week", 6, 6},
	{"last month", 60, 29},
	{"this month", 29, 29},
}

// DetectTemporal scans a natural-language query for a relative time phrase
// and resolves it to an inclusive date range. Returns the matched phrase so
// callers can report what was detected, or ("", nil) for no match.
func DetectTemporal(query string, now time.Time) (string, *DateRange) {
	q := strings.ToLower(query)
	for _, p := range temporalPhrases {
		if !strings.Contains(q, p.phrase) {
			continue
		}
		start := now.AddDate(0, 0, -p.daysBack)
		end := start.AddDate(0, 0, p.spanDays)
		if end.After(now) {
			end = now
		}
		return p.phrase, &DateRange{
			Start: start.Format("2006-01-02"),
			End:   end.Format("2006-01-02"),
		}
	}
	return "", nil
}
