package streaming

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// RangePlan is the response shape for a direct stream request.
type RangePlan struct {
	Status int
	// Start and End are inclusive byte offsets; meaningful for 200 and 206.
	Start int64
	End   int64
	Size  int64
}

// Length is the number of body bytes the plan sends.
func (p RangePlan) Length() int64 {
	if p.Status == http.StatusRequestedRangeNotSatisfiable || p.Size == 0 {
		return 0
	}
	return p.End - p.Start + 1
}

// ContentRange is the Content-Range header value, or "" for a full response.
func (p RangePlan) ContentRange() string {
	switch p.Status {
	case http.StatusPartialContent:
		return fmt.Sprintf("bytes %d-%d/%d", p.Start, p.End, p.Size)
	case http.StatusRequestedRangeNotSatisfiable:
		return fmt.Sprintf("bytes */%d", p.Size)
	}
	return ""
}

// Outcome labels the plan for metrics: full, partial or unsatisfiable.
func (p RangePlan) Outcome() string {
	switch p.Status {
	case http.StatusPartialContent:
		return "partial"
	case http.StatusRequestedRangeNotSatisfiable:
		return "unsatisfiable"
	}
	return "full"
}

func fullPlan(size int64) RangePlan {
	return RangePlan{Status: http.StatusOK, Start: 0, End: size - 1, Size: size}
}

func unsatisfiable(size int64) RangePlan {
	return RangePlan{Status: http.StatusRequestedRangeNotSatisfiable, Size: size}
}

// PlanRange resolves a Range header against a file of the given size.
//
// Supported forms are "bytes=start-end", "bytes=start-" and "bytes=-suffix".
// A header that is absent, malformed, uses another unit or asks for several
// ranges is ignored and the whole file is sent. A start at or past the end of
// the file, or an empty suffix, is unsatisfiable.
func PlanRange(header string, size int64) RangePlan {
	header = strings.TrimSpace(header)
	if header == "" {
		return fullPlan(size)
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return fullPlan(size)
	}
	first, last, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return fullPlan(size)
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		n, err := parseOffset(last)
		if err != nil {
			return fullPlan(size)
		}
		if n == 0 || size == 0 {
			return unsatisfiable(size)
		}
		n = min(n, size)
		return RangePlan{Status: http.StatusPartialContent, Start: size - n, End: size - 1, Size: size}
	}

	start, err := parseOffset(first)
	if err != nil {
		return fullPlan(size)
	}
	end := size - 1
	if last != "" {
		end, err = parseOffset(last)
		if err != nil || end < start {
			return fullPlan(size)
		}
	}
	if start >= size {
		return unsatisfiable(size)
	}
	end = min(end, size-1)
	return RangePlan{Status: http.StatusPartialContent, Start: start, End: end, Size: size}
}

func parseOffset(s string) (int64, error) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, fmt.Errorf("invalid offset %q", s)
	}
	return strconv.ParseInt(s, 10, 64)
}
