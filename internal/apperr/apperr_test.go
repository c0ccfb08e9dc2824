package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("admit: %w", New(CodeQueueFull, "queue holds %d jobs", 64))

	if !errors.Is(err, ErrQueueFull) {
		t.Error("Expected wrapped error to match ErrQueueFull")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("Expected wrapped error not to match ErrNotFound")
	}
	if got := CodeOf(err); got != CodeQueueFull {
		t.Errorf("Expected code %s, got %s", CodeQueueFull, got)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{"nil", nil, ""},
		{"coded", New(CodeNotFound, "job x"), CodeNotFound},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), CodeTimeout},
		{"canceled", context.Canceled, CodeCancelled},
		{"plain", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.expected {
				t.Errorf("CodeOf() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeStorageFailed, cause, "update job %s", "abc")

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to reach the cause")
	}
	if !strings.Contains(err.Error(), "STORAGE_FAILED") || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Unexpected error text: %s", err.Error())
	}
	if got := MessageOf(err); got != "update job abc: disk full" {
		t.Errorf("MessageOf() = %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code     Code
		expected int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeUnsupportedOperation, http.StatusUnprocessableEntity},
		{CodeQueueFull, http.StatusServiceUnavailable},
		{CodeInvalidArgument, http.StatusBadRequest},
		{CodeEncodingFailed, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.code); got != tt.expected {
			t.Errorf("HTTPStatus(%s) = %d, expected %d", tt.code, got, tt.expected)
		}
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 100) + "Conversion failed!"

	got := Truncate(long, 30)
	if len(got) != 30 {
		t.Errorf("Expected length 30, got %d", len(got))
	}
	if !strings.HasSuffix(got, "Conversion failed!") {
		t.Errorf("Expected tail to be kept, got %q", got)
	}
	if Truncate("short", 30) != "short" {
		t.Error("Expected short input unchanged")
	}
	if Truncate("abcdef", 2) != "ef" {
		t.Errorf("Expected tiny limit to keep tail, got %q", Truncate("abcdef", 2))
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	// the Cyrillic letters and "é" are two bytes each
	msg := "x: Ошибка: ééééé"

	for _, limit := range []int{2, 3, 6, 7, 9, 12} {
		got := Truncate(msg, limit)
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%d) = %q is not valid UTF-8", limit, got)
		}
		if len(got) > limit {
			t.Errorf("Truncate(%d) = %q exceeds the limit", limit, got)
		}
		if !strings.HasSuffix(msg, strings.TrimPrefix(got, "...")) {
			t.Errorf("Truncate(%d) = %q is not a tail of the input", limit, got)
		}
	}
	if got := Truncate("aé", 1); got != "" {
		t.Errorf("Expected an empty tail when the last rune does not fit, got %q", got)
	}
}
