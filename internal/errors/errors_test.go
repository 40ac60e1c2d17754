package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"already exists", AlreadyExists("t"), CodeAlreadyExists},
		{"not found", NotFound("t"), CodeNotFound},
		{"unknown column", UnknownColumn("age"), CodeUnknownColumn},
		{"bad filter", BadFilter("x", "no operator"), CodeBadFilter},
		{"bad value", BadValue("value contains delimiter"), CodeBadValue},
		{"lock timeout", LockTimeout("/tmp/t"), CodeLockTimeout},
		{"io", IO("rename temp file", fs.ErrPermission), CodeIO},
		{"wrapped once more", fmt.Errorf("select: %w", NotFound("t")), CodeNotFound},
		{"plain error", errors.New("boom"), ""},
		{"nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	err := IO("open table file", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected wrapped cause to be visible through errors.Is")
	}
}

func TestExitStatusDistinct(t *testing.T) {
	seen := map[int]Code{}
	for code, status := range exitStatuses {
		if status == 0 || status == 1 {
			t.Errorf("code %s uses reserved status %d", code, status)
		}
		if prev, ok := seen[status]; ok {
			t.Errorf("codes %s and %s share exit status %d", prev, code, status)
		}
		seen[status] = code
	}
	if got := ExitStatus(nil); got != 0 {
		t.Errorf("ExitStatus(nil) = %d, want 0", got)
	}
	if got := ExitStatus(errors.New("boom")); got != 1 {
		t.Errorf("ExitStatus(plain) = %d, want 1", got)
	}
	if got := ExitStatus(fmt.Errorf("wrapped: %w", LockTimeout("/t"))); got != 7 {
		t.Errorf("ExitStatus(LockTimeout) = %d, want 7", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(AlreadyExists("t")); got != http.StatusConflict {
		t.Errorf("HTTPStatus(AlreadyExists) = %d, want %d", got, http.StatusConflict)
	}
	if got := HTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("HTTPStatus(plain) = %d, want %d", got, http.StatusInternalServerError)
	}
}
