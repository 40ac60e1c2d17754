package tabfile

import (
	"testing"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

func TestParseFilter(t *testing.T) {
	header := []string{"id", "name", "age"}

	t.Run("valid", func(t *testing.T) {
		tests := []struct {
			name   string
			expr   string
			fields []string
			want   bool
		}{
			{"equality match", "age=12", []string{"1", "Bo", "12"}, true},
			{"equality is exact", "age=12", []string{"1", "Bo", "123"}, false},
			{"equality empty value", "name=", []string{"1", "", "12"}, true},
			{"equality value with tilde-free equals", "name=a=b", []string{"1", "a=b", "12"}, true},
			{"regex anchored prefix", "name~^S", []string{"1", "Spencer", "12"}, true},
			{"regex anchored prefix miss", "name~^S", []string{"1", "Bo", "12"}, false},
			{"regex slash notation", "name~/^S/", []string{"1", "Spencer", "12"}, true},
			{"regex slash notation miss", "name~/^S/", []string{"1", "Bo", "12"}, false},
			{"regex substring", "name~enc", []string{"1", "Spencer", "12"}, true},
			{"regex not full match", "name~pen", []string{"1", "Spencer", "12"}, true},
			{"regex alternation", "name~^(Bo|Al)$", []string{"1", "Bo", "12"}, true},
			{"short row reads empty field", "age=", []string{"1"}, true},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f, err := ParseFilter(header, tt.expr)
				if err != nil {
					t.Fatalf("ParseFilter(%q) failed: %v", tt.expr, err)
				}
				if got := f.Match(tt.fields); got != tt.want {
					t.Errorf("Match(%q, %v) = %t, want %t", tt.expr, tt.fields, got, tt.want)
				}
			})
		}
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			expr string
			want taberrors.Code
		}{
			{"no operator", "name", taberrors.CodeBadFilter},
			{"empty expression", "", taberrors.CodeBadFilter},
			{"unknown column equality", "color=red", taberrors.CodeUnknownColumn},
			{"unknown column regex", "color~red", taberrors.CodeUnknownColumn},
			{"invalid pattern", "name~[", taberrors.CodeBadFilter},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ParseFilter(header, tt.expr)
				if got := taberrors.CodeOf(err); got != tt.want {
					t.Errorf("ParseFilter(%q) = %v, want code %s", tt.expr, err, tt.want)
				}
			})
		}
	})

	// The first '~' wins even when an '=' comes earlier, so the column name
	// may itself contain '='.
	t.Run("tilde takes priority over equals", func(t *testing.T) {
		f, err := ParseFilter([]string{"a=b"}, "a=b~c")
		if err != nil {
			t.Fatalf("ParseFilter failed: %v", err)
		}
		if !f.Match([]string{"abc"}) {
			t.Errorf("expected pattern %q to match %q", "c", "abc")
		}
		if f.Match([]string{"abd"}) {
			t.Errorf("expected pattern %q not to match %q", "c", "abd")
		}
	})
}

func TestFilterMatchNil(t *testing.T) {
	var f *Filter
	if !f.Match([]string{"anything"}) {
		t.Errorf("nil filter must match every row")
	}
	if !f.Match(nil) {
		t.Errorf("nil filter must match the empty row")
	}
}
