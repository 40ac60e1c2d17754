package tabfile

import (
	"regexp"
	"strings"

	taberrors "github.com/maruel/tabdb/internal/errors"
)

// filterOp distinguishes the two predicate forms.
type filterOp int

const (
	opEquals  filterOp = iota // exact byte equality with a literal
	opMatches                 // unanchored POSIX ERE match
)

// Filter is a parsed WHERE predicate over a single column. The column is
// resolved to its 1-based header position once, at parse time.
type Filter struct {
	op      filterOp
	col     int
	literal string
	re      *regexp.Regexp
}

// ParseFilter parses expr against header into a Filter.
//
// The first '~' anywhere in expr selects the regex form <column>~<pattern>;
// otherwise the first '=' selects the equality form <column>=<value>; an
// expression with neither fails with BadFilter. The pattern may be wrapped
// in the conventional /slashes/; the inner text is compiled verbatim with
// POSIX extended semantics, metacharacters and all, so what the pattern
// means is the caller's responsibility. The equality value is kept as an
// opaque literal and compared byte-for-byte.
func ParseFilter(header []string, expr string) (*Filter, error) {
	if i := strings.Index(expr, "~"); i >= 0 {
		col, err := ColumnIndex(header, expr[:i])
		if err != nil {
			return nil, err
		}
		re, err := regexp.CompilePOSIX(trimPatternSlashes(expr[i+1:]))
		if err != nil {
			return nil, taberrors.BadFilter(expr, err.Error())
		}
		return &Filter{op: opMatches, col: col, re: re}, nil
	}
	if i := strings.Index(expr, "="); i >= 0 {
		col, err := ColumnIndex(header, expr[:i])
		if err != nil {
			return nil, err
		}
		return &Filter{op: opEquals, col: col, literal: expr[i+1:]}, nil
	}
	return nil, taberrors.BadFilter(expr, "expected <column>=<value> or <column>~<pattern>")
}

// trimPatternSlashes unwraps a /pattern/ written in regex-literal notation.
func trimPatternSlashes(p string) string {
	if len(p) >= 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") {
		return p[1 : len(p)-1]
	}
	return p
}

// Match reports whether the row satisfies the predicate. A nil Filter
// matches every row. Regex matching is a substring match, not anchored.
func (f *Filter) Match(fields []string) bool {
	if f == nil {
		return true
	}
	v := fieldAt(fields, f.col)
	switch f.op {
	case opEquals:
		return v == f.literal
	case opMatches:
		return f.re.MatchString(v)
	}
	return false
}
