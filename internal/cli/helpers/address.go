package helpers

import (
	"fmt"
	"strconv"
	"strings"
)

// SymbolLookup resolves a symbol name to an address.
type SymbolLookup func(name string) (uint64, bool)

// ParseAddress parses an address argument. Numbers take Go literal syntax
// (0x1000, 4096, 0o10000); a trailing "h" marks hex (1000h). Anything else
// is looked up as a symbol when lookup is non-nil.
func ParseAddress(s string, lookup SymbolLookup) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty address")
	}

	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return v, nil
	}
	if h := strings.TrimSuffix(strings.ToLower(s), "h"); h != strings.ToLower(s) {
		if v, err := strconv.ParseUint(h, 16, 64); err == nil {
			return v, nil
		}
	}

	if lookup != nil {
		if v, ok := lookup(s); ok {
			return v, nil
		}
		return 0, fmt.Errorf("invalid address %q: not a number or known symbol", s)
	}
	return 0, fmt.Errorf("invalid address %q", s)
}

// ParseRange parses START and END arguments. END may be "+N" for a length
// relative to START.
func ParseRange(start, end string, lookup SymbolLookup) (uint64, uint64, error) {
	lo, err := ParseAddress(start, lookup)
	if err != nil {
		return 0, 0, fmt.Errorf("start: %w", err)
	}

	var hi uint64
	if rest, ok := strings.CutPrefix(strings.TrimSpace(end), "+"); ok {
		n, err := ParseAddress(rest, nil)
		if err != nil {
			return 0, 0, fmt.Errorf("length: %w", err)
		}
		hi = lo + n
		if hi < lo {
			return 0, 0, fmt.Errorf("range %#x+%#x overflows", lo, n)
		}
	} else {
		hi, err = ParseAddress(end, lookup)
		if err != nil {
			return 0, 0, fmt.Errorf("end: %w", err)
		}
	}

	if hi <= lo {
		return 0, 0, fmt.Errorf("end %#x must be above start %#x", hi, lo)
	}
	return lo, hi, nil
}
