package arch

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec is a parsed language id of the form processor:endian:bits[:variant],
// for example x86:LE:64:default or AARCH64:LE:64:v8A.
type Spec struct {
	Processor string
	Endian    string
	Bits      int
	Variant   string
}

// ParseSpec parses a language id.
func ParseSpec(s string) (Spec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Spec{}, fmt.Errorf("invalid arch spec %q: want processor:endian:bits[:variant]", s)
	}

	processor := parts[0]
	if processor == "" {
		return Spec{}, fmt.Errorf("invalid arch spec %q: empty processor", s)
	}

	endian := strings.ToUpper(parts[1])
	if endian != "LE" && endian != "BE" {
		return Spec{}, fmt.Errorf("invalid arch spec %q: endian must be LE or BE", s)
	}

	bits, err := strconv.Atoi(parts[2])
	if err != nil || bits <= 0 {
		return Spec{}, fmt.Errorf("invalid arch spec %q: bad bit width %q", s, parts[2])
	}

	variant := "default"
	if len(parts) == 4 && parts[3] != "" {
		variant = parts[3]
	}

	return Spec{
		Processor: processor,
		Endian:    endian,
		Bits:      bits,
		Variant:   variant,
	}, nil
}

// String formats the spec back into its language id.
func (s Spec) String() string {
	return fmt.Sprintf("%s:%s:%d:%s", s.Processor, s.Endian, s.Bits, s.Variant)
}

// Is reports whether the spec names processor, ignoring case.
func (s Spec) Is(processor string) bool {
	return strings.EqualFold(s.Processor, processor)
}
