// Package dispatcher parses command strings arriving from either the
// terminal or the UDP command port into a hardware.Command, per spec
// §4.2.1 and §4.3. Parsing is pure and side-effect free: it holds no
// hardware state, so it can be unit-tested in isolation.
package dispatcher

import (
	"fmt"
	"strconv"
	"strings"

	"lifty/pkg/hardware"
)

// Source distinguishes where a command string originated, per §4.3.
type Source int

const (
	Terminal Source = iota
	UDP
)

func (s Source) String() string {
	switch s {
	case Terminal:
		return "terminal"
	case UDP:
		return "udp"
	default:
		return "unknown"
	}
}

// Parse parses a single trimmed command line against the grammar in
// §4.2.1. It strictly matches case-sensitive command forms; anything else,
// including a syntactically-close but out-of-range floor number (e.g.
// "U5"), is reported as unrecognized rather than crashing — §4.2.2 is
// explicit that out-of-range n on button commands is "unrecognized", not a
// safety violation. IUn/IDn are the exception: n=5 (IU) and n=1 (ID) parse
// successfully because they are named crash predicates in §4.2.2, not
// parse errors.
func Parse(line string) (hardware.Command, error) {
	switch line {
	case "MU":
		return hardware.Command{Kind: hardware.MoveUp, Raw: line}, nil
	case "MD":
		return hardware.Command{Kind: hardware.MoveDown, Raw: line}, nil
	case "S":
		return hardware.Command{Kind: hardware.Stop, Raw: line}, nil
	case "DO":
		return hardware.Command{Kind: hardware.DoorOpenCmd, Raw: line}, nil
	case "DC":
		return hardware.Command{Kind: hardware.DoorCloseCmd, Raw: line}, nil
	case "R":
		return hardware.Command{Kind: hardware.Reset, Raw: line}, nil
	}

	// Two-letter prefixes are checked before the single-letter ones they
	// could be mistaken for (e.g. "CP3" is a clear, not an unknown
	// panel-set "P" with a garbage prefix).
	switch {
	case strings.HasPrefix(line, "CP"):
		if n, ok := floorIn(line[2:], 1, 5); ok {
			return hardware.Command{Kind: hardware.PanelClear, Floor: n, Raw: line}, nil
		}
	case strings.HasPrefix(line, "CU"):
		if n, ok := floorIn(line[2:], 1, 4); ok {
			return hardware.Command{Kind: hardware.HallUpClear, Floor: n, Raw: line}, nil
		}
	case strings.HasPrefix(line, "CD"):
		if n, ok := floorIn(line[2:], 2, 5); ok {
			return hardware.Command{Kind: hardware.HallDownClear, Floor: n, Raw: line}, nil
		}
	case strings.HasPrefix(line, "CI"):
		if n, ok := floorIn(line[2:], 1, 5); ok {
			return hardware.Command{Kind: hardware.IndicatorClear, Floor: n, Raw: line}, nil
		}
	case strings.HasPrefix(line, "IU"):
		if n, ok := floorIn(line[2:], 1, 5); ok {
			return hardware.Command{Kind: hardware.IndicatorUp, Floor: n, Raw: line}, nil
		}
	case strings.HasPrefix(line, "ID"):
		if n, ok := floorIn(line[2:], 1, 5); ok {
			return hardware.Command{Kind: hardware.IndicatorDown, Floor: n, Raw: line}, nil
		}
	}

	switch {
	case strings.HasPrefix(line, "P"):
		if n, ok := floorIn(line[1:], 1, 5); ok {
			return hardware.Command{Kind: hardware.PanelSet, Floor: n, Raw: line}, nil
		}
	case strings.HasPrefix(line, "U"):
		if n, ok := floorIn(line[1:], 1, 4); ok {
			return hardware.Command{Kind: hardware.HallUpSet, Floor: n, Raw: line}, nil
		}
	case strings.HasPrefix(line, "D"):
		if n, ok := floorIn(line[1:], 2, 5); ok {
			return hardware.Command{Kind: hardware.HallDownSet, Floor: n, Raw: line}, nil
		}
	}

	return hardware.Command{}, fmt.Errorf("unknown command: %s", line)
}

// floorIn parses s as a decimal integer in canonical form (no sign, no
// leading zeros) and reports whether it falls within [lo, hi].
func floorIn(s string, lo, hi int) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || strconv.Itoa(n) != s {
		return 0, false
	}
	if n < lo || n > hi {
		return 0, false
	}
	return n, true
}
