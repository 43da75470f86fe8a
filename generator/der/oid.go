package der

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ParseOID converts an OID in dotted decimal form into its arcs.
func ParseOID(s string) ([]uint64, error) {
	if len(s) == 0 {
		return nil, errors.New("der: empty object identifier")
	}

	parts := strings.Split(s, ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("der: object identifier '%s' needs at least two arcs", s)
	}

	arcs := make([]uint64, len(parts))
	for i, p := range parts {
		if len(p) == 0 || strings.TrimLeft(p, "0123456789") != "" {
			return nil, fmt.Errorf("der: malformed arc '%s' in object identifier '%s'", p, s)
		}

		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("der: arc '%s' in object identifier '%s': %v", p, s, err)
		}
		arcs[i] = n
	}

	if arcs[0] > 2 || (arcs[0] < 2 && arcs[1] >= 40) {
		return nil, fmt.Errorf("der: invalid leading arcs in object identifier '%s'", s)
	}

	if arcs[1] > ^uint64(0)-80 {
		return nil, fmt.Errorf("der: second arc of '%s' too large", s)
	}

	return arcs, nil
}

// encodeOID returns the content octets of an OBJECT IDENTIFIER. The first two
// arcs share one subidentifier (first*40+second); each subidentifier is
// written base 128, most significant group first, with the high bit set on
// every octet but the last.
func encodeOID(arcs []uint64) []byte {
	out := appendBase128(nil, arcs[0]*40+arcs[1])
	for _, arc := range arcs[2:] {
		out = appendBase128(out, arc)
	}

	return out
}

func appendBase128(dst []byte, v uint64) []byte {
	n := 1
	for t := v >> 7; t > 0; t >>= 7 {
		n++
	}

	for i := n - 1; i >= 0; i-- {
		b := byte(v>>(uint(i)*7)) & 0x7f
		if i != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}

	return dst
}
