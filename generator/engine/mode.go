package engine

import (
	"strings"
)

type Variant uint

const (
	VariantRSA Variant = iota
	VariantECDSA
)

func (v Variant) String() string {
	switch v {
	case VariantRSA:
		return "RSA"
	case VariantECDSA:
		return "ECDSA"
	}

	return "unknown"
}

// Mode selects key type, key size and signature hash in one value.
type Mode uint

const (
	RSA1024SHA1 Mode = iota
	RSA2048SHA1
	RSA2048SHA256
	RSA3072SHA256
	RSA4096SHA384
	RSA4096SHA512
	RSA7680SHA384
	RSA15360SHA512
	ECDSA256SHA256
	ECDSA384SHA384
	ECDSA521SHA512
	MODE_LEN // this must always be the last entry
)

const DefaultMode = ECDSA256SHA256

// ModeUnknown stands for a mode that could not be determined, e.g. for a
// certificate made elsewhere. It never resolves to an engine.
const ModeUnknown = MODE_LEN

// Params are the concrete settings a mode resolves to. For ECDSA, KeySize is
// the curve size in bits.
type Params struct {
	Variant  Variant
	KeySize  int
	HashBits int
}

func (m Mode) describe() (string, Params, bool) {
	switch m {
	case RSA1024SHA1:
		return "RSA_1024_SHA1", Params{VariantRSA, 1024, 160}, true
	case RSA2048SHA1:
		return "RSA_2048_SHA1", Params{VariantRSA, 2048, 160}, true
	case RSA2048SHA256:
		return "RSA_2048_SHA256", Params{VariantRSA, 2048, 256}, true
	case RSA3072SHA256:
		return "RSA_3072_SHA256", Params{VariantRSA, 3072, 256}, true
	case RSA4096SHA384:
		return "RSA_4096_SHA384", Params{VariantRSA, 4096, 384}, true
	case RSA4096SHA512:
		return "RSA_4096_SHA512", Params{VariantRSA, 4096, 512}, true
	case RSA7680SHA384:
		return "RSA_7680_SHA384", Params{VariantRSA, 7680, 384}, true
	case RSA15360SHA512:
		return "RSA_15360_SHA512", Params{VariantRSA, 15360, 512}, true
	case ECDSA256SHA256:
		return "ECDSA_256_SHA256", Params{VariantECDSA, 256, 256}, true
	case ECDSA384SHA384:
		return "ECDSA_384_SHA384", Params{VariantECDSA, 384, 384}, true
	case ECDSA521SHA512:
		return "ECDSA_521_SHA512", Params{VariantECDSA, 521, 512}, true
	}

	return "", Params{}, false
}

func (m Mode) String() string {
	name, _, ok := m.describe()
	if !ok {
		return "UNKNOWN"
	}
	return name
}

// Modes lists every valid mode in declaration order.
func Modes() []Mode {
	out := make([]Mode, 0, MODE_LEN)
	for m := Mode(0); m < MODE_LEN; m++ {
		out = append(out, m)
	}
	return out
}

// Resolve maps a mode to its parameters. Unknown modes yield a
// [ConfigError].
func Resolve(m Mode) (Params, error) {
	_, p, ok := m.describe()
	if !ok {
		return Params{}, &ConfigError{Parameter: "signing mode", Value: uint(m), Reason: "not one of the supported modes"}
	}
	return p, nil
}

// ParseMode accepts mode names like "RSA_2048_SHA256", ignoring case and
// treating '-' like '_'.
func ParseMode(s string) (Mode, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for _, m := range Modes() {
		if m.String() == normalized {
			return m, nil
		}
	}

	return 0, &ConfigError{Parameter: "signing mode", Value: s, Reason: "not one of the supported modes"}
}
