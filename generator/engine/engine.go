// Package engine contains the signing engines that produce key material,
// signatures and key encodings for a certificate.
//
// Two variants exist, one for RSA and one for ECDSA. Both implement
// [Engine]. The signing mode enumeration in this package resolves a single
// user-facing mode (e.g. RSA_2048_SHA256) to a constructed engine.
//
// All actual cryptography is delegated to a [Provider]. Engines only decide
// what to ask the provider for and how to encode the answers. An engine owns
// its key material until [Engine.Close] is called; callers should always
// defer Close right after construction.
package engine

import (
	"crypto"
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"

	"github.com/wokdav/certgen/generator/der"
)

// Algorithm identifiers
const (
	OIDRSAEncryption = "1.2.840.113549.1.1.1"
	OIDECPublicKey   = "1.2.840.10045.2.1"
)

// Signature algorithm OIDs
const (
	OIDRSAWithSHA1     = "1.2.840.113549.1.1.5"
	OIDRSAWithSHA256   = "1.2.840.113549.1.1.11"
	OIDRSAWithSHA384   = "1.2.840.113549.1.1.12"
	OIDRSAWithSHA512   = "1.2.840.113549.1.1.13"
	OIDECDSAWithSHA256 = "1.2.840.10045.4.3.2"
	OIDECDSAWithSHA384 = "1.2.840.10045.4.3.3"
	OIDECDSAWithSHA512 = "1.2.840.10045.4.3.4"
)

// Named curve OIDs
const (
	OIDCurveP256 = "1.2.840.10045.3.1.7"
	OIDCurveP384 = "1.3.132.0.34"
	OIDCurveP521 = "1.3.132.0.35"
)

// Engine is the capability set shared by the RSA and ECDSA variants.
type Engine interface {
	// Generate asks the provider for a fresh key pair of the configured size.
	Generate() error

	// SignatureOID names the signature algorithm in dotted form.
	SignatureOID() string

	// SignData signs data with the configured hash and writes the
	// signature as a BIT STRING.
	SignData(w *der.Writer, data []byte) error

	// WritePublicKey writes a SubjectPublicKeyInfo.
	WritePublicKey(w *der.Writer)

	// WritePrivateKey writes a PKCS#8 PrivateKeyInfo.
	WritePrivateKey(w *der.Writer)

	// Close drops the key material. It is safe to call more than once.
	Close() error
}

var (
	ErrNoKey  = errors.New("engine: no key generated")
	ErrClosed = errors.New("engine: engine is closed")
)

// ConfigError reports a parameter that can't be used to build a
// certificate. It is returned before anything is generated or written.
type ConfigError struct {
	Parameter string
	Value     any
	Reason    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s '%v': %s", e.Parameter, e.Value, e.Reason)
}

func hashForBits(bits int) (crypto.Hash, bool) {
	switch bits {
	case 160:
		return crypto.SHA1, true
	case 256:
		return crypto.SHA256, true
	case 384:
		return crypto.SHA384, true
	case 512:
		return crypto.SHA512, true
	}

	return 0, false
}

func digest(h crypto.Hash, data []byte) []byte {
	hh := h.New()
	hh.Write(data)
	return hh.Sum(nil)
}

// New builds the engine that mode resolves to.
func New(mode Mode, provider Provider) (Engine, error) {
	params, err := Resolve(mode)
	if err != nil {
		return nil, err
	}

	switch params.Variant {
	case VariantRSA:
		e, err := NewRSA(provider, params.KeySize, params.HashBits)
		if err != nil {
			return nil, err
		}
		return e, nil
	case VariantECDSA:
		e, err := NewECDSA(provider, params.KeySize, params.HashBits)
		if err != nil {
			return nil, err
		}
		return e, nil
	}

	panic("engine: mode table is broken")
}
