// Package pkcs12 bundles a certificate and its private key into a PKCS#12
// (PFX) container.
//
// [Package] writes an unencrypted PFX with exactly one key bag and one
// certificate bag, linked by the same local key id. [Export] turns such a
// container into a password protected one, which is the only form that
// should ever be written to disk.
package pkcs12

import (
	"errors"
	"fmt"

	"github.com/wokdav/certgen/generator/der"
	"github.com/wokdav/certgen/generator/engine"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// Content and bag types
const (
	OIDData            = "1.2.840.113549.1.7.1"
	OIDKeyBag          = "1.2.840.113549.1.12.10.1.1"
	OIDCertBag         = "1.2.840.113549.1.12.10.1.3"
	OIDX509Certificate = "1.2.840.113549.1.9.22.1"
)

// Bag attributes
const (
	OIDFriendlyName = "1.2.840.113549.1.9.20"
	OIDLocalKeyID   = "1.2.840.113549.1.9.21"
)

const (
	pfxVersion = 3

	// FriendlyName is attached to both bags.
	FriendlyName = "Certificate1"
)

// LocalKeyID links the key bag to the certificate bag.
var LocalKeyID = []byte{0x01}

func writeAttributes(w *der.Writer) {
	w.Set(func(w *der.Writer) {
		w.Sequence(func(w *der.Writer) {
			w.WriteOID(OIDLocalKeyID)
			w.Set(func(w *der.Writer) {
				w.WriteOctetString(LocalKeyID)
			})
		})
		w.Sequence(func(w *der.Writer) {
			w.WriteOID(OIDFriendlyName)
			w.Set(func(w *der.Writer) {
				w.WriteUTF8String(FriendlyName)
			})
		})
	})
}

// writeDataContent wraps a single safe bag into a data ContentInfo holding
// its SafeContents.
func writeDataContent(w *der.Writer, bag der.Continuation) {
	w.Sequence(func(w *der.Writer) {
		w.WriteOID(OIDData)
		w.Tagged(0, func(w *der.Writer) {
			w.OctetString(func(w *der.Writer) {
				w.Sequence(func(w *der.Writer) {
					w.Sequence(bag)
				})
			})
		})
	})
}

func keyBag(e engine.Engine) der.Continuation {
	return func(w *der.Writer) {
		w.WriteOID(OIDKeyBag)
		w.Tagged(0, e.WritePrivateKey)
		writeAttributes(w)
	}
}

func certBag(certificate []byte) der.Continuation {
	return func(w *der.Writer) {
		w.WriteOID(OIDCertBag)
		w.Tagged(0, func(w *der.Writer) {
			w.Sequence(func(w *der.Writer) {
				w.WriteOID(OIDX509Certificate)
				w.Tagged(0, func(w *der.Writer) {
					w.WriteOctetString(certificate)
				})
			})
		})
		writeAttributes(w)
	}
}

// Package returns an unencrypted PFX without MAC holding the engine's
// private key and the certificate.
func Package(e engine.Engine, certificate []byte) ([]byte, error) {
	if len(certificate) == 0 {
		return nil, errors.New("pkcs12: no certificate to package")
	}

	w := der.NewWriter()
	w.Sequence(func(w *der.Writer) {
		w.WriteInteger(pfxVersion)
		w.Sequence(func(w *der.Writer) {
			w.WriteOID(OIDData)
			w.Tagged(0, func(w *der.Writer) {
				w.OctetString(func(w *der.Writer) {
					w.Sequence(func(w *der.Writer) {
						writeDataContent(w, keyBag(e))
						writeDataContent(w, certBag(certificate))
					})
				})
			})
		})
	})

	out, err := w.Bytes()
	if err != nil {
		return nil, fmt.Errorf("pkcs12: can't encode container: %w", err)
	}

	return out, nil
}

// Export re-encodes an unencrypted PFX as produced by [Package] with
// password based encryption and an integrity MAC.
func Export(pfx []byte, password string) ([]byte, error) {
	key, certificate, _, err := gopkcs12.DecodeChain(pfx, "")
	if err != nil {
		return nil, fmt.Errorf("pkcs12: can't read container: %w", err)
	}

	out, err := gopkcs12.Modern.Encode(key, certificate, nil, password)
	if err != nil {
		return nil, fmt.Errorf("pkcs12: can't encrypt container: %w", err)
	}

	return out, nil
}
