// Package cert assembles self-signed X.509v3 certificates. It is designed
// to be completely oblivious to any configuration or storage: all it needs
// is a [engine.Engine] holding a freshly generated key pair and the
// certificate [Params].
//
// The certificate body is written with a [der.Writer], the exact bytes of
// the to-be-signed part are handed to the engine for signing.
package cert

import (
	"fmt"
	"time"

	"github.com/wokdav/certgen/generator/der"
	"github.com/wokdav/certgen/generator/engine"
)

const (
	OIDCommonName = "2.5.4.3"

	// x509 v3, encoded zero based
	certificateVersion = 2
)

// Params holds everything the certificate body is built from apart from
// the key, which comes from the engine.
type Params struct {
	SerialNumber int64
	Issuer       string
	Subject      string
	NotBefore    time.Time
	NotAfter     time.Time
}

// Validate checks the parameters before any output is written.
func (p Params) Validate() error {
	if p.SerialNumber <= 0 {
		return &engine.ConfigError{Parameter: "serial number", Value: p.SerialNumber, Reason: "must be greater than zero"}
	}

	if len(p.Issuer) == 0 {
		return &engine.ConfigError{Parameter: "issuer", Value: p.Issuer, Reason: "must not be empty"}
	}

	if len(p.Subject) == 0 {
		return &engine.ConfigError{Parameter: "subject", Value: p.Subject, Reason: "must not be empty"}
	}

	if !p.NotAfter.After(p.NotBefore) {
		return &engine.ConfigError{Parameter: "validity", Value: p.NotAfter.Format(time.RFC3339),
			Reason: "must end after " + p.NotBefore.Format(time.RFC3339)}
	}

	return nil
}

func writeName(w *der.Writer, commonName string) {
	w.Sequence(func(w *der.Writer) {
		w.Set(func(w *der.Writer) {
			w.Sequence(func(w *der.Writer) {
				w.WriteOID(OIDCommonName)
				w.WriteUTF8String(commonName)
			})
		})
	})
}

func writeAlgorithm(w *der.Writer, oid string) {
	w.Sequence(func(w *der.Writer) {
		w.WriteOID(oid)
	})
}

// TBS returns the DER encoding of the to-be-signed certificate body.
func TBS(e engine.Engine, p Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	w := der.NewWriter()
	w.Sequence(func(w *der.Writer) {
		w.Tagged(0, func(w *der.Writer) {
			w.WriteInteger(certificateVersion)
		})
		w.WriteInteger(p.SerialNumber)
		writeAlgorithm(w, e.SignatureOID())
		writeName(w, p.Issuer)
		w.Sequence(func(w *der.Writer) {
			w.WriteGeneralizedTime(p.NotBefore)
			w.WriteGeneralizedTime(p.NotAfter)
		})
		writeName(w, p.Subject)
		e.WritePublicKey(w)
	})

	out, err := w.Bytes()
	if err != nil {
		return nil, fmt.Errorf("cert: can't encode certificate body: %w", err)
	}

	return out, nil
}

// Build creates the signed certificate in three steps: the body is
// encoded, signed over its exact bytes and finally wrapped together with
// the signature algorithm and the signature. Nothing is returned unless all
// steps succeed.
func Build(e engine.Engine, p Params) ([]byte, error) {
	tbs, err := TBS(e, p)
	if err != nil {
		return nil, err
	}

	var signErr error
	w := der.NewWriter()
	w.Sequence(func(w *der.Writer) {
		w.WriteRaw(tbs)
		writeAlgorithm(w, e.SignatureOID())
		signErr = e.SignData(w, tbs)
	})

	if signErr != nil {
		return nil, fmt.Errorf("cert: can't sign certificate: %w", signErr)
	}

	out, err := w.Bytes()
	if err != nil {
		return nil, fmt.Errorf("cert: can't encode certificate: %w", err)
	}

	return out, nil
}
