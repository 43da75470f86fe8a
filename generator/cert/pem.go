package cert

import (
	"encoding/pem"
	"errors"
	"io"

	"github.com/wokdav/certgen/generator/der"
)

const pemTypeCertificate = "CERTIFICATE"

// Writes the given DER certificate into a PEM file.
func WritePem(w io.Writer, certificate []byte) error {
	block := &pem.Block{
		Type:  pemTypeCertificate,
		Bytes: certificate,
	}

	return pem.Encode(w, block)
}

// ReadCertificate accepts a certificate either as DER or as PEM and returns
// the DER bytes. For PEM input the first CERTIFICATE block is used.
func ReadCertificate(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("cert: no certificate data")
	}

	// DER certificates always start with a SEQUENCE
	if data[0] == der.TagSequence {
		return data, nil
	}

	var p *pem.Block
	for {
		p, data = pem.Decode(data)
		if p == nil {
			return nil, errors.New("cert: can't decode data as PEM")
		}

		if p.Type == pemTypeCertificate {
			return p.Bytes, nil
		}
	}
}
