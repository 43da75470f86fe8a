package engine

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Provider is the cryptographic backend the engines delegate to. It is the
// only place where keys are created and where raw signatures are computed.
type Provider interface {
	GenerateRSA(bits int) (*rsa.PrivateKey, error)
	GenerateECDSA(curve elliptic.Curve) (*ecdsa.PrivateKey, error)

	// ExportECPrivateBlob exports an EC key in the private key blob layout
	// described at [parseECPrivateBlob].
	ExportECPrivateBlob(key *ecdsa.PrivateKey) ([]byte, error)

	// SignRSA returns a PKCS#1 v1.5 signature over an already computed digest.
	SignRSA(key *rsa.PrivateKey, hash crypto.Hash, digest []byte) ([]byte, error)

	// SignECDSA returns the raw signature r||s, each half padded to the
	// byte length of the curve's field.
	SignECDSA(key *ecdsa.PrivateKey, digest []byte) ([]byte, error)
}

// EC private key blob magics, one per curve.
const (
	eccPrivateMagicP256 uint32 = 0x32534345 // "ECS2"
	eccPrivateMagicP384 uint32 = 0x34534345 // "ECS4"
	eccPrivateMagicP521 uint32 = 0x36534345 // "ECS6"
)

const ecBlobHeaderSize = 8

// parseECPrivateBlob extracts the public point and the private scalar from
// an EC private key blob:
//
//	offset 0              4 bytes     magic, little endian
//	offset 4              4 bytes     block size bs in bytes, little endian
//	offset 8              bs bytes    X
//	offset 8+bs           bs bytes    Y
//	offset 8+2*bs         bs bytes    private scalar D
//
// The returned point is in uncompressed form (0x04||X||Y). Both slices are
// copies and don't alias blob.
func parseECPrivateBlob(blob []byte) (point []byte, scalar []byte, err error) {
	if len(blob) < ecBlobHeaderSize {
		return nil, nil, fmt.Errorf("engine: ec key blob too short (%d bytes)", len(blob))
	}

	blockSize := int(binary.LittleEndian.Uint32(blob[4:8]))
	if blockSize == 0 || len(blob) != ecBlobHeaderSize+3*blockSize {
		return nil, nil, fmt.Errorf("engine: ec key blob of %d bytes does not match block size %d", len(blob), blockSize)
	}

	point = make([]byte, 0, 1+2*blockSize)
	point = append(point, 0x04)
	point = append(point, blob[ecBlobHeaderSize:ecBlobHeaderSize+2*blockSize]...)

	scalar = make([]byte, blockSize)
	copy(scalar, blob[ecBlobHeaderSize+2*blockSize:])

	return point, scalar, nil
}

// SoftwareProvider implements [Provider] with the Go standard library.
type SoftwareProvider struct {
	// Rand is the entropy source. nil means crypto/rand.
	Rand io.Reader
}

var _ Provider = (*SoftwareProvider)(nil)

func NewSoftwareProvider() *SoftwareProvider {
	return &SoftwareProvider{}
}

func (p *SoftwareProvider) random() io.Reader {
	if p.Rand == nil {
		return rand.Reader
	}
	return p.Rand
}

func (p *SoftwareProvider) GenerateRSA(bits int) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(p.random(), bits)
	if err != nil {
		return nil, err
	}

	key.Precompute()
	return key, nil
}

func (p *SoftwareProvider) GenerateECDSA(curve elliptic.Curve) (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(curve, p.random())
}

func (p *SoftwareProvider) ExportECPrivateBlob(key *ecdsa.PrivateKey) ([]byte, error) {
	var magic uint32
	switch key.Curve {
	case elliptic.P256():
		magic = eccPrivateMagicP256
	case elliptic.P384():
		magic = eccPrivateMagicP384
	case elliptic.P521():
		magic = eccPrivateMagicP521
	default:
		return nil, fmt.Errorf("engine: can't export key on curve %s", key.Curve.Params().Name)
	}

	ecdhKey, err := key.ECDH()
	if err != nil {
		return nil, err
	}

	// uncompressed point: 0x04 || X || Y
	pub := ecdhKey.PublicKey().Bytes()
	priv := ecdhKey.Bytes()
	blockSize := len(priv)
	if len(pub) != 1+2*blockSize {
		return nil, errors.New("engine: unexpected public key length")
	}

	blob := make([]byte, ecBlobHeaderSize, ecBlobHeaderSize+3*blockSize)
	binary.LittleEndian.PutUint32(blob[0:4], magic)
	binary.LittleEndian.PutUint32(blob[4:8], uint32(blockSize))
	blob = append(blob, pub[1:]...)
	blob = append(blob, priv...)

	return blob, nil
}

func (p *SoftwareProvider) SignRSA(key *rsa.PrivateKey, hash crypto.Hash, digest []byte) ([]byte, error) {
	return rsa.SignPKCS1v15(p.random(), key, hash, digest)
}

func (p *SoftwareProvider) SignECDSA(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(p.random(), key, digest)
	if err != nil {
		return nil, err
	}

	size := (key.Curve.Params().BitSize + 7) / 8
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])

	return out, nil
}
