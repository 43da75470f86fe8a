package engine

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/wokdav/certgen/generator/der"
)

// ECDSAEngine signs with ECDSA on one of the NIST prime curves. The hash
// strength follows from the curve size.
type ECDSAEngine struct {
	provider  Provider
	curveBits int
	hashBits  int
	hash      crypto.Hash
	curve     elliptic.Curve
	curveOID  string

	key    *ecdsa.PrivateKey
	point  []byte
	scalar []byte
	closed bool
}

var _ Engine = (*ECDSAEngine)(nil)

type curveInfo struct {
	curve     elliptic.Curve
	oid       string
	hashBits  int
	sigOID    string
	blockSize int
}

func curveForBits(bits int) (curveInfo, bool) {
	switch bits {
	case 256:
		return curveInfo{elliptic.P256(), OIDCurveP256, 256, OIDECDSAWithSHA256, 32}, true
	case 384:
		return curveInfo{elliptic.P384(), OIDCurveP384, 384, OIDECDSAWithSHA384, 48}, true
	case 521:
		return curveInfo{elliptic.P521(), OIDCurveP521, 512, OIDECDSAWithSHA512, 66}, true
	}
	return curveInfo{}, false
}

func NewECDSA(provider Provider, curveBits int, hashBits int) (*ECDSAEngine, error) {
	if provider == nil {
		return nil, &ConfigError{Parameter: "provider", Value: nil, Reason: "a crypto provider is required"}
	}

	info, ok := curveForBits(curveBits)
	if !ok {
		return nil, &ConfigError{Parameter: "key size", Value: curveBits,
			Reason: "ECDSA supports the 256, 384 and 521 bit curves"}
	}

	if hashBits != info.hashBits {
		return nil, &ConfigError{Parameter: "hash strength", Value: hashBits,
			Reason: fmt.Sprintf("the %d bit curve requires a %d bit hash", curveBits, info.hashBits)}
	}

	hash, _ := hashForBits(hashBits)

	return &ECDSAEngine{
		provider:  provider,
		curveBits: curveBits,
		hashBits:  hashBits,
		hash:      hash,
		curve:     info.curve,
		curveOID:  info.oid,
	}, nil
}

func (e *ECDSAEngine) Generate() error {
	if e.closed {
		return ErrClosed
	}

	key, err := e.provider.GenerateECDSA(e.curve)
	if err != nil {
		return fmt.Errorf("engine: can't generate %d bit EC key: %w", e.curveBits, err)
	}

	blob, err := e.provider.ExportECPrivateBlob(key)
	if err != nil {
		return fmt.Errorf("engine: can't export EC key: %w", err)
	}

	point, scalar, err := parseECPrivateBlob(blob)
	clear(blob)
	if err != nil {
		return err
	}

	info, _ := curveForBits(e.curveBits)
	if len(scalar) != info.blockSize {
		clear(scalar)
		return fmt.Errorf("engine: exported scalar has %d bytes, expected %d", len(scalar), info.blockSize)
	}

	if err := matchesKey(key, point, scalar); err != nil {
		clear(scalar)
		return err
	}

	e.key = key
	e.point = point
	e.scalar = scalar
	return nil
}

// matchesKey checks that the exported blob belongs to the key the provider
// will sign with.
func matchesKey(key *ecdsa.PrivateKey, point []byte, scalar []byte) error {
	ecdhKey, err := key.ECDH()
	if err != nil {
		return fmt.Errorf("engine: can't check exported EC key: %w", err)
	}

	if !bytes.Equal(ecdhKey.PublicKey().Bytes(), point) {
		return errors.New("engine: exported public point does not belong to the generated key")
	}

	if subtle.ConstantTimeCompare(ecdhKey.Bytes(), scalar) != 1 {
		return errors.New("engine: exported private scalar does not belong to the generated key")
	}

	return nil
}

func (e *ECDSAEngine) SignatureOID() string {
	info, _ := curveForBits(e.curveBits)
	return info.sigOID
}

func (e *ECDSAEngine) SignData(w *der.Writer, data []byte) error {
	if e.closed {
		return ErrClosed
	}
	if e.key == nil {
		return ErrNoKey
	}

	raw, err := e.provider.SignECDSA(e.key, digest(e.hash, data))
	if err != nil {
		return fmt.Errorf("engine: ECDSA signing failed: %w", err)
	}

	if len(raw) == 0 || len(raw)%2 != 0 {
		return fmt.Errorf("engine: raw ECDSA signature has odd length %d", len(raw))
	}

	half := len(raw) / 2
	w.BitString(func(w *der.Writer) {
		w.Sequence(func(w *der.Writer) {
			w.WriteIntegerBytes(raw[:half])
			w.WriteIntegerBytes(raw[half:])
		})
	})

	return nil
}

func (e *ECDSAEngine) usable(w *der.Writer) bool {
	switch {
	case e.closed:
		w.SetError(ErrClosed)
	case e.key == nil:
		w.SetError(ErrNoKey)
	default:
		return true
	}
	return false
}

func (e *ECDSAEngine) writeAlgorithm(w *der.Writer) {
	w.Sequence(func(w *der.Writer) {
		w.WriteOID(OIDECPublicKey)
		w.WriteOID(e.curveOID)
	})
}

func (e *ECDSAEngine) WritePublicKey(w *der.Writer) {
	if !e.usable(w) {
		return
	}

	w.Sequence(func(w *der.Writer) {
		e.writeAlgorithm(w)
		w.WriteBitString(e.point)
	})
}

func (e *ECDSAEngine) WritePrivateKey(w *der.Writer) {
	if !e.usable(w) {
		return
	}

	w.Sequence(func(w *der.Writer) {
		w.WriteInteger(0)
		e.writeAlgorithm(w)
		w.OctetString(func(w *der.Writer) {
			w.Sequence(func(w *der.Writer) {
				w.WriteInteger(1)
				w.WriteOctetString(e.scalar)
				w.Tagged(0, func(w *der.Writer) {
					w.WriteOID(e.curveOID)
				})
			})
		})
	})
}

func (e *ECDSAEngine) Close() error {
	clear(e.scalar)
	e.scalar = nil
	e.point = nil
	e.key = nil
	e.closed = true
	return nil
}
