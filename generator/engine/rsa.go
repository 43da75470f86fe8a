package engine

import (
	"crypto"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/wokdav/certgen/generator/der"
)

// RSAEngine signs with PKCS#1 v1.5.
type RSAEngine struct {
	provider Provider
	keySize  int
	hashBits int
	hash     crypto.Hash
	key      *rsa.PrivateKey
	closed   bool
}

var _ Engine = (*RSAEngine)(nil)

func validRSAKeySize(bits int) bool {
	switch bits {
	case 1024, 2048, 3072, 4096, 7680, 15360:
		return true
	}
	return false
}

func rsaSignatureOID(hashBits int) string {
	switch hashBits {
	case 160:
		return OIDRSAWithSHA1
	case 256:
		return OIDRSAWithSHA256
	case 384:
		return OIDRSAWithSHA384
	case 512:
		return OIDRSAWithSHA512
	}
	return ""
}

func NewRSA(provider Provider, keySize int, hashBits int) (*RSAEngine, error) {
	if provider == nil {
		return nil, &ConfigError{Parameter: "provider", Value: nil, Reason: "a crypto provider is required"}
	}

	if !validRSAKeySize(keySize) {
		return nil, &ConfigError{Parameter: "key size", Value: keySize,
			Reason: "RSA supports 1024, 2048, 3072, 4096, 7680 and 15360 bits"}
	}

	hash, ok := hashForBits(hashBits)
	if !ok {
		return nil, &ConfigError{Parameter: "hash strength", Value: hashBits,
			Reason: "RSA supports 160, 256, 384 and 512 bits"}
	}

	return &RSAEngine{
		provider: provider,
		keySize:  keySize,
		hashBits: hashBits,
		hash:     hash,
	}, nil
}

func (e *RSAEngine) Generate() error {
	if e.closed {
		return ErrClosed
	}

	key, err := e.provider.GenerateRSA(e.keySize)
	if err != nil {
		return fmt.Errorf("engine: can't generate %d bit RSA key: %w", e.keySize, err)
	}

	if len(key.Primes) != 2 {
		return fmt.Errorf("engine: expected a two-prime RSA key, got %d primes", len(key.Primes))
	}

	if key.Precomputed.Dp == nil {
		key.Precompute()
	}

	e.key = key
	return nil
}

func (e *RSAEngine) SignatureOID() string {
	return rsaSignatureOID(e.hashBits)
}

func (e *RSAEngine) SignData(w *der.Writer, data []byte) error {
	if e.closed {
		return ErrClosed
	}
	if e.key == nil {
		return ErrNoKey
	}

	signature, err := e.provider.SignRSA(e.key, e.hash, digest(e.hash, data))
	if err != nil {
		return fmt.Errorf("engine: RSA signing failed: %w", err)
	}

	w.WriteBitString(signature)
	return nil
}

func (e *RSAEngine) usable(w *der.Writer) bool {
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

func (e *RSAEngine) WritePublicKey(w *der.Writer) {
	if !e.usable(w) {
		return
	}

	w.Sequence(func(w *der.Writer) {
		w.Sequence(func(w *der.Writer) {
			w.WriteOID(OIDRSAEncryption)
			w.WriteNull()
		})
		w.BitString(func(w *der.Writer) {
			w.Sequence(func(w *der.Writer) {
				w.WriteBigInt(e.key.N)
				w.WriteInteger(int64(e.key.E))
			})
		})
	})
}

func (e *RSAEngine) WritePrivateKey(w *der.Writer) {
	if !e.usable(w) {
		return
	}

	k := e.key
	w.Sequence(func(w *der.Writer) {
		w.WriteInteger(0)
		w.Sequence(func(w *der.Writer) {
			w.WriteOID(OIDRSAEncryption)
		})
		w.OctetString(func(w *der.Writer) {
			w.Sequence(func(w *der.Writer) {
				w.WriteInteger(0)
				for _, n := range []*big.Int{
					k.N,
					big.NewInt(int64(k.E)),
					k.D,
					k.Primes[0],
					k.Primes[1],
					k.Precomputed.Dp,
					k.Precomputed.Dq,
					k.Precomputed.Qinv,
				} {
					w.WriteBigInt(n)
				}
			})
		})
	})
}

func (e *RSAEngine) Close() error {
	e.key = nil
	e.closed = true
	return nil
}
