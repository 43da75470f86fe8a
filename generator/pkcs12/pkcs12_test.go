package pkcs12

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wokdav/certgen/generator/cert"
	"github.com/wokdav/certgen/generator/engine"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func build(t *testing.T, m engine.Mode) (certificate []byte, pfx []byte) {
	t.Helper()

	e, err := engine.New(m, engine.NewSoftwareProvider())
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Generate())

	certificate, err = cert.Build(e, cert.Params{
		SerialNumber: 1,
		Issuer:       "pkcs12 test",
		Subject:      "pkcs12 test",
		NotBefore:    time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	pfx, err = Package(e, certificate)
	require.NoError(t, err)

	return certificate, pfx
}

// keyMatches signs test data with the recovered key and verifies it with
// the certificate's public key.
func keyMatches(t *testing.T, key any, c *x509.Certificate) {
	t.Helper()

	sum := sha256.Sum256([]byte("arbitrary test data"))

	switch k := key.(type) {
	case *rsa.PrivateKey:
		sig, err := rsa.SignPKCS1v15(rand.Reader, k, crypto.SHA256, sum[:])
		require.NoError(t, err)
		pub, ok := c.PublicKey.(*rsa.PublicKey)
		require.True(t, ok)
		require.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA256, sum[:], sig))
	case *ecdsa.PrivateKey:
		sig, err := ecdsa.SignASN1(rand.Reader, k, sum[:])
		require.NoError(t, err)
		pub, ok := c.PublicKey.(*ecdsa.PublicKey)
		require.True(t, ok)
		require.True(t, ecdsa.VerifyASN1(pub, sum[:], sig))
	default:
		t.Fatalf("unexpected key type %T", key)
	}
}

func TestPackageRoundTrip(t *testing.T) {
	modes := []engine.Mode{
		engine.RSA1024SHA1,
		engine.RSA2048SHA256,
		engine.ECDSA256SHA256,
		engine.ECDSA384SHA384,
		engine.ECDSA521SHA512,
	}

	for _, m := range modes {
		t.Run(m.String(), func(t *testing.T) {
			certificate, pfx := build(t, m)

			key, c, caCerts, err := gopkcs12.DecodeChain(pfx, "")
			require.NoError(t, err)
			require.Empty(t, caCerts)
			require.Equal(t, certificate, c.Raw)

			keyMatches(t, key, c)
		})
	}
}

func TestExport(t *testing.T) {
	certificate, pfx := build(t, engine.ECDSA256SHA256)

	exported, err := Export(pfx, "s3cr3t")
	require.NoError(t, err)

	_, _, err = gopkcs12.Decode(exported, "wrong")
	require.ErrorIs(t, err, gopkcs12.ErrIncorrectPassword)

	key, c, err := gopkcs12.Decode(exported, "s3cr3t")
	require.NoError(t, err)
	require.Equal(t, certificate, c.Raw)

	keyMatches(t, key, c)
}

func TestExportGarbage(t *testing.T) {
	_, err := Export([]byte{0x30, 0x00}, "s3cr3t")
	require.Error(t, err)
}

func TestPackageWithoutCertificate(t *testing.T) {
	e, err := engine.New(engine.ECDSA256SHA256, engine.NewSoftwareProvider())
	require.NoError(t, err)
	defer e.Close()

	_, err = Package(e, nil)
	require.Error(t, err)
}

func TestPackageWithoutKey(t *testing.T) {
	e, err := engine.New(engine.ECDSA256SHA256, engine.NewSoftwareProvider())
	require.NoError(t, err)
	defer e.Close()

	out, err := Package(e, []byte{0x30, 0x00})
	require.ErrorIs(t, err, engine.ErrNoKey)
	require.Nil(t, out)
}

// readBag walks a data ContentInfo down to its only SafeBag.
func readBag(t *testing.T, ci *cryptobyte.String) cryptobyte.String {
	t.Helper()

	var content, oid, explicit, safeContents, safeBag cryptobyte.String
	var octets []byte

	require.True(t, ci.ReadASN1(&content, cbasn1.SEQUENCE))
	require.True(t, content.ReadASN1(&oid, cbasn1.OBJECT_IDENTIFIER))
	require.Equal(t, []byte{0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x01, 0x07, 0x01}, []byte(oid))
	require.True(t, content.ReadASN1(&explicit, cbasn1.Tag(0).Constructed().ContextSpecific()))
	require.True(t, explicit.ReadASN1Bytes(&octets, cbasn1.OCTET_STRING))

	s := cryptobyte.String(octets)
	require.True(t, s.ReadASN1(&safeContents, cbasn1.SEQUENCE))
	require.True(t, s.Empty())
	require.True(t, safeContents.ReadASN1(&safeBag, cbasn1.SEQUENCE))
	require.True(t, safeContents.Empty(), "expected exactly one bag")

	return safeBag
}

func checkAttributes(t *testing.T, bag *cryptobyte.String) {
	t.Helper()

	var attrs struct {
		LocalKeyID struct {
			Id     asn1.ObjectIdentifier
			Values [][]byte `asn1:"set"`
		}
		FriendlyName struct {
			Id     asn1.ObjectIdentifier
			Values []string `asn1:"set"`
		}
	}

	var element cryptobyte.String
	require.True(t, bag.ReadASN1Element(&element, cbasn1.SET))
	require.True(t, bag.Empty())

	// the attribute SET is decoded like a SEQUENCE by swapping the tag
	set := append([]byte(nil), element...)
	set[0] = 0x30
	_, err := asn1.Unmarshal(set, &attrs)
	require.NoError(t, err)

	require.Equal(t, OIDLocalKeyID, attrs.LocalKeyID.Id.String())
	require.Equal(t, [][]byte{LocalKeyID}, attrs.LocalKeyID.Values)
	require.Equal(t, OIDFriendlyName, attrs.FriendlyName.Id.String())
	require.Equal(t, []string{FriendlyName}, attrs.FriendlyName.Values)
}

func TestPackageStructure(t *testing.T) {
	certificate, pfx := build(t, engine.ECDSA256SHA256)

	input := cryptobyte.String(pfx)
	var top, authSafe, oid, explicit, safes cryptobyte.String
	var version int
	var octets []byte

	require.True(t, input.ReadASN1(&top, cbasn1.SEQUENCE))
	require.True(t, input.Empty())
	require.True(t, top.ReadASN1Integer(&version))
	require.Equal(t, 3, version)
	require.True(t, top.ReadASN1(&authSafe, cbasn1.SEQUENCE))
	require.True(t, top.Empty(), "expected no MAC data")

	require.True(t, authSafe.ReadASN1(&oid, cbasn1.OBJECT_IDENTIFIER))
	require.True(t, authSafe.ReadASN1(&explicit, cbasn1.Tag(0).Constructed().ContextSpecific()))
	require.True(t, explicit.ReadASN1Bytes(&octets, cbasn1.OCTET_STRING))

	s := cryptobyte.String(octets)
	require.True(t, s.ReadASN1(&safes, cbasn1.SEQUENCE))

	t.Run("key bag", func(t *testing.T) {
		bag := readBag(t, &safes)

		var bagOID asn1.ObjectIdentifier
		var value cryptobyte.String
		require.True(t, bag.ReadASN1ObjectIdentifier(&bagOID))
		require.Equal(t, OIDKeyBag, bagOID.String())
		require.True(t, bag.ReadASN1(&value, cbasn1.Tag(0).Constructed().ContextSpecific()))

		_, err := x509.ParsePKCS8PrivateKey(value)
		require.NoError(t, err)

		checkAttributes(t, &bag)
	})

	t.Run("certificate bag", func(t *testing.T) {
		bag := readBag(t, &safes)

		var bagOID, certType asn1.ObjectIdentifier
		var value, inner, explicitCert cryptobyte.String
		var certBytes []byte
		require.True(t, bag.ReadASN1ObjectIdentifier(&bagOID))
		require.Equal(t, OIDCertBag, bagOID.String())
		require.True(t, bag.ReadASN1(&value, cbasn1.Tag(0).Constructed().ContextSpecific()))
		require.True(t, value.ReadASN1(&inner, cbasn1.SEQUENCE))
		require.True(t, inner.ReadASN1ObjectIdentifier(&certType))
		require.Equal(t, OIDX509Certificate, certType.String())
		require.True(t, inner.ReadASN1(&explicitCert, cbasn1.Tag(0).Constructed().ContextSpecific()))
		require.True(t, explicitCert.ReadASN1Bytes(&certBytes, cbasn1.OCTET_STRING))
		require.Equal(t, certificate, certBytes)

		checkAttributes(t, &bag)
	})

	require.True(t, safes.Empty(), "expected exactly two bags")
}
