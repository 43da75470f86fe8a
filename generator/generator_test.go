package generator

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io/fs"
	"math/big"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/wokdav/certgen/generator/cert"
	"github.com/wokdav/certgen/generator/config"
	"github.com/wokdav/certgen/generator/engine"
	"github.com/wokdav/certgen/generator/store"

	_ "github.com/wokdav/certgen/generator/config/v1"

	"github.com/stretchr/testify/require"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestDefaults(t *testing.T) {
	g := NewGenerator()
	g.now = fixedClock(time.Date(2025, time.January, 3, 12, 0, 0, 0, time.UTC))

	res, err := g.Generate()
	require.NoError(t, err)

	require.Equal(t, engine.DefaultMode, res.Mode)
	require.Regexp(t, regexp.MustCompile("^[0-9a-f]{32}$"), res.Issuer)
	require.Equal(t, res.Issuer, res.Subject)
	require.Greater(t, res.SerialNumber, int64(0))

	// seven days before the 3rd of january is still in 2024
	require.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), res.NotBefore)
	require.Equal(t, time.Date(2034, time.January, 1, 0, 0, 0, 0, time.UTC), res.NotAfter)

	c, err := x509.ParseCertificate(res.Certificate)
	require.NoError(t, err)
	require.Equal(t, res.Issuer, c.Issuer.CommonName)
	require.Equal(t, res.SerialNumber, c.SerialNumber.Int64())
	require.NoError(t, c.CheckSignature(c.SignatureAlgorithm, c.RawTBSCertificate, c.Signature))

	require.NotEmpty(t, g.DebugLog)
	require.Equal(t, "Certificate Generation Log", g.DebugLog[0])
}

func TestDefaultStartYear(t *testing.T) {
	g := NewGenerator()
	g.now = fixedClock(time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC))

	p, err := g.params()
	require.NoError(t, err)
	require.Equal(t, 2025, p.NotBefore.Year())
}

func TestDerivedDates(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2030, time.March, 1, 0, 0, 0, 0, time.UTC)

	t.Run("start only", func(t *testing.T) {
		g := NewGenerator()
		g.NotBefore = start
		g.ValidYears = 3

		p, err := g.params()
		require.NoError(t, err)
		require.Equal(t, start, p.NotBefore)
		require.Equal(t, start.AddDate(3, 0, 0), p.NotAfter)
	})

	t.Run("end only", func(t *testing.T) {
		g := NewGenerator()
		g.NotAfter = end

		p, err := g.params()
		require.NoError(t, err)
		require.Equal(t, end.AddDate(-DefaultValidYears, 0, 0), p.NotBefore)
		require.Equal(t, end, p.NotAfter)
	})

	t.Run("both", func(t *testing.T) {
		g := NewGenerator()
		g.NotBefore = start
		g.NotAfter = end
		g.ValidYears = 1

		p, err := g.params()
		require.NoError(t, err)
		require.Equal(t, start, p.NotBefore)
		require.Equal(t, end, p.NotAfter)
	})
}

func TestInvalidParameters(t *testing.T) {
	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	tests := map[string]func(g *Generator){
		"negative serial": func(g *Generator) { g.SerialNumber = -1 },
		"reversed dates": func(g *Generator) {
			g.NotBefore = start
			g.NotAfter = start.AddDate(-1, 0, 0)
		},
		"equal dates": func(g *Generator) {
			g.NotBefore = start
			g.NotAfter = start
		},
		"negative years": func(g *Generator) { g.ValidYears = -2 },
		"unknown mode":   func(g *Generator) { g.Mode = engine.MODE_LEN },
	}

	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			g := NewGenerator()
			modify(g)

			res, err := g.Generate()
			require.Nil(t, res)

			var cfgErr *engine.ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}

type failingProvider struct {
	*engine.SoftwareProvider
}

var errNoEntropy = errors.New("no entropy")

func (p failingProvider) GenerateECDSA(curve elliptic.Curve) (*ecdsa.PrivateKey, error) {
	return nil, errNoEntropy
}

func TestProviderFailure(t *testing.T) {
	g := NewGenerator()
	g.Provider = failingProvider{engine.NewSoftwareProvider()}

	_, err := g.Generate()
	require.ErrorIs(t, err, errNoEntropy)
	require.Contains(t, g.DebugLog[len(g.DebugLog)-1], "Key generation failed")
}

func TestGeneratePfx(t *testing.T) {
	g := NewGenerator()
	g.Mode = engine.RSA2048SHA256
	g.Issuer = "MyService"
	g.SerialNumber = 4711

	res, err := g.Generate()
	require.NoError(t, err)

	key, c, _, err := gopkcs12.DecodeChain(res.PFX, "")
	require.NoError(t, err)
	require.Equal(t, res.Certificate, c.Raw)
	require.Equal(t, "MyService", c.Subject.CommonName)
	require.Equal(t, x509.SHA256WithRSA, c.SignatureAlgorithm)

	signer, ok := key.(crypto.Signer)
	require.True(t, ok)
	pub, ok := c.PublicKey.(*rsa.PublicKey)
	require.True(t, ok)
	require.True(t, pub.Equal(signer.Public()))
}

func TestFromConfig(t *testing.T) {
	cfg, err := config.ParseConfig(strings.NewReader(`
version: 1
mode: ECDSA_384_SHA384
issuer: Config Issuer
subject: Config Subject
serialNumber: 99
validity:
  until: 2040-06-01
  years: 5
`))
	require.NoError(t, err)

	g := FromConfig(cfg)
	res, err := g.Generate()
	require.NoError(t, err)

	require.Equal(t, engine.ECDSA384SHA384, res.Mode)
	require.Equal(t, "Config Issuer", res.Issuer)
	require.Equal(t, "Config Subject", res.Subject)
	require.Equal(t, int64(99), res.SerialNumber)
	require.Equal(t, time.Date(2035, time.June, 1, 0, 0, 0, 0, time.UTC), res.NotBefore)
	require.Equal(t, time.Date(2040, time.June, 1, 0, 0, 0, 0, time.UTC), res.NotAfter)
}

func TestModeOf(t *testing.T) {
	for _, m := range []engine.Mode{engine.RSA1024SHA1, engine.RSA2048SHA256, engine.ECDSA256SHA256, engine.ECDSA384SHA384, engine.ECDSA521SHA512} {
		t.Run(m.String(), func(t *testing.T) {
			g := NewGenerator()
			g.Mode = m

			res, err := g.Generate()
			require.NoError(t, err)

			c, err := x509.ParseCertificate(res.Certificate)
			require.NoError(t, err)

			got, ok := modeOf(c)
			require.True(t, ok)
			require.Equal(t, m, got)
		})
	}
}

func TestGenerateCertificate(t *testing.T) {
	fsys := store.NewMapFs(nil)
	opts := Options{
		Certificate: "svc.cer",
		Pem:         "svc.pem",
		Pfx:         "svc.pfx",
		Password:    "hunter2",
		Strategy:    store.UpdateMissing | store.UpdateExpired,
	}

	g := NewGenerator()
	g.Issuer = "svc"

	first, err := g.GenerateCertificate(fsys, opts)
	require.NoError(t, err)
	require.False(t, first.Reused)

	derBytes, err := fs.ReadFile(fsys.FS(), "svc.cer")
	require.NoError(t, err)
	require.Equal(t, first.Certificate, derBytes)

	pemBytes, err := fs.ReadFile(fsys.FS(), "svc.pem")
	require.NoError(t, err)
	fromPem, err := cert.ReadCertificate(pemBytes)
	require.NoError(t, err)
	require.Equal(t, derBytes, fromPem)

	pfx, err := fs.ReadFile(fsys.FS(), "svc.pfx")
	require.NoError(t, err)
	_, c, _, err := gopkcs12.DecodeChain(pfx, "hunter2")
	require.NoError(t, err)
	require.Equal(t, derBytes, c.Raw)
	_, _, _, err = gopkcs12.DecodeChain(pfx, "wrong")
	require.ErrorIs(t, err, gopkcs12.ErrIncorrectPassword)

	t.Run("reuse", func(t *testing.T) {
		second, err := NewGenerator().GenerateCertificate(fsys, opts)
		require.NoError(t, err)
		require.True(t, second.Reused)
		require.Equal(t, first.SerialNumber, second.SerialNumber)
		require.Equal(t, engine.DefaultMode, second.Mode)
		require.Equal(t, "svc", second.Subject)
	})

	t.Run("generate all", func(t *testing.T) {
		o := opts
		o.Strategy = store.UpdateAll

		third, err := NewGenerator().GenerateCertificate(fsys, o)
		require.NoError(t, err)
		require.False(t, third.Reused)

		onDisk, err := fs.ReadFile(fsys.FS(), "svc.cer")
		require.NoError(t, err)
		require.Equal(t, third.Certificate, onDisk)
	})
}

func TestGenerateCertificateExpired(t *testing.T) {
	fsys := store.NewMapFs(nil)
	opts := Options{Certificate: "old.cer", Strategy: store.UpdateMissing}

	g := NewGenerator()
	g.NotBefore = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
	g.ValidYears = 1

	old, err := g.GenerateCertificate(fsys, opts)
	require.NoError(t, err)

	kept, err := NewGenerator().GenerateCertificate(fsys, opts)
	require.NoError(t, err)
	require.True(t, kept.Reused)
	require.Equal(t, old.SerialNumber, kept.SerialNumber)

	opts.Strategy |= store.UpdateExpired
	renewed, err := NewGenerator().GenerateCertificate(fsys, opts)
	require.NoError(t, err)
	require.False(t, renewed.Reused)
	require.True(t, renewed.NotAfter.After(time.Now()))
}

func TestGenerateCertificateOptions(t *testing.T) {
	fsys := store.NewMapFs(nil)

	_, err := NewGenerator().GenerateCertificate(fsys, Options{Strategy: store.UpdateMissing})
	require.Error(t, err)

	_, err = NewGenerator().GenerateCertificate(fsys, Options{Certificate: "a.cer", Pfx: "a.pfx", Strategy: store.UpdateMissing})
	require.Error(t, err)

	_, err = NewGenerator().GenerateCertificate(fsys, Options{Certificate: "a.cer", Strategy: store.UpdateNone})
	require.Error(t, err)

	_, err = fs.Stat(fsys.FS(), "a.cer")
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestDebugLogPerRun(t *testing.T) {
	g := NewGenerator()

	_, err := g.Generate()
	require.NoError(t, err)
	first := len(g.DebugLog)

	_, err = g.Generate()
	require.NoError(t, err)
	require.Len(t, g.DebugLog, first)

	headers := 0
	for _, line := range g.DebugLog {
		if line == "Certificate Generation Log" {
			headers++
		}
	}
	require.Equal(t, 1, headers)
}

// a certificate made elsewhere with a key size none of the modes uses
func foreignCertificate(t *testing.T, cn string) []byte {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 1536)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:       big.NewInt(1234),
		Subject:            pkix.Name{CommonName: cn},
		NotBefore:          time.Now().Add(-time.Hour),
		NotAfter:           time.Now().AddDate(1, 0, 0),
		SignatureAlgorithm: x509.SHA256WithRSA,
	}

	b, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return b
}

func TestReuseUnknownMode(t *testing.T) {
	fsys := store.NewMapFs(fstest.MapFS{
		"legacy.cer": &fstest.MapFile{Data: foreignCertificate(t, "legacy")},
	})

	g := NewGenerator()
	g.Issuer = "legacy"

	res, err := g.GenerateCertificate(fsys, Options{
		Certificate: "legacy.cer",
		Strategy:    store.UpdateMissing | store.UpdateExpired,
	})
	require.NoError(t, err)
	require.True(t, res.Reused)
	require.Equal(t, engine.ModeUnknown, res.Mode)
	require.Equal(t, "UNKNOWN", res.Mode.String())
	require.Equal(t, int64(1234), res.SerialNumber)
}

func TestNameMismatch(t *testing.T) {
	fsys := store.NewMapFs(nil)
	opts := Options{Certificate: "svc.cer", Strategy: store.UpdateMissing | store.UpdateExpired}

	a := NewGenerator()
	a.Issuer = "A"
	_, err := a.GenerateCertificate(fsys, opts)
	require.NoError(t, err)

	t.Run("same names", func(t *testing.T) {
		g := NewGenerator()
		g.Issuer = "A"
		g.Subject = "A"

		res, err := g.GenerateCertificate(fsys, opts)
		require.NoError(t, err)
		require.True(t, res.Reused)
	})

	t.Run("other issuer", func(t *testing.T) {
		g := NewGenerator()
		g.Issuer = "B"

		res, err := g.GenerateCertificate(fsys, opts)
		require.NoError(t, err)
		require.False(t, res.Reused)
		require.Equal(t, "B", res.Issuer)
		require.Equal(t, "B", res.Subject)
	})

	t.Run("other subject", func(t *testing.T) {
		g := NewGenerator()
		g.Issuer = "B"
		g.Subject = "C"

		res, err := g.GenerateCertificate(fsys, opts)
		require.NoError(t, err)
		require.False(t, res.Reused)
		require.Equal(t, "C", res.Subject)
	})

	t.Run("no update allowed", func(t *testing.T) {
		g := NewGenerator()
		g.Issuer = "D"

		o := opts
		o.Strategy = store.UpdateNone
		res, err := g.GenerateCertificate(fsys, o)
		require.NoError(t, err)
		require.True(t, res.Reused)
		require.Equal(t, "C", res.Subject)
	})
}
