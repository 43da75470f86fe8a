// Package generator acts as the front-end for certificate generation and
// should always be the way external packages generate certificates.
//
// A [Generator] holds the settings for a single self-signed certificate.
// Everything left at its zero value is filled in with the defaults below
// before anything is generated:
//   - Issuer: a random 128 bit hex string
//   - Subject: the issuer
//   - Serial number: a random positive 63 bit number
//   - Validity: [DefaultValidYears] years, starting January 1st of the year
//     that contained the point in time seven days ago
package generator

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/wokdav/certgen/generator/cert"
	"github.com/wokdav/certgen/generator/config"
	"github.com/wokdav/certgen/generator/engine"
	"github.com/wokdav/certgen/generator/pkcs12"
	"github.com/wokdav/certgen/generator/store"
	"github.com/wokdav/certgen/logging"

	"github.com/google/uuid"
)

const DefaultValidYears = 10

// subtracted from now before the default start year is chosen
const defaultStartLead = 7 * 24 * time.Hour

type Generator struct {
	Mode         engine.Mode
	Issuer       string
	Subject      string
	SerialNumber int64
	NotBefore    time.Time
	NotAfter     time.Time
	ValidYears   int

	// Provider does the actual cryptography. nil means the software provider.
	Provider engine.Provider

	// DebugLog collects a line for every generation step.
	DebugLog []string

	now func() time.Time
}

// Result is a freshly generated certificate together with its unencrypted
// PFX container, or a certificate that was found on disk.
type Result struct {
	Certificate  []byte
	PFX          []byte
	Mode         engine.Mode
	SerialNumber int64
	Issuer       string
	Subject      string
	NotBefore    time.Time
	NotAfter     time.Time

	// Reused is set, if the certificate was read instead of generated. PFX
	// is empty in that case.
	Reused bool
}

func NewGenerator() *Generator {
	return &Generator{
		Mode:       engine.DefaultMode,
		ValidYears: DefaultValidYears,
	}
}

// FromConfig returns a generator for the supplied configuration.
func FromConfig(c *config.CertificateContent) *Generator {
	g := NewGenerator()
	g.Mode = c.Mode
	g.Issuer = c.Issuer
	g.Subject = c.Subject
	g.SerialNumber = c.SerialNumber
	g.NotBefore = c.ValidFrom
	g.NotAfter = c.ValidUntil
	if c.ValidYears > 0 {
		g.ValidYears = c.ValidYears
	}

	return g
}

func (g *Generator) logf(format string, v ...any) {
	line := fmt.Sprintf(format, v...)
	g.DebugLog = append(g.DebugLog, line)
	logging.Debug(line)
}

func (g *Generator) clock() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

func randomIssuer() string {
	id := uuid.New()
	return strings.ReplaceAll(id.String(), "-", "")
}

func randomSerial() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return 0, fmt.Errorf("generator: can't draw serial number: %w", err)
	}

	// [1, MaxInt64]
	return n.Int64() + 1, nil
}

// params resolves every default and returns the certificate parameters.
func (g *Generator) params() (cert.Params, error) {
	years := g.ValidYears
	if years == 0 {
		years = DefaultValidYears
	}
	if years < 0 {
		return cert.Params{}, &engine.ConfigError{Parameter: "validity", Value: years, Reason: "must be a positive number of years"}
	}

	p := cert.Params{
		SerialNumber: g.SerialNumber,
		Issuer:       g.Issuer,
		Subject:      g.Subject,
		NotBefore:    g.NotBefore.UTC(),
		NotAfter:     g.NotAfter.UTC(),
	}

	if len(p.Issuer) == 0 {
		p.Issuer = randomIssuer()
		g.logf("No issuer given, using '%s'", p.Issuer)
	}
	if len(p.Subject) == 0 {
		p.Subject = p.Issuer
	}

	if p.SerialNumber == 0 {
		var err error
		p.SerialNumber, err = randomSerial()
		if err != nil {
			return cert.Params{}, err
		}
	}

	switch {
	case g.NotBefore.IsZero() && g.NotAfter.IsZero():
		lead := g.clock().UTC().Add(-defaultStartLead)
		p.NotBefore = time.Date(lead.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		p.NotAfter = p.NotBefore.AddDate(years, 0, 0)
	case g.NotBefore.IsZero():
		p.NotBefore = p.NotAfter.AddDate(-years, 0, 0)
	case g.NotAfter.IsZero():
		p.NotAfter = p.NotBefore.AddDate(years, 0, 0)
	}

	return p, p.Validate()
}

// Generate creates a new key pair, a self-signed certificate and an
// unencrypted PFX. The key pair does not outlive this call. DebugLog only
// holds the lines of the latest call.
func (g *Generator) Generate() (*Result, error) {
	g.DebugLog = nil
	return g.generate()
}

func (g *Generator) generate() (*Result, error) {
	g.logf("Certificate Generation Log")

	p, err := g.params()
	if err != nil {
		g.logf("Invalid parameters: %v", err)
		return nil, err
	}

	provider := g.Provider
	if provider == nil {
		provider = engine.NewSoftwareProvider()
	}

	e, err := engine.New(g.Mode, provider)
	if err != nil {
		g.logf("Invalid signing mode: %v", err)
		return nil, err
	}
	defer e.Close()

	g.logf("Signing mode: %v", g.Mode)
	g.logf("Serial number: %d", p.SerialNumber)
	g.logf("Issuer: %s", p.Issuer)
	g.logf("Subject: %s", p.Subject)
	g.logf("Valid from %v until %v", p.NotBefore, p.NotAfter)

	start := g.clock()
	if err := e.Generate(); err != nil {
		g.logf("Key generation failed: %v", err)
		return nil, fmt.Errorf("generator: %w", err)
	}
	g.logf("Generated key pair in %v", g.clock().Sub(start))

	certificate, err := cert.Build(e, p)
	if err != nil {
		g.logf("Certificate assembly failed: %v", err)
		return nil, fmt.Errorf("generator: %w", err)
	}
	g.logf("Signed certificate with %s (%d bytes)", e.SignatureOID(), len(certificate))

	pfx, err := pkcs12.Package(e, certificate)
	if err != nil {
		g.logf("Packaging failed: %v", err)
		return nil, fmt.Errorf("generator: %w", err)
	}
	g.logf("Packaged PFX (%d bytes)", len(pfx))

	return &Result{
		Certificate:  certificate,
		PFX:          pfx,
		Mode:         g.Mode,
		SerialNumber: p.SerialNumber,
		Issuer:       p.Issuer,
		Subject:      p.Subject,
		NotBefore:    p.NotBefore,
		NotAfter:     p.NotAfter,
	}, nil
}

// Options controls where [Generator.GenerateCertificate] puts its output
// and when an existing certificate is replaced.
type Options struct {
	// Certificate is the DER certificate file. It is required, since it
	// decides whether a new certificate is needed.
	Certificate string
	Pem         string
	Pfx         string
	Password    string

	Strategy store.UpdateStrategy

	// ConfigUpdate is the modification time of the configuration, used by
	// [store.UpdateNewerConfig].
	ConfigUpdate time.Time
}

func (o Options) validate() error {
	if len(o.Certificate) == 0 {
		return errors.New("generator: no certificate file given")
	}
	if len(o.Pfx) > 0 && len(o.Password) == 0 {
		return errors.New("generator: a pfx file needs a password")
	}

	return nil
}

// modeOf finds the signing mode an existing certificate was made with.
// Unrecognized certificates yield [engine.ModeUnknown].
func modeOf(c *x509.Certificate) (engine.Mode, bool) {
	var variant engine.Variant
	var keySize, hashBits int

	switch pub := c.PublicKey.(type) {
	case *rsa.PublicKey:
		variant = engine.VariantRSA
		keySize = pub.N.BitLen()
	case *ecdsa.PublicKey:
		variant = engine.VariantECDSA
	default:
		return engine.ModeUnknown, false
	}

	switch c.SignatureAlgorithm {
	case x509.SHA1WithRSA:
		hashBits = 160
	case x509.SHA256WithRSA, x509.ECDSAWithSHA256:
		hashBits = 256
	case x509.SHA384WithRSA, x509.ECDSAWithSHA384:
		hashBits = 384
	case x509.SHA512WithRSA, x509.ECDSAWithSHA512:
		hashBits = 512
	default:
		return engine.ModeUnknown, false
	}

	for _, m := range engine.Modes() {
		p, _ := engine.Resolve(m)
		if p.Variant != variant || p.HashBits != hashBits {
			continue
		}
		if variant == engine.VariantECDSA || p.KeySize == keySize {
			return m, true
		}
	}

	return engine.ModeUnknown, false
}

// namesMatch reports whether c carries the names this generator was asked
// for. Names left empty match anything.
func (g *Generator) namesMatch(c *x509.Certificate) bool {
	if len(g.Issuer) > 0 && c.Issuer.CommonName != g.Issuer {
		return false
	}

	subject := g.Subject
	if len(subject) == 0 {
		subject = g.Issuer
	}

	return len(subject) == 0 || c.Subject.CommonName == subject
}

func reuse(a store.Artifact) *Result {
	c := a.Certificate
	mode, ok := modeOf(c)
	if !ok {
		logging.Warningf("can't tell the signing mode of the existing certificate '%s'", c.Subject.CommonName)
	}

	return &Result{
		Certificate:  a.Raw,
		Mode:         mode,
		SerialNumber: c.SerialNumber.Int64(),
		Issuer:       c.Issuer.CommonName,
		Subject:      c.Subject.CommonName,
		NotBefore:    c.NotBefore,
		NotAfter:     c.NotAfter,
		Reused:       true,
	}
}

// GenerateCertificate returns the certificate in opts.Certificate, if there
// is one and opts.Strategy does not demand a new one. Otherwise a new
// certificate is generated and written to fsys, together with the optional
// PEM copy and the password protected PFX.
func (g *Generator) GenerateCertificate(fsys store.Filesystem, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	g.DebugLog = nil

	existing, err := store.ReadCertificate(fsys, opts.Certificate)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}

	update := store.NeedsUpdate(existing, opts.Strategy, opts.ConfigUpdate, g.clock())
	if !update && existing.Certificate != nil && !g.namesMatch(existing.Certificate) {
		c := existing.Certificate
		if opts.Strategy == store.UpdateNone {
			logging.Warningf("keeping '%s' (issuer '%s', subject '%s') although other names were requested",
				opts.Certificate, c.Issuer.CommonName, c.Subject.CommonName)
		} else {
			g.logf("Existing certificate '%s' has issuer '%s' and subject '%s', generating a new one",
				opts.Certificate, c.Issuer.CommonName, c.Subject.CommonName)
			update = true
		}
	}

	if !update {
		if existing.Certificate == nil {
			return nil, fmt.Errorf("generator: no certificate at '%s' and update strategy forbids generating one", opts.Certificate)
		}
		g.logf("Reusing certificate '%s'", opts.Certificate)
		return reuse(existing), nil
	}

	res, err := g.generate()
	if err != nil {
		return nil, err
	}

	// the certificate goes last. its presence marks a complete set of files.
	if len(opts.Pfx) > 0 {
		protected, err := pkcs12.Export(res.PFX, opts.Password)
		if err != nil {
			return nil, fmt.Errorf("generator: %w", err)
		}
		if err := store.WriteFile(fsys, opts.Pfx, protected); err != nil {
			return nil, err
		}
	}

	if len(opts.Pem) > 0 {
		var buf bytes.Buffer
		if err := cert.WritePem(&buf, res.Certificate); err != nil {
			return nil, fmt.Errorf("generator: %w", err)
		}
		if err := store.WriteFile(fsys, opts.Pem, buf.Bytes()); err != nil {
			return nil, err
		}
	}

	if err := store.WriteFile(fsys, opts.Certificate, res.Certificate); err != nil {
		return nil, err
	}

	logging.Infof("generated certificate '%s' (serial %d, %v)", res.Subject, res.SerialNumber, res.Mode)
	return res, nil
}
