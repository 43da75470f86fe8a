// Implements version 1 of the configuration parser.
//
// Apart from the version everything is optional. Missing values are left
// at their zero value, so the generator applies its own defaults:
// - Default mode: ECDSA_256_SHA256
// - Default validity: 10 years, starting January 1st of the current year.
package v1

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/wokdav/certgen/generator/config"
	"github.com/wokdav/certgen/generator/engine"

	"github.com/ghodss/yaml"
)

func init() {
	config.AddConfigurator(1, V1Configurator{})
}

const dateForm = "2006-01-02"

// Struct for YAML/JSON marshaling.
type CertValidity struct {
	From  string `json:"from"`
	Until string `json:"until"`
	Years int    `json:"years"`
}

// Struct for YAML/JSON marshaling.
type CertOutput struct {
	Certificate string `json:"certificate"`
	Pem         string `json:"pem"`
	Pfx         string `json:"pfx"`
	Password    string `json:"password"`
}

// Struct for YAML/JSON marshaling.
type CertConfig struct {
	Version      int          `json:"version"`
	Mode         string       `json:"mode"`
	Issuer       string       `json:"issuer"`
	Subject      string       `json:"subject"`
	SerialNumber int64        `json:"serialNumber"`
	Validity     CertValidity `json:"validity"`
	Output       CertOutput   `json:"output"`
}

// The implementor of [config.Configurator] for version 1.
type V1Configurator struct{}

// Implements ParseConfiguration from [config.Configurator].
// It validates the provided string against the schema and converts it into
// the general configuration object.
func (v V1Configurator) ParseConfiguration(s string) (*config.CertificateContent, error) {
	js, err := yaml.YAMLToJSON([]byte(s))
	if err != nil {
		return nil, err
	}

	err = certificateSchema.Validate(bytes.NewBuffer(js))
	if err != nil {
		return nil, err
	}

	certCfg := CertConfig{}
	err = yaml.Unmarshal(js, &certCfg)
	if err != nil {
		return nil, err
	}

	return initCertificate(certCfg)
}

func parseDate(s string, name string) (time.Time, error) {
	if len(s) == 0 {
		return time.Time{}, nil
	}

	t, err := time.ParseInLocation(dateForm, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf(`config-v1: "%s" date is not conforming to YYYY-MM-DD`, name)
	}

	return t, nil
}

func (cv CertValidity) apply(out *config.CertificateContent) error {
	var err error

	out.ValidFrom, err = parseDate(cv.From, "from")
	if err != nil {
		return err
	}

	out.ValidUntil, err = parseDate(cv.Until, "until")
	if err != nil {
		return err
	}

	if !out.ValidFrom.IsZero() && !out.ValidUntil.IsZero() {
		if cv.Years != 0 {
			return errors.New(`config-v1: "from", "until" and "years" were all specified, instead of at most two`)
		}
		if !out.ValidUntil.After(out.ValidFrom) {
			return errors.New(`config-v1: "until" must be after "from"`)
		}
	}

	out.ValidYears = cv.Years
	return nil
}

func initCertificate(c CertConfig) (*config.CertificateContent, error) {
	out := config.CertificateContent{
		Mode:         engine.DefaultMode,
		Issuer:       c.Issuer,
		Subject:      c.Subject,
		SerialNumber: c.SerialNumber,
	}

	var err error
	if len(c.Mode) > 0 {
		out.Mode, err = engine.ParseMode(c.Mode)
		if err != nil {
			return nil, fmt.Errorf("config-v1: %w", err)
		}
	}

	if err = c.Validity.apply(&out); err != nil {
		return nil, err
	}

	out.Output = config.Output{
		Certificate: c.Output.Certificate,
		Pem:         c.Output.Pem,
		Pfx:         c.Output.Pfx,
	}

	out.Output.Password, err = config.ResolveSecret(c.Output.Password)
	if err != nil {
		return nil, fmt.Errorf("config-v1: can't resolve pfx password: %w", err)
	}

	return &out, nil
}

func (v V1Configurator) CertificateExample() string {
	return certificateExample
}
