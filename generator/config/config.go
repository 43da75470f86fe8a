// Package that provides certificate configurations.
// It supports configuration versioning, having each implementation
// register themselves in this package.
// External parties should only use this package to for configuring
// and ignore the underlying implementations. Also this package
// must not import packages of it's implementations to avoid circular
// imports.
//
// This package assumes that each underlying implementation will be
// in YAML or JSON, with the topmost element being a map containg a
// property named 'version' that is set to an integer. All other
// details are set by the underlying implementation.
// This allows this package to decide automatically, which version
// applies to a config file, so the external party does not need to
// pre-parse config files.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/wokdav/certgen/generator/engine"

	"github.com/ghodss/yaml"
)

var configurators map[int]Configurator = make(map[int]Configurator, 1)

// Configuration implementations register themselves using this function.
// It is recommended to keep verion > 0 to avoid bugs regarding to uninitialized
// version numbers.
func AddConfigurator(version int, c Configurator) {
	configurators[version] = c
}

// Get configurator for the supplied version.
// Returns an error, if this version does not exist (yet).
func GetConfigurator(version int) (Configurator, error) {
	c, ok := configurators[version]
	if !ok {
		return nil, fmt.Errorf("config: unknown version: %d", version)
	}

	return c, nil
}

// This is the minimum requirement for config implementations.
// A test-marshal into this is done to determine the underlying config implementation.
type configProxy struct {
	Version int
}

// The main parsing function for configurations. This is the intended way to parse a
// config.
// It attempts to read the version integer from the config and then decide which version to
// use based on that.
// It throws an error, if the provided stream does not conform to the assumptions this package
// makes (see package documentation), or if the version does not exist (yet).
func ParseConfig(r io.Reader) (*CertificateContent, error) {
	sb := new(strings.Builder)
	w, err := io.Copy(sb, r)
	if err != nil {
		return nil, fmt.Errorf("config: error reading certificate config buffer after %d bytes: %v", w, err)
	}
	cfgstr := sb.String()

	var proxy configProxy
	err = yaml.Unmarshal([]byte(cfgstr), &proxy)
	if err != nil {
		return nil, errors.New("config: top level must be a map containg a key called 'version' that contains an integer")
	}

	configurator, prs := configurators[proxy.Version]
	if !prs {
		return nil, fmt.Errorf("config: unknown version: %d", proxy.Version)
	}

	return configurator.ParseConfiguration(cfgstr)
}

// The interface each configuration version must implement.
type Configurator interface {
	ParseConfiguration(s string) (*CertificateContent, error)
	CertificateExample() string
}

// Where the generated artifacts go. Empty names are not written.
type Output struct {
	Certificate string
	Pem         string
	Pfx         string
	Password    string
}

// The general representation of a certificate configuration.
// Zero values mean "use the generator's default".
type CertificateContent struct {
	Mode         engine.Mode
	Issuer       string
	Subject      string
	SerialNumber int64
	ValidFrom    time.Time
	ValidUntil   time.Time
	ValidYears   int
	Output       Output
}

const envPrefix = "env:"

// ResolveSecret returns s unchanged, unless it has the form env:VAR, in
// which case the value of the environment variable VAR is returned. An
// unset variable is an error.
func ResolveSecret(s string) (string, error) {
	name, ok := strings.CutPrefix(s, envPrefix)
	if !ok {
		return s, nil
	}

	if len(name) == 0 {
		return "", errors.New("config: missing variable name after 'env:'")
	}

	v, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("config: environment variable '%s' is not set", name)
	}

	return v, nil
}
