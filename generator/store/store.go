// Package store persists generated certificates and decides whether an
// existing one can be reused.
//
// All file access goes through [Filesystem], so the generator can run
// against the native file system as well as against an in-memory one in
// tests.
package store

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing/fstest"
	"time"

	"github.com/wokdav/certgen/generator/cert"
	"github.com/wokdav/certgen/logging"
)

const writePermissions fs.FileMode = 0644

// Wrappers for fs.FS with some write functionality.
// If go adds this feature to fs.Fs, we can remove this code.
// It is also a superset of the fs.StatFs interface.
type Filesystem interface {
	FS() fs.FS
	WriteFile(name string, content []byte) error
	Stat(name string) (os.FileInfo, error)
}

type mapfs struct {
	fsobj fs.FS
	m     map[string]*fstest.MapFile
}

func (m mapfs) FS() fs.FS {
	return m.fsobj
}

func (m mapfs) Stat(name string) (os.FileInfo, error) {
	return fstest.MapFS(m.m).Stat(name)
}

func (m mapfs) WriteFile(name string, content []byte) error {
	m.m[name] = &fstest.MapFile{
		Data:    content,
		Mode:    writePermissions,
		ModTime: time.Now(),
	}
	return nil
}

// Generates a new [store.Filesystem] based on [fstest.MapFS]. It always adds a working directory "."
func NewMapFs(m fstest.MapFS) Filesystem {
	switch m {
	case nil:
		f := fstest.MapFS{".": &fstest.MapFile{Mode: 0777 | fs.ModeDir}}
		return mapfs{m: f, fsobj: f}
	default:
		return mapfs{m: m, fsobj: m}
	}
}

type nativefs struct {
	basepath string
	fsObj    fs.FS
}

func (n nativefs) FS() fs.FS {
	return n.fsObj
}

func (n nativefs) Stat(name string) (os.FileInfo, error) {
	return os.Stat(filepath.Join(n.basepath, name))
}

func (n nativefs) WriteFile(name string, content []byte) error {
	if filepath.IsAbs(name) {
		return fmt.Errorf("store: '%s' is an absolute path, rather than a part relative to the provided basename", name)
	}
	return os.WriteFile(filepath.Join(n.basepath, name), content, writePermissions)
}

// Generates a new [store.Filesystem] based on [os.DirFS], plus some write
// functionality taken from the [os] package.
func NewNativeFs(path string) Filesystem {
	return nativefs{basepath: path, fsObj: os.DirFS(path)}
}

// Artifact describes a previously written certificate.
type Artifact struct {
	// Certificate is nil when the file is missing or unreadable.
	Certificate *x509.Certificate
	Raw         []byte
	ModTime     time.Time
}

// ReadCertificate loads a DER or PEM certificate. A missing file is not an
// error: the returned artifact simply has no certificate.
func ReadCertificate(fsys Filesystem, name string) (Artifact, error) {
	var out Artifact

	b, err := fs.ReadFile(fsys.FS(), name)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Debugf("no certificate found at '%s'", name)
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("store: can't read '%s': %w", name, err)
	}

	raw, err := cert.ReadCertificate(b)
	if err != nil {
		logging.Warningf("'%s' does not contain a certificate: %v", name, err)
		return out, nil
	}

	c, err := x509.ParseCertificate(raw)
	if err != nil {
		logging.Warningf("certificate in '%s' can't be parsed: %v", name, err)
		return out, nil
	}

	out.Certificate = c
	out.Raw = raw

	fi, err := fsys.Stat(name)
	if err != nil {
		logging.Warningf("could not get modtime for %v: %v", name, err)
	} else {
		out.ModTime = fi.ModTime()
	}

	return out, nil
}

// WriteFile writes content and logs what has been written.
func WriteFile(fsys Filesystem, name string, content []byte) error {
	if err := fsys.WriteFile(name, content); err != nil {
		return fmt.Errorf("store: can't write '%s': %w", name, err)
	}

	logging.Infof("wrote %d bytes to '%s'", len(content), name)
	return nil
}
