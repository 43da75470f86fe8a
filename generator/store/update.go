package store

import (
	"time"

	"github.com/wokdav/certgen/logging"
)

// UpdateStrategy is a set of reasons to replace an existing certificate.
type UpdateStrategy uint8

const (
	UpdateNone        UpdateStrategy = 0
	UpdateMissing     UpdateStrategy = 1
	UpdateExpired     UpdateStrategy = 2
	UpdateNewerConfig UpdateStrategy = 4
	UpdateAll         UpdateStrategy = 8
)

// NeedsUpdate decides whether a new certificate must be generated in place
// of a. configUpdate is the last change of the configuration the artifact
// was built from and may be zero.
func NeedsUpdate(a Artifact, strat UpdateStrategy, configUpdate time.Time, now time.Time) bool {
	if strat&UpdateAll > 0 {
		logging.Debugf("needs update. reason: generate-all is set")
		return true
	}

	if a.Certificate == nil {
		if strat&UpdateMissing > 0 {
			logging.Debugf("needs update. reason: certificate is missing")
			return true
		}
		return false
	}

	if strat&UpdateExpired > 0 && a.Certificate.NotAfter.Before(now) {
		logging.Debugf("needs update. reason: certificate expired at %v", a.Certificate.NotAfter)
		return true
	}

	if strat&UpdateNewerConfig > 0 && !a.ModTime.IsZero() && configUpdate.After(a.ModTime) {
		logging.Debugf("needs update. reason: config was updated")
		return true
	}

	return false
}
