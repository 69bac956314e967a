package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/facegate/internal/features"
)

// ErrInvalidProfile is returned by stores when a profile cannot be stored.
var ErrInvalidProfile = errors.New("invalid face profile")

// FaceProfile is the enrolled feature bundle of one identity.
// Profiles are replaced whole on re-enrolment and never mutated in place;
// callers must not modify the bundle vectors of a profile they received.
type FaceProfile struct {
	Identity        string
	Bundle          features.Bundle
	EnrolledAt      time.Time
	SourceReference string // opaque to the engine, e.g. the originating file
}

// Validate checks that the profile can be stored.
func (p FaceProfile) Validate() error {
	if strings.TrimSpace(p.Identity) == "" {
		return fmt.Errorf("%w: empty identity", ErrInvalidProfile)
	}
	if err := p.Bundle.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidProfile, p.Identity, err)
	}
	return nil
}

// Clone returns a deep copy of the profile.
func (p FaceProfile) Clone() FaceProfile {
	p.Bundle = p.Bundle.Clone()
	return p
}

// Snapshot is the on-disk form of a profile set.
type Snapshot struct {
	Version  int
	SavedAt  time.Time
	Profiles []FaceProfile
}

const currentSnapshotVersion = 1
