package database

import (
	"context"

	"github.com/kozaktomas/facegate/internal/features"
)

// ProfileReader provides read-only access to enrolled profiles.
type ProfileReader interface {
	// List returns every profile ordered by identity.
	List(ctx context.Context) ([]FaceProfile, error)
	// Get returns the profile for identity, or nil if it is not enrolled.
	Get(ctx context.Context, identity string) (*FaceProfile, error)
	// Count returns the number of enrolled profiles.
	Count(ctx context.Context) (int, error)
}

// ProfileStore holds one profile per identity. Writes are atomic: a
// concurrent List observes either the old or the new profile, never a mix.
type ProfileStore interface {
	ProfileReader

	// Put stores the profile, replacing any profile of the same identity.
	Put(ctx context.Context, p FaceProfile) error
	// Delete removes the profile and reports whether it existed.
	Delete(ctx context.Context, identity string) (bool, error)
}

// Shortlister is implemented by stores that can rank identities by
// signature distance themselves (for example with a vector index).
type Shortlister interface {
	// Nearest returns up to k identities whose signatures are closest to probe.
	Nearest(ctx context.Context, probe features.Bundle, k int) ([]string, error)
}
