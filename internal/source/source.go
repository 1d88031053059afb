// Package source defines playable sources and the resolver contract
// that maps asset identifiers to them.
package source

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an asset identifier cannot be resolved
// to any playable source. Callers treat this as non-fatal.
var ErrNotFound = errors.New("source: asset not found")

// Kind distinguishes what an asset is used for. Resolvers may keep
// separate registries per kind (an ambience id and a bell id can
// collide without referring to the same sound).
type Kind int

const (
	Ambience Kind = iota
	Bell
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Ambience:
		return "ambience"
	case Bell:
		return "bell"
	default:
		return "unknown"
	}
}

// Source is a resolved playable source. Exactly one of LocalFile,
// RemoteStream or Bundled. A Source is resolved once per play request
// and is immutable for the life of a sound instance.
type Source interface {
	// URI returns the source as a URI string, suitable for handing to
	// the native bridge or for logging.
	URI() string

	isSource()
}

// LocalFile is a sound on the local filesystem (typically the asset
// cache).
type LocalFile struct {
	Path string
}

func (s LocalFile) URI() string { return "file://" + s.Path }
func (LocalFile) isSource()     {}

// RemoteStream is a sound fetched over HTTP(S).
type RemoteStream struct {
	URL string
}

func (s RemoteStream) URI() string { return s.URL }
func (RemoteStream) isSource()     {}

// Bundled is a sound shipped with the application, addressed by key
// into the bundled asset filesystem.
type Bundled struct {
	Key string
}

func (s Bundled) URI() string { return "bundled://" + s.Key }
func (Bundled) isSource()     {}

// Resolver maps an asset identifier to a playable source.
type Resolver interface {
	Resolve(assetID string, kind Kind) (Source, error)
}

// Static is a fixed in-memory resolver, used in tests and as a
// fallback when no catalog is configured.
type Static struct {
	Entries map[Kind]map[string]Source
}

var _ Resolver = (*Static)(nil)

// NewStatic creates an empty static resolver.
func NewStatic() *Static {
	return &Static{Entries: map[Kind]map[string]Source{}}
}

// Add registers a source under the given id and kind.
func (r *Static) Add(kind Kind, assetID string, src Source) {
	m := r.Entries[kind]
	if m == nil {
		m = map[string]Source{}
		r.Entries[kind] = m
	}
	m[assetID] = src
}

// Resolve implements Resolver.
func (r *Static) Resolve(assetID string, kind Kind) (Source, error) {
	if src, ok := r.Entries[kind][assetID]; ok {
		return src, nil
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, assetID, kind)
}
