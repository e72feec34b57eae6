package ports

import "github.com/hayride-dev/hayride-go/domain/entities"

// Artifact is an installed component located in the registry.
type Artifact struct {
	// Manifest is nil when no descriptor was installed alongside the binary.
	Manifest  *entities.Manifest
	Namespace string
	Name      string
	Version   string
	Path      string
}

// Ref returns the registry reference "namespace:name@version".
func (a Artifact) Ref() string {
	return a.Namespace + ":" + a.Name + "@" + a.Version
}

// ComponentStore persists installed components.
type ComponentStore interface {
	// Install copies a binary (and optional manifest) into the registry.
	Install(ref string, binary []byte, manifest *entities.Manifest) (Artifact, error)

	// Find resolves "namespace:name[@version]". Without a version the
	// highest installed semantic version is returned.
	Find(ref string) (Artifact, error)

	// Uninstall removes a version and any directories left empty.
	Uninstall(ref string) error

	// List returns every installed artifact, sorted by reference.
	List() ([]Artifact, error)
}

// ManifestParser parses raw bytes into a component Manifest.
type ManifestParser interface {
	Parse(data []byte) (*entities.Manifest, error)
}
