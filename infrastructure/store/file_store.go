// Package store keeps installed components on disk.
//
// Layout: <root>/<namespace>/<name>/<version>/<name>.wasm, with an optional
// component.yaml manifest next to the binary.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"github.com/hayride-dev/hayride-go/infrastructure/parser"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Well-known file names inside a version directory.
const (
	ArtifactExt  = ".wasm"
	ManifestFile = "component.yaml"
)

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	parser   ports.ManifestParser
	logger   *slog.Logger
	dirPerm  os.FileMode
	filePerm os.FileMode
}

func defaultFileStoreConfig() fileStoreConfig {
	return fileStoreConfig{
		parser:   parser.NewYamlManifestParser(),
		logger:   slog.Default(),
		dirPerm:  0o755,
		filePerm: 0o644,
	}
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithParser sets the manifest parser.
func WithParser(p ports.ManifestParser) FileStoreOption {
	return func(c *fileStoreConfig) {
		if p != nil {
			c.parser = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FileStoreOption {
	return func(c *fileStoreConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFilePermissions sets the permissions of installed files. Default 0o644.
func WithFilePermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.filePerm = perm
	}
}

// WithDirPermissions sets the permissions of created directories. Default 0o755.
func WithDirPermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dirPerm = perm
	}
}

// FileStore is a ComponentStore rooted at one directory.
type FileStore struct {
	config fileStoreConfig
	root   string
}

var _ ports.ComponentStore = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string, opts ...FileStoreOption) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg, root: root}
}

// Root returns the registry directory.
func (s *FileStore) Root() string {
	return s.root
}

// Reference is a parsed "namespace:name[@version]".
type Reference struct {
	Namespace string
	Name      string
	Version   string
}

func (r Reference) String() string {
	if r.Version == "" {
		return r.Namespace + ":" + r.Name
	}
	return r.Namespace + ":" + r.Name + "@" + r.Version
}

// ParseReference parses "namespace:name[@version]". The version, when
// present, must be a semantic version.
func ParseReference(ref string) (Reference, error) {
	invalid := func(err error) error {
		return &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "reference", Err: fmt.Errorf("%q: %w", ref, err)}
	}
	ns, rest, ok := strings.Cut(strings.TrimSpace(ref), ":")
	if !ok {
		return Reference{}, invalid(errors.New("expected namespace:name[@version]"))
	}
	name, version, _ := strings.Cut(rest, "@")
	r := Reference{Namespace: ns, Name: name, Version: strings.TrimPrefix(version, "v")}
	for _, part := range []string{r.Namespace, r.Name} {
		if !validSegment(part) {
			return Reference{}, invalid(fmt.Errorf("invalid segment %q", part))
		}
	}
	if r.Version != "" && !semver.IsValid("v"+r.Version) {
		return Reference{}, invalid(fmt.Errorf("%q is not a semantic version", version))
	}
	return r, nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\:@`)
}

// Install copies binary (and manifest, when given) into the registry,
// replacing an existing install of the same version. ref must carry a
// version and agree with the manifest.
func (s *FileStore) Install(ref string, binary []byte, manifest *entities.Manifest) (ports.Artifact, error) {
	r, err := ParseReference(ref)
	if err != nil {
		return ports.Artifact{}, err
	}
	if r.Version == "" {
		return ports.Artifact{}, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "version", Err: fmt.Errorf("install %s: version required", ref)}
	}
	if len(binary) == 0 {
		return ports.Artifact{}, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "binary", Err: fmt.Errorf("install %s: empty binary", ref)}
	}
	if manifest != nil {
		if err := parser.Validate(manifest); err != nil {
			return ports.Artifact{}, err
		}
		if manifest.Namespace != r.Namespace || manifest.Name != r.Name || strings.TrimPrefix(manifest.Version, "v") != r.Version {
			return ports.Artifact{}, &domainerrors.ConfigError{
				Kind:  domainerrors.KindInvalid,
				Field: "manifest",
				Err:   fmt.Errorf("manifest describes %s, not %s", manifest.Ref(), r),
			}
		}
	}

	dir := s.versionDir(r)
	if err := os.MkdirAll(dir, s.config.dirPerm); err != nil {
		return ports.Artifact{}, fmt.Errorf("failed to create component directory: %w", err)
	}
	path := filepath.Join(dir, r.Name+ArtifactExt)
	if err := writeFileAtomic(path, binary, s.config.filePerm); err != nil {
		return ports.Artifact{}, fmt.Errorf("failed to write component: %w", err)
	}
	manifestPath := filepath.Join(dir, ManifestFile)
	if manifest != nil {
		data, err := yaml.Marshal(manifest)
		if err != nil {
			return ports.Artifact{}, fmt.Errorf("failed to marshal manifest: %w", err)
		}
		if err := writeFileAtomic(manifestPath, data, s.config.filePerm); err != nil {
			return ports.Artifact{}, fmt.Errorf("failed to write manifest: %w", err)
		}
	} else if err := os.Remove(manifestPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ports.Artifact{}, fmt.Errorf("failed to remove stale manifest: %w", err)
	}

	s.config.logger.Info("store: component installed", "ref", r.String(), "path", path)
	return ports.Artifact{Manifest: manifest, Namespace: r.Namespace, Name: r.Name, Version: r.Version, Path: path}, nil
}

// Find resolves a reference. Without a version the highest installed
// semantic version wins.
func (s *FileStore) Find(ref string) (ports.Artifact, error) {
	r, err := ParseReference(ref)
	if err != nil {
		return ports.Artifact{}, err
	}
	if r.Version == "" {
		versions, err := s.versions(r)
		if err != nil {
			return ports.Artifact{}, err
		}
		if len(versions) == 0 {
			return ports.Artifact{}, notFound(r)
		}
		r.Version = versions[len(versions)-1]
	}
	return s.load(r)
}

// Uninstall removes one installed version, or the latest when ref has none,
// then prunes the name and namespace directories if they are left empty.
func (s *FileStore) Uninstall(ref string) error {
	a, err := s.Find(ref)
	if err != nil {
		return err
	}
	r := Reference{Namespace: a.Namespace, Name: a.Name, Version: a.Version}
	if err := os.RemoveAll(s.versionDir(r)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", r, err)
	}
	for _, dir := range []string{filepath.Join(s.root, r.Namespace, r.Name), filepath.Join(s.root, r.Namespace)} {
		if !isEmptyDir(dir) {
			break
		}
		if err := os.Remove(dir); err != nil {
			return fmt.Errorf("failed to prune %s: %w", dir, err)
		}
	}
	s.config.logger.Info("store: component uninstalled", "ref", r.String())
	return nil
}

// List returns every installed artifact sorted by namespace, name and
// ascending version. A missing root holds nothing.
func (s *FileStore) List() ([]ports.Artifact, error) {
	namespaces, err := subdirs(s.root)
	if err != nil {
		return nil, err
	}
	out := []ports.Artifact{}
	for _, ns := range namespaces {
		names, err := subdirs(filepath.Join(s.root, ns))
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			r := Reference{Namespace: ns, Name: name}
			versions, err := s.versions(r)
			if err != nil {
				return nil, err
			}
			for _, v := range versions {
				r.Version = v
				a, err := s.load(r)
				if err != nil {
					return nil, err
				}
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (s *FileStore) versionDir(r Reference) string {
	return filepath.Join(s.root, r.Namespace, r.Name, r.Version)
}

// versions returns the semantic versions of r that hold an artifact,
// ascending.
func (s *FileStore) versions(r Reference) ([]string, error) {
	dirs, err := subdirs(filepath.Join(s.root, r.Namespace, r.Name))
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, d := range dirs {
		if !semver.IsValid("v" + d) {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, r.Namespace, r.Name, d, r.Name+ArtifactExt)); err == nil {
			versions = append(versions, d)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return semver.Compare("v"+versions[i], "v"+versions[j]) < 0
	})
	return versions, nil
}

func (s *FileStore) load(r Reference) (ports.Artifact, error) {
	dir := s.versionDir(r)
	path := filepath.Join(dir, r.Name+ArtifactExt)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && !info.Mode().IsRegular()) {
		return ports.Artifact{}, notFound(r)
	}
	if err != nil {
		return ports.Artifact{}, fmt.Errorf("stat %s: %w", path, err)
	}
	a := ports.Artifact{Namespace: r.Namespace, Name: r.Name, Version: r.Version, Path: path}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return ports.Artifact{}, fmt.Errorf("failed to read manifest of %s: %w", r, err)
	default:
		m, err := s.config.parser.Parse(data)
		if err != nil {
			return ports.Artifact{}, fmt.Errorf("manifest of %s: %w", r, err)
		}
		a.Manifest = m
	}
	return a, nil
}

func notFound(r Reference) error {
	return fmt.Errorf("%w: %s", domainerrors.ErrComponentNotFound, r)
}

// subdirs lists the sorted directory names under dir, skipping hidden
// entries. A missing dir has none.
func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func isEmptyDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) == 0
}

// writeFileAtomic writes through a temp file so readers never observe a
// partial binary.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".install-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), perm); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
