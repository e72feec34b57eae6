package host

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hayride-dev/hayride-go/contract"
	"github.com/hayride-dev/hayride-go/domain/entities"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/domain/ports"
	"github.com/hayride-dev/hayride-go/infrastructure/parser"
	"github.com/tetratelabs/wazero"
)

// Capabilities is the set of host functions offered to components.
type Capabilities interface {
	Resolve(want contract.InterfaceRef) (contract.InterfaceRef, bool)
	Interfaces() []contract.InterfaceRef
	Has(name string) bool
}

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	capabilities Capabilities
	worlds       *contract.Registry
	parser       ports.ManifestParser
	wasi         bool
}

func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		parser: parser.NewYamlManifestParser(),
		wasi:   true,
	}
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithCapabilities sets the host functions imports are validated against.
func WithCapabilities(c Capabilities) LoaderOption {
	return func(cfg *loaderConfig) {
		cfg.capabilities = c
	}
}

// WithWorlds sets the world registry used to check export conformance.
func WithWorlds(r *contract.Registry) LoaderOption {
	return func(cfg *loaderConfig) {
		cfg.worlds = r
	}
}

// WithParser sets a custom manifest parser.
func WithParser(p ports.ManifestParser) LoaderOption {
	return func(cfg *loaderConfig) {
		cfg.parser = p
	}
}

// WithWASI controls whether WASI preview1 imports are offered.
func WithWASI(enabled bool) LoaderOption {
	return func(cfg *loaderConfig) {
		cfg.wasi = enabled
	}
}

// LoadOption configures a single Load.
type LoadOption func(*loadConfig)

type loadConfig struct {
	providers []contract.InterfaceRef
}

// WithProviders offers interfaces exported by other components in the same
// composition, in addition to the host's.
func WithProviders(refs ...contract.InterfaceRef) LoadOption {
	return func(c *loadConfig) {
		c.providers = append(c.providers, refs...)
	}
}

// Loader compiles, introspects and validates component binaries. Compiled
// binaries are cached by content digest and successful validations by
// digest, world and providers.
type Loader struct {
	runtime   wazero.Runtime
	config    loaderConfig
	mu        sync.Mutex
	compiled  map[string]*Component
	validated map[string]struct{}
}

// NewLoader creates a Loader compiling into runtime.
func NewLoader(runtime wazero.Runtime, opts ...LoaderOption) *Loader {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.worlds == nil {
		cfg.worlds, _ = contract.NewRegistry(contract.WithDefaultWorlds())
	}
	return &Loader{
		runtime:   runtime,
		config:    cfg,
		compiled:  make(map[string]*Component),
		validated: make(map[string]struct{}),
	}
}

// LoadManifest parses and validates a component manifest.
func (l *Loader) LoadManifest(raw []byte) (*entities.Manifest, error) {
	manifest, err := l.config.parser.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return manifest, nil
}

// Inspect compiles binary and reads its imports and exports without
// checking them against any contract.
func (l *Loader) Inspect(ctx context.Context, name string, binary []byte) (*Component, error) {
	sum := sha256.Sum256(binary)
	digest := hex.EncodeToString(sum[:])

	l.mu.Lock()
	defer l.mu.Unlock()

	cached, ok := l.compiled[digest]
	if !ok {
		compiled, err := l.runtime.CompileModule(ctx, binary)
		if err != nil {
			return nil, &domainerrors.LoadError{Component: name, Reason: "invalid binary", Err: err}
		}
		cached, err = introspect(name, compiled)
		if err != nil {
			_ = compiled.Close(ctx)
			return nil, err
		}
		cached.Digest = digest
		l.compiled[digest] = cached
	}

	c := *cached
	c.Name = name
	return &c, nil
}

// Load inspects binary and validates it against world. An empty world
// skips the export check; imports are always checked.
func (l *Loader) Load(ctx context.Context, name string, binary []byte, world string, opts ...LoadOption) (*Component, error) {
	c, err := l.Inspect(ctx, name, binary)
	if err != nil {
		return nil, err
	}
	if err := l.Validate(c, world, opts...); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks a component against world and the offered interfaces.
// It fails closed: the first unmet requirement is returned as a LoadError.
func (l *Loader) Validate(c *Component, world string, opts ...LoadOption) error {
	var lc loadConfig
	for _, opt := range opts {
		opt(&lc)
	}

	key := validationKey(c.Digest, world, lc.providers)
	l.mu.Lock()
	_, done := l.validated[key]
	l.mu.Unlock()
	if done {
		return nil
	}

	fail := func(reason, iface string) error {
		return &domainerrors.LoadError{Component: c.Name, World: world, Reason: reason, Interface: iface}
	}

	var w contract.World
	if world != "" {
		var ok bool
		if w, ok = l.config.worlds.World(world); !ok {
			return fail("unknown world", world)
		}
	}

	for _, imp := range c.Imports {
		if imp.WASI {
			if !l.config.wasi {
				return fail("unsupported import", imp.Module)
			}
			continue
		}
		if _, ok := contract.BestMatch(imp.Interface, lc.providers); ok {
			continue
		}
		if err := l.checkHostImport(c, imp, world, w, fail); err != nil {
			return err
		}
	}

	if world != "" {
		if missing := w.MissingExports(c.Exports); len(missing) > 0 {
			reason := "missing export"
			if sameKey(missing[0], c.Exports) {
				reason = "version mismatch on export"
			}
			return fail(reason, missing[0].String())
		}
	}

	if c.needsGuestHeap() && (!c.hasAllocate || !c.hasMemory) {
		return fail("missing allocate or memory export", "")
	}

	l.mu.Lock()
	l.validated[key] = struct{}{}
	l.mu.Unlock()
	return nil
}

func (l *Loader) checkHostImport(c *Component, imp Import, world string, w contract.World, fail func(string, string) error) error {
	caps := l.config.capabilities
	if caps == nil {
		return fail("unsupported import", imp.Module)
	}
	resolved, ok := caps.Resolve(imp.Interface)
	if !ok {
		if sameKey(imp.Interface, caps.Interfaces()) {
			return fail("version mismatch on import", imp.Module)
		}
		return fail("unsupported import", imp.Module)
	}
	if world != "" && !w.Allows(imp.Interface) {
		return fail("import outside world", imp.Module)
	}
	for _, fn := range imp.Funcs {
		if !caps.Has(contract.Qualified{Interface: resolved, Func: fn}.String()) {
			return fail("unknown function", imp.Module+"#"+fn)
		}
	}
	return nil
}

func sameKey(ref contract.InterfaceRef, refs []contract.InterfaceRef) bool {
	for _, r := range refs {
		if r.Key() == ref.Key() {
			return true
		}
	}
	return false
}

func validationKey(digest, world string, providers []contract.InterfaceRef) string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.String()
	}
	sort.Strings(names)
	return digest + "|" + world + "|" + strings.Join(names, ",")
}
