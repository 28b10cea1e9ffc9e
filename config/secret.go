package config

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// SecretRefPrefix starts a secret reference.
const SecretRefPrefix = "secretref:"

// SecretProvider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type SecretProvider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// ProviderFactory creates a SecretProvider from its `secrets:` section.
type ProviderFactory func(cfg map[string]any) (SecretProvider, error)

// Registry manages provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

// Register adds a provider factory.
func (r *Registry) Register(name string, factory ProviderFactory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return errors.Wrap(ErrInvalidConfig, "invalid provider registration")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return errors.Wrapf(ErrDuplicateProvider, "%q", name)
	}
	r.factories[name] = factory
	return nil
}

// Create instantiates the provider registered under name.
func (r *Registry) Create(name string, cfg map[string]any) (SecretProvider, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.TrimSpace(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProvider, "%q", name)
	}
	return factory(cfg)
}

// List returns registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry holds the built-in "env" and "file" providers.
var DefaultRegistry = func() *Registry {
	r := NewRegistry()
	_ = r.Register("env", func(map[string]any) (SecretProvider, error) { return EnvProvider{}, nil })
	_ = r.Register("file", newFileProvider)
	return r
}()

// EnvProvider resolves a reference as an environment variable name.
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve returns the variable's value.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", errors.Wrapf(ErrMissingEnv, "%s", ref)
	}
	return v, nil
}

// FileProvider resolves a reference as a file under Dir, trimming one
// trailing newline. References may not escape Dir.
type FileProvider struct {
	Dir string
}

func newFileProvider(cfg map[string]any) (SecretProvider, error) {
	dir, _ := cfg["dir"].(string)
	if dir == "" {
		dir = "/run/secrets"
	}
	return FileProvider{Dir: dir}, nil
}

// Name returns "file".
func (FileProvider) Name() string { return "file" }

// Resolve reads Dir/ref.
func (p FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	clean := filepath.Clean("/" + ref)
	data, err := os.ReadFile(filepath.Join(p.Dir, clean))
	if err != nil {
		return "", errors.Wrapf(err, "read secret %q", ref)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// SecretResolver expands environment variables and secret references in
// configuration values.
type SecretResolver struct {
	providers map[string]SecretProvider
	strict    bool
}

// NewSecretResolver creates a resolver. When strict is set, a provider
// returning "" is an error.
func NewSecretResolver(strict bool, providers ...SecretProvider) *SecretResolver {
	r := &SecretResolver{providers: make(map[string]SecretProvider), strict: strict}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds provider, replacing any provider with the same name.
func (r *SecretResolver) Register(provider SecretProvider) {
	if provider == nil {
		return
	}
	r.providers[provider.Name()] = provider
}

// ResolveValue expands env vars, then resolves a full or inline secret reference.
func (r *SecretResolver) ResolveValue(ctx context.Context, value string) (string, error) {
	expanded, err := ExpandEnvStrict(value)
	if err != nil {
		return "", err
	}
	if r == nil || !strings.Contains(expanded, SecretRefPrefix) {
		return expanded, nil
	}
	if provider, ref, ok := ParseSecretRef(expanded); ok {
		return r.resolveSingle(ctx, provider, ref)
	}
	return r.resolveInline(ctx, expanded)
}

// ParseSecretRef parses a whole value of the form secretref:<provider>:<ref>.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	if !strings.HasPrefix(value, SecretRefPrefix) {
		return "", "", false
	}
	provider, ref, found := strings.Cut(strings.TrimPrefix(value, SecretRefPrefix), ":")
	if !found || provider == "" || ref == "" || strings.ContainsAny(value, " \t\n") {
		return "", "", false
	}
	return provider, ref, true
}

func (r *SecretResolver) resolveSingle(ctx context.Context, name, ref string) (string, error) {
	provider, ok := r.providers[name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownProvider, "%q", name)
	}
	resolved, err := provider.Resolve(ctx, ref)
	if err != nil {
		return "", errors.Wrapf(err, "secret provider %q", name)
	}
	if r.strict && resolved == "" {
		return "", errors.Wrapf(ErrEmptySecret, "provider %q ref %q", name, ref)
	}
	return resolved, nil
}

var inlineSecretRefPattern = regexp.MustCompile(`secretref:([^:\s]+):([^\s]+)`)

func (r *SecretResolver) resolveInline(ctx context.Context, value string) (string, error) {
	matches := inlineSecretRefPattern.FindAllStringSubmatchIndex(value, -1)
	out := value
	// Replace from the end so earlier indexes stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		resolved, err := r.resolveSingle(ctx, out[m[2]:m[3]], out[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		out = out[:m[0]] + resolved + out[m[1]:]
	}
	return out, nil
}
