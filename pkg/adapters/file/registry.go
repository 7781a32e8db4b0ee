package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/authtree/pkg/domain"
	"gopkg.in/yaml.v3"
)

// extensions are tried in order when resolving a flow document.
var extensions = []string{".yaml", ".yml", ".json"}

// Registry implements ports.FlowRegistry, FlowLister and FlowWriter over a directory tree.
//
// Realms map to sub-directories of the base path ("/" is the base path itself,
// "/alpha/beta" is alpha/beta) and every flow is one YAML or JSON document named after it.
type Registry struct {
	BasePath string
}

// New creates a new Registry with the given base path.
// If basePath is empty, it defaults to "flows".
func New(basePath string) *Registry {
	if basePath == "" {
		basePath = "flows"
	}
	return &Registry{BasePath: basePath}
}

func (r *Registry) realmDir(realm string) (string, error) {
	trimmed := strings.Trim(realm, "/")
	if trimmed == "" {
		return r.BasePath, nil
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == "." || part == ".." || part == "" {
			return "", fmt.Errorf("invalid realm %q", realm)
		}
	}
	return filepath.Join(r.BasePath, filepath.FromSlash(trimmed)), nil
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// GetFlow reads and validates the flow document (realm, name).
func (r *Registry) GetFlow(ctx context.Context, realm, name string) (*domain.Flow, error) {
	if !validName(name) {
		return nil, domain.ErrFlowNotFound
	}
	dir, err := r.realmDir(realm)
	if err != nil {
		return nil, err
	}

	for _, ext := range extensions {
		path := filepath.Join(dir, name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to read flow file: %w", err)
		}

		def, err := Decode(data, ext)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if def.Name == "" {
			def.Name = name
		}
		if def.Realm == "" {
			def.Realm = realm
		}
		if def.Name != name || def.Realm != realm {
			return nil, &domain.MalformedFlowError{
				Flow:   name,
				Reason: fmt.Sprintf("document declares flow %q in realm %q", def.Name, def.Realm),
			}
		}
		return domain.NewFlow(def)
	}

	return nil, domain.ErrFlowNotFound
}

// ListFlows returns the flow names of realm, sorted.
func (r *Registry) ListFlows(ctx context.Context, realm string) ([]string, error) {
	dir, err := r.realmDir(realm)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	seen := make(map[string]bool)
	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !knownExtension(ext) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// SaveFlow writes the flow as YAML, atomically replacing any previous version.
func (r *Registry) SaveFlow(ctx context.Context, flow *domain.Flow) error {
	if !validName(flow.Name()) {
		return fmt.Errorf("invalid flow name %q", flow.Name())
	}
	dir, err := r.realmDir(flow.Realm())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure realm directory: %w", err)
	}

	data, err := yaml.Marshal(flow.Definition())
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}

	// Other encodings of the same flow would shadow or be shadowed by the new file.
	for _, ext := range extensions[1:] {
		if err := os.Remove(filepath.Join(dir, flow.Name()+ext)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale flow file: %w", err)
		}
	}

	return writeAtomic(dir, flow.Name()+extensions[0], data)
}

// Decode parses a flow document. ".json" is decoded as JSON, anything else as YAML.
func Decode(data []byte, ext string) (domain.FlowDefinition, error) {
	var def domain.FlowDefinition
	if strings.EqualFold(ext, ".json") {
		err := json.Unmarshal(data, &def)
		return def, err
	}
	err := yaml.Unmarshal(data, &def)
	return def, err
}

// LoadFile reads a single flow document from path.
func LoadFile(path string) (*domain.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	def, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return domain.NewFlow(def)
}

func knownExtension(ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// writeAtomic writes to a temp file in dir, fsyncs it and renames it over name.
func writeAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
