package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	sserrors "github.com/matzehuels/stacksync/pkg/errors"
)

// FileName is the project manifest file name.
const FileName = "package.json"

const dependenciesKey = "dependencies"

// Manifest is a parsed package.json.
type Manifest struct {
	// Name, Version and PackageManager are read-only views of top-level fields.
	Name           string
	Version        string
	PackageManager string

	// Dependencies is the declared name -> range map. Mutate it through Apply.
	Dependencies map[string]string

	path   string
	fields []field
	indent string
}

type field struct {
	key string
	raw json.RawMessage
}

// Load reads <root>/package.json.
func Load(root string) (*Manifest, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, sserrors.Wrap(sserrors.ErrCodeManifestNotFound, err, "no %s in %s", FileName, root)
	}
	if err != nil {
		return nil, err
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.path = path
	return m, nil
}

// Parse decodes package.json content, keeping top-level field order.
func Parse(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, sserrors.Wrap(sserrors.ErrCodeInvalidManifest, err, "read %s", FileName)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, sserrors.New(sserrors.ErrCodeInvalidManifest, "%s is not a JSON object", FileName)
	}

	m := &Manifest{indent: detectIndent(data)}
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, sserrors.Wrap(sserrors.ErrCodeInvalidManifest, err, "read %s", FileName)
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, sserrors.Wrap(sserrors.ErrCodeInvalidManifest, err, "read %s field %q", FileName, key)
		}
		if i, dup := index[key]; dup {
			m.fields[i].raw = raw
			continue
		}
		index[key] = len(m.fields)
		m.fields = append(m.fields, field{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, sserrors.Wrap(sserrors.ErrCodeInvalidManifest, err, "read %s", FileName)
	}

	for _, f := range m.fields {
		switch f.key {
		case "name":
			_ = json.Unmarshal(f.raw, &m.Name)
		case "version":
			_ = json.Unmarshal(f.raw, &m.Version)
		case "packageManager":
			_ = json.Unmarshal(f.raw, &m.PackageManager)
		case dependenciesKey:
			if err := json.Unmarshal(f.raw, &m.Dependencies); err != nil {
				return nil, sserrors.Wrap(sserrors.ErrCodeInvalidManifest, err, "dependencies must map names to range strings")
			}
		}
	}
	if m.Dependencies == nil {
		m.Dependencies = make(map[string]string)
	}
	return m, nil
}

// Path returns the file the manifest was loaded from.
func (m *Manifest) Path() string { return m.path }

// Names returns the declared dependency names, sorted.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Dependencies))
	for n := range m.Dependencies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply writes overrides into the dependency map. An empty range removes the
// name. Removals of names that were never declared are returned and
// otherwise ignored.
func (m *Manifest) Apply(overrides map[string]string) (missing []string) {
	for name, rng := range overrides {
		if rng != "" {
			m.Dependencies[name] = rng
			continue
		}
		if _, ok := m.Dependencies[name]; !ok {
			missing = append(missing, name)
			continue
		}
		delete(m.Dependencies, name)
	}
	sort.Strings(missing)
	return missing
}

// Marshal renders the manifest.
func (m *Manifest) Marshal() ([]byte, error) {
	deps, err := marshal(m.Dependencies)
	if err != nil {
		return nil, err
	}

	var compact bytes.Buffer
	compact.WriteByte('{')
	wrote := false
	for i, f := range m.fields {
		if i > 0 {
			compact.WriteByte(',')
		}
		key, _ := marshal(f.key)
		compact.Write(key)
		compact.WriteByte(':')
		if f.key == dependenciesKey {
			compact.Write(deps)
			wrote = true
			continue
		}
		if err := json.Compact(&compact, f.raw); err != nil {
			return nil, err
		}
	}
	if !wrote && len(m.Dependencies) > 0 {
		if len(m.fields) > 0 {
			compact.WriteByte(',')
		}
		compact.WriteString(`"` + dependenciesKey + `":`)
		compact.Write(deps)
	}
	compact.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, compact.Bytes(), "", m.indent); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// Save rewrites the file the manifest was loaded from.
func (m *Manifest) Save() error {
	if m.path == "" {
		return sserrors.New(sserrors.ErrCodeInternal, "manifest has no path")
	}
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	return writeFile(m.path, data)
}

// writeFile replaces path atomically so readers never see a partial file.
func writeFile(path string, data []byte) error {
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".package.json.*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// marshal encodes v without HTML escaping. Maps come out with sorted keys.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// detectIndent returns the leading whitespace of the first indented line,
// or two spaces.
func detectIndent(data []byte) string {
	for _, line := range strings.Split(string(data), "\n")[1:] {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" || len(trimmed) == len(line) {
			continue
		}
		return line[:len(line)-len(trimmed)]
	}
	return "  "
}
