package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed domains/*.yaml
var domainFS embed.FS

// fileFormat is the on-disk catalog definition. JSON files parse too, since
// JSON is valid YAML.
type fileFormat struct {
	Domain     string            `yaml:"domain"`
	Defaults   map[string]string `yaml:"defaults"`
	Components []componentFile   `yaml:"components"`
}

type componentFile struct {
	Name        string         `yaml:"name"`
	Tier        Tier           `yaml:"tier"`
	Template    string         `yaml:"template"`
	Description string         `yaml:"description"`
	MaxTokens   int            `yaml:"max_tokens"`
	Temperature *float64       `yaml:"temperature"`
	Schema      map[string]any `yaml:"schema"`
}

// Definition is a parsed catalog plus the base context defaults of its domain.
type Definition struct {
	*Catalog
	defaults map[string]string
}

// Defaults returns the base context defaults, e.g. grade "default" and
// subject "Mathematics" for lessons. The returned map is a copy.
func (d *Definition) Defaults() map[string]string {
	out := make(map[string]string, len(d.defaults))
	for k, v := range d.defaults {
		out[k] = v
	}
	return out
}

// Domains lists the built-in catalog domains.
func Domains() []string {
	entries, err := domainFS.ReadDir("domains")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), path.Ext(e.Name())))
	}
	sort.Strings(names)
	return names
}

// Load returns the built-in catalog for domain.
func Load(domain string) (*Definition, error) {
	data, err := domainFS.ReadFile("domains/" + domain + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown catalog domain %q (available: %s)", domain, strings.Join(Domains(), ", "))
	}
	return Parse(data)
}

// LoadFile reads a catalog definition from a YAML or JSON file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return def, nil
}

// Parse builds a Definition from YAML or JSON bytes.
func Parse(data []byte) (*Definition, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	specs := make([]*ComponentSpec, 0, len(f.Components))
	for _, c := range f.Components {
		if c.Schema == nil {
			return nil, fmt.Errorf("component %s: schema is required", c.Name)
		}
		raw, err := json.Marshal(c.Schema)
		if err != nil {
			return nil, fmt.Errorf("component %s: encode schema: %w", c.Name, err)
		}
		schema, err := NewSchema(raw)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", c.Name, err)
		}

		template := c.Template
		if template == "" {
			template = "generic"
		}
		specs = append(specs, &ComponentSpec{
			Name:        c.Name,
			Description: c.Description,
			Tier:        c.Tier,
			TemplateID:  template,
			Schema:      schema,
			MaxTokens:   c.MaxTokens,
			Temperature: c.Temperature,
		})
	}

	cat, err := New(f.Domain, specs)
	if err != nil {
		return nil, err
	}
	if f.Defaults == nil {
		f.Defaults = map[string]string{}
	}
	return &Definition{Catalog: cat, defaults: f.Defaults}, nil
}
