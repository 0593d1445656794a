// Package pipeline loads the pipeline catalog and turns each entry into
// a subprocess-backed worker. Executors are black boxes to the rest of
// the system: a command that reads its input from stdin and writes a
// result document to stdout.
package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/sidequest-dev/foreman/pkg/engine"
	"github.com/sidequest-dev/foreman/pkg/faults"
)

var log = logging.Logger("pipeline")

// Spec is one catalog entry.
type Spec struct {
	ID             string         `yaml:"id"`
	Kind           string         `yaml:"kind,omitempty"` // scan or task, default task
	Command        []string       `yaml:"command"`
	WorkDir        string         `yaml:"workdir,omitempty"`
	MaxConcurrent  int            `yaml:"max_concurrent,omitempty"`
	QueueCapacity  int            `yaml:"queue_capacity,omitempty"`
	MaxRetries     int            `yaml:"max_retries,omitempty"`
	TimeoutSeconds int            `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool          `yaml:"enabled,omitempty"` // nil means enabled
	InputSchema    map[string]any `yaml:"input_schema,omitempty"`
}

// IsEnabled reports whether the pipeline accepts submissions.
func (s *Spec) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

// IsScan reports whether the pipeline speaks the scan:* event family.
func (s *Spec) IsScan() bool { return s.Kind == string(engine.KindScan) }

type catalogFile struct {
	Pipelines []Spec `yaml:"pipelines"`
}

// Catalog is the parsed pipeline inventory with compiled input schemas.
type Catalog struct {
	specs   []Spec
	byID    map[string]*Spec
	schemas map[string]*jsonschema.Schema
}

// LoadCatalog reads and validates a pipelines.yaml file. Unknown fields
// are rejected so typos surface at startup rather than as silently
// ignored configuration.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog builds a catalog from raw YAML.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if err == io.EOF {
			return emptyCatalog(), nil
		}
		return nil, fmt.Errorf("parsing pipeline catalog: %w", err)
	}

	cat := emptyCatalog()
	cat.specs = file.Pipelines
	for i := range cat.specs {
		spec := &cat.specs[i]
		if err := validateSpec(spec); err != nil {
			return nil, err
		}
		if _, dup := cat.byID[spec.ID]; dup {
			return nil, fmt.Errorf("pipeline catalog: duplicate pipeline id %q", spec.ID)
		}
		cat.byID[spec.ID] = spec
		if spec.InputSchema != nil {
			schema, err := compileSchema(spec.ID, spec.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("pipeline %q: compiling input schema: %w", spec.ID, err)
			}
			cat.schemas[spec.ID] = schema
		}
	}
	return cat, nil
}

func emptyCatalog() *Catalog {
	return &Catalog{
		byID:    map[string]*Spec{},
		schemas: map[string]*jsonschema.Schema{},
	}
}

func validateSpec(s *Spec) error {
	if s.ID == "" {
		return fmt.Errorf("pipeline catalog: entry missing id")
	}
	switch s.Kind {
	case "", string(engine.KindTask), string(engine.KindScan):
	default:
		return fmt.Errorf("pipeline %q: unknown kind %q", s.ID, s.Kind)
	}
	if s.IsEnabled() && len(s.Command) == 0 {
		return fmt.Errorf("pipeline %q: enabled pipeline has no command", s.ID)
	}
	if s.MaxConcurrent < 0 || s.QueueCapacity < 0 || s.MaxRetries < 0 || s.TimeoutSeconds < 0 {
		return fmt.Errorf("pipeline %q: negative limits", s.ID)
	}
	return nil
}

func compileSchema(id string, schema map[string]any) (*jsonschema.Schema, error) {
	doc, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	resource := fmt.Sprintf("catalog://%s/input.json", id)
	if err := c.AddResource(resource, strings.NewReader(string(doc))); err != nil {
		return nil, err
	}
	return c.Compile(resource)
}

// Specs returns catalog entries in file order.
func (c *Catalog) Specs() []Spec { return c.specs }

// Get looks up a pipeline by id.
func (c *Catalog) Get(id string) (*Spec, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// SetDefaultMaxRetries applies a retry budget to every spec that does not
// name its own. Zero or negative n leaves the catalog untouched.
func (c *Catalog) SetDefaultMaxRetries(n int) {
	if n <= 0 {
		return
	}
	for i := range c.specs {
		if c.specs[i].MaxRetries == 0 {
			c.specs[i].MaxRetries = n
		}
	}
}

// Disabled lists pipelines present in the catalog but not accepting
// submissions.
func (c *Catalog) Disabled() []string {
	var out []string
	for i := range c.specs {
		if !c.specs[i].IsEnabled() {
			out = append(out, c.specs[i].ID)
		}
	}
	return out
}

// ValidateInput checks raw against the pipeline's input schema. Unknown
// pipelines and pipelines without a schema pass: admission control for
// unknown ids belongs to the worker registry.
func (c *Catalog) ValidateInput(id string, raw json.RawMessage) error {
	schema, ok := c.schemas[id]
	if !ok {
		return nil
	}
	var doc any = map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return faults.NewValidationError(
				fmt.Sprintf("input for pipeline %q is not valid JSON: %v", id, err), "input")
		}
	}
	if err := schema.Validate(doc); err != nil {
		return faults.NewValidationError(
			fmt.Sprintf("input for pipeline %q: %v", id, err), "input")
	}
	return nil
}
