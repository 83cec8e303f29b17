package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/muhammadmuzzammil1998/jsonc"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed workflow.schema.json
var schemaJSON []byte

const schemaURL = "mem://schemas/workflow.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("decode workflow schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("register workflow schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Definition is the portable file form of a workflow.
type Definition struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Commands    []string `yaml:"commands" json:"commands"`
}

// Format is a workflow file encoding.
type Format string

// Supported file formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatForPath picks the format from a file extension. Unknown extensions
// are treated as YAML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON
	}
	return FormatYAML
}

// LoadFile reads and validates a workflow definition.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	def, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Parse decodes a workflow definition and validates it against the
// workflow schema. JSON input may contain comments and trailing commas.
func Parse(data []byte, format Format) (*Definition, error) {
	var doc []byte
	switch format {
	case FormatJSON:
		doc = jsonc.ToJSON(data)
	case FormatYAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
		var err error
		if doc, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("convert YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	var instance any
	if err := json.Unmarshal(doc, &instance); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	s, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := s.Validate(instance); err != nil {
		return nil, fmt.Errorf("invalid workflow: %w", err)
	}

	var def Definition
	if err := json.Unmarshal(doc, &def); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	def.Name = strings.TrimSpace(def.Name)
	return &def, nil
}

// Export writes a workflow definition in the given format.
func Export(w io.Writer, def *Definition, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(def)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(def); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format %q", format)
}

// DefinitionOf returns the file form of a stored workflow.
func DefinitionOf(w *Workflow) *Definition {
	return &Definition{
		Name:        w.Name,
		Description: w.Description,
		Commands:    append([]string(nil), w.Commands...),
	}
}
