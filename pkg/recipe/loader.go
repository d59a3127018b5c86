package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and validates a recipe from the given file path.
//
// The file format is determined by extension: .yaml/.yml for YAML, .json for
// JSON. If the extension is unrecognized, YAML is attempted first, then JSON.
//
// After loading, the recipe is validated against the JSON schema, checked
// semantically, and defaults are applied to optional fields.
//
// Returns an error if:
//   - The file cannot be read (not found, permission denied, etc.)
//   - The file content is not valid YAML or JSON
//   - The recipe fails schema or semantic validation
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("recipe file not found: %s", path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied reading recipe: %s", path)
		}
		return nil, fmt.Errorf("failed to read recipe file: %w", err)
	}

	return LoadFromBytes(data, path)
}

// LoadFromBytes parses and validates a recipe from raw bytes.
//
// The path parameter is used for error messages and format detection. If path
// is empty, format detection falls back to trying YAML first.
//
// Schema validation runs on the raw data (converted to JSON) before parsing
// into the typed struct, so unknown fields are rejected rather than silently
// dropped.
func LoadFromBytes(data []byte, path string) (*Recipe, error) {
	if len(data) == 0 {
		return nil, errors.New("recipe file is empty")
	}

	jsonData, err := toJSON(data, path)
	if err != nil {
		return nil, err
	}

	if err := ValidateRaw(jsonData); err != nil {
		return nil, err
	}

	r, err := parseRecipe(data, path)
	if err != nil {
		return nil, err
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	r.ApplyDefaults()
	return r, nil
}

// parseRecipe parses the recipe data based on file extension.
func parseRecipe(data []byte, path string) (*Recipe, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return parseJSON(data)
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		// Unknown extension: try YAML first (more permissive), then JSON
		r, yamlErr := parseYAML(data)
		if yamlErr == nil {
			return r, nil
		}
		r, jsonErr := parseJSON(data)
		if jsonErr == nil {
			return r, nil
		}
		return nil, fmt.Errorf("failed to parse recipe (tried YAML and JSON): %w", yamlErr)
	}
}

func parseJSON(data []byte) (*Recipe, error) {
	var r Recipe
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse recipe JSON: %w", err)
	}
	return &r, nil
}

func parseYAML(data []byte) (*Recipe, error) {
	var r Recipe
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse recipe YAML: %w", err)
	}
	return &r, nil
}

// toJSON converts recipe data to JSON for schema validation.
//
// JSON input passes through untouched; YAML is decoded generically and
// re-encoded, preserving unknown fields for the additionalProperties check.
func toJSON(data []byte, path string) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" || looksLikeJSON(data) {
		return data, nil
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse recipe YAML: %w", err)
	}

	jsonData, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to convert recipe to JSON: %w", err)
	}
	return jsonData, nil
}

func looksLikeJSON(data []byte) bool {
	trimmed := strings.TrimSpace(string(data))
	return strings.HasPrefix(trimmed, "{")
}
