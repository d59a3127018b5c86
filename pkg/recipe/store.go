package recipe

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ErrNotFound indicates no recipe file exists for the requested name.
var ErrNotFound = errors.New("recipe not found")

// recipeFilePattern matches recipe files within the store directory.
// Brace expansion requires doublestar; path.Match has no {a,b} support.
const recipeFilePattern = "*.{yml,yaml,json}"

// Store loads recipes by name from a directory on disk and caches them.
//
// A recipe named "foo" is resolved to <dir>/foo.yml, foo.yaml, or foo.json,
// in that order. Recipes are parsed and validated once per name; subsequent
// loads return the cached value.
type Store struct {
	dir   string
	cache map[string]*Recipe
}

// NewStore creates a Store over the given recipe directory.
//
// The directory is not required to exist yet; List returns an empty set and
// Load reports ErrNotFound until it does.
func NewStore(dir string) *Store {
	return &Store{
		dir:   strings.TrimSpace(dir),
		cache: make(map[string]*Recipe),
	}
}

// Dir returns the store's recipe directory.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns the named recipe, reading and validating it on first use.
//
// Returns ErrNotFound if no recipe file matches the name, or the validation
// error if the file is malformed.
func (s *Store) Load(name string) (*Recipe, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("recipe name is required")
	}
	if r, ok := s.cache[name]; ok {
		return r, nil
	}

	path, err := s.findRecipeFile(name)
	if err != nil {
		return nil, err
	}

	r, err := Load(path)
	if err != nil {
		return nil, err
	}

	s.cache[name] = r
	return r, nil
}

// List enumerates available recipe names, sorted and de-duplicated.
// It is side-effect-free: nothing is parsed or cached.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read recipe directory: %w", err)
	}

	seen := make(map[string]struct{})
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := doublestar.Match(recipeFilePattern, entry.Name())
		if err != nil || !ok {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if _, dup := seen[stem]; dup {
			continue
		}
		seen[stem] = struct{}{}
		names = append(names, stem)
	}

	sort.Strings(names)
	return names, nil
}

// Info is a shallow summary of a recipe for listings.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
	FilePath    string `json:"file_path"`
}

// Info returns summary information about the named recipe.
func (s *Store) Info(name string) (*Info, error) {
	path, err := s.findRecipeFile(name)
	if err != nil {
		return nil, err
	}
	r, err := s.Load(name)
	if err != nil {
		return nil, err
	}
	return &Info{
		Name:        r.Name,
		Description: r.Description,
		Kind:        r.Kind(),
		FilePath:    path,
	}, nil
}

// CreateTemplate writes a starter recipe file for the given name.
//
// Fails if a recipe with that name already exists.
func (s *Store) CreateTemplate(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("recipe name is required")
	}
	if existing, _ := s.findRecipeFile(name); existing != "" {
		return "", fmt.Errorf("recipe already exists: %s", existing)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("create recipe directory: %w", err)
	}

	template := Recipe{
		Name:        name,
		Description: "Describe the service this recipe deploys.",
		Service: &ServiceSpec{
			Command:    "python -m http.server 8000",
			WorkingDir: "./",
			Env:        map[string]string{"EXAMPLE_ENV": "value"},
			Ports:      []int{8000},
		},
		Orchestration: OrchestrationSpec{
			Resources: ResourceSpec{CPUCores: 2, MemoryGB: 4},
		},
	}

	data, err := yaml.Marshal(&template)
	if err != nil {
		return "", fmt.Errorf("render recipe template: %w", err)
	}

	path := filepath.Join(s.dir, name+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write recipe template: %w", err)
	}
	return path, nil
}

// findRecipeFile resolves a recipe name to a file path, or ErrNotFound.
func (s *Store) findRecipeFile(name string) (string, error) {
	for _, ext := range []string{".yml", ".yaml", ".json"} {
		candidate := filepath.Join(s.dir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
