// Package icon maps arbitrary service names produced by a model onto the fixed icon
// vocabulary understood by the diagram canvas.
package icon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocabulary.yaml
var defaultVocabularyYAML []byte

// Category is one group of canonical icon identifiers.
type Category struct {
	Name  string   `yaml:"category" json:"category"`
	Icons []string `yaml:"icons" json:"icons"`
}

// Vocabulary is the read-only icon set. Iteration order follows the source file.
type Vocabulary struct {
	categories []Category
	ordered    []string          // canonical names in source order
	index      map[string]string // lowercase -> canonical
	categoryOf map[string]string // canonical -> category
}

// DefaultVocabulary parses the embedded vocabulary.
func DefaultVocabulary() (*Vocabulary, error) {
	return ParseVocabulary(defaultVocabularyYAML)
}

// LoadVocabulary reads a vocabulary file; an empty path selects the embedded one.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read icon vocabulary: %w", err)
	}
	return ParseVocabulary(data)
}

// ParseVocabulary builds a vocabulary from YAML. Identifiers must be unique
// case-insensitively and must not contain whitespace or '['.
func ParseVocabulary(data []byte) (*Vocabulary, error) {
	var categories []Category
	if err := yaml.Unmarshal(data, &categories); err != nil {
		return nil, fmt.Errorf("failed to parse icon vocabulary: %w", err)
	}
	return NewVocabulary(categories)
}

// NewVocabulary builds a vocabulary from already decoded categories.
func NewVocabulary(categories []Category) (*Vocabulary, error) {
	v := &Vocabulary{
		index:      make(map[string]string),
		categoryOf: make(map[string]string),
	}
	for _, c := range categories {
		if c.Name == "" {
			return nil, fmt.Errorf("icon category without a name")
		}
		icons := make([]string, 0, len(c.Icons))
		for _, name := range c.Icons {
			if name == "" || strings.ContainsAny(name, " \t\r\n[") {
				return nil, fmt.Errorf("invalid icon identifier %q in category %q", name, c.Name)
			}
			key := strings.ToLower(name)
			if existing, ok := v.index[key]; ok {
				return nil, fmt.Errorf("duplicate icon identifier %q (already defined as %q)", name, existing)
			}
			v.index[key] = name
			v.categoryOf[name] = c.Name
			v.ordered = append(v.ordered, name)
			icons = append(icons, name)
		}
		v.categories = append(v.categories, Category{Name: c.Name, Icons: icons})
	}
	for _, required := range []string{FallbackDevice, FallbackCloud} {
		if _, ok := v.index[strings.ToLower(required)]; !ok {
			return nil, fmt.Errorf("icon vocabulary must define %q", required)
		}
	}
	return v, nil
}

// Lookup returns the canonical spelling of name, matched case-insensitively.
func (v *Vocabulary) Lookup(name string) (string, bool) {
	canonical, ok := v.index[strings.ToLower(name)]
	return canonical, ok
}

// Contains reports whether name is an exact canonical identifier.
func (v *Vocabulary) Contains(name string) bool {
	_, ok := v.categoryOf[name]
	return ok
}

// CategoryOf returns the category of a canonical identifier.
func (v *Vocabulary) CategoryOf(name string) string {
	return v.categoryOf[name]
}

// Names returns every canonical identifier in vocabulary order.
func (v *Vocabulary) Names() []string {
	return append([]string(nil), v.ordered...)
}

// Categories returns a copy of the category listing.
func (v *Vocabulary) Categories() []Category {
	out := make([]Category, len(v.categories))
	for i, c := range v.categories {
		out[i] = Category{Name: c.Name, Icons: append([]string(nil), c.Icons...)}
	}
	return out
}

// Len returns the number of identifiers.
func (v *Vocabulary) Len() int {
	return len(v.ordered)
}
