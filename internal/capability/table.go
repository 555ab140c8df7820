// Package capability holds the static catalog of supported models: which
// provider serves each model id and the per-model output token ceiling.
package capability

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/davidbz/switchboard/internal/domain"
)

//go:embed capabilities.yaml
var embeddedTable []byte

// Config selects the catalog source.
type Config struct {
	File string `env:"CATALOG_FILE"`
}

// Entry is one row of the table.
type Entry struct {
	Model     string
	Provider  string
	MaxTokens int
}

// Model is the public view returned by the models accessor.
type Model struct {
	Model    string `json:"model"`
	Name     string `json:"name"`
	MaxToken int    `json:"maxToken"`
}

type tableFile struct {
	Providers []providerFile `yaml:"providers"`
}

type providerFile struct {
	Name   string      `yaml:"name"`
	Models []modelFile `yaml:"models"`
}

type modelFile struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Table is the read-only capability table. It is safe for concurrent use.
type Table struct {
	entries []Entry
}

// Default returns the table shipped with the binary.
func Default() *Table {
	table, err := Parse(embeddedTable)
	if err != nil {
		panic(fmt.Sprintf("embedded capability table is invalid: %v", err))
	}
	return table
}

// Load reads the table named by cfg, falling back to the embedded one.
func Load(cfg *Config) (*Table, error) {
	if cfg == nil || strings.TrimSpace(cfg.File) == "" {
		return Parse(embeddedTable)
	}

	absPath, err := filepath.Abs(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %q: %w", absPath, err)
	}

	table, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog file %q: %w", absPath, err)
	}
	return table, nil
}

// Parse decodes a YAML table. Entries keep file order.
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse capability table: %w", err)
	}

	var entries []Entry
	for _, provider := range file.Providers {
		for _, model := range provider.Models {
			entries = append(entries, Entry{
				Model:     model.Model,
				Provider:  provider.Name,
				MaxTokens: model.MaxTokens,
			})
		}
	}

	return New(entries)
}

// New builds a table from entries after validating them.
func New(entries []Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, errors.New("capability table is empty")
	}

	for i, entry := range entries {
		if strings.TrimSpace(entry.Model) == "" {
			return nil, fmt.Errorf("entry %d: model must not be empty", i)
		}
		if strings.TrimSpace(entry.Provider) == "" {
			return nil, fmt.Errorf("entry %d (%s): provider must not be empty", i, entry.Model)
		}
		if entry.MaxTokens <= 0 {
			return nil, fmt.Errorf("entry %d (%s): max_tokens must be positive, got %d", i, entry.Model, entry.MaxTokens)
		}
	}

	return &Table{entries: append([]Entry(nil), entries...)}, nil
}

// Lookup returns the first entry whose model id matches exactly.
func (t *Table) Lookup(model string) (Entry, bool) {
	for _, entry := range t.entries {
		if entry.Model == model {
			return entry, true
		}
	}
	return Entry{}, false
}

// ResolveProvider returns the provider of the first matching entry.
func (t *Table) ResolveProvider(model string) (string, error) {
	entry, ok := t.Lookup(model)
	if !ok {
		return "", domain.UnsupportedModelError(model)
	}
	return entry.Provider, nil
}

// Entries returns a copy of the table in order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// List returns every entry as a Model, in table order.
func (t *Table) List() []Model {
	models := make([]Model, 0, len(t.entries))
	for _, entry := range t.entries {
		models = append(models, toModel(entry))
	}
	return models
}

// Retrieve returns the model with the given id.
func (t *Table) Retrieve(id string) (Model, error) {
	entry, ok := t.Lookup(id)
	if !ok {
		return Model{}, fmt.Errorf("%w: %s", domain.ErrModelNotFound, id)
	}
	return toModel(entry), nil
}

func toModel(entry Entry) Model {
	return Model{
		Model:    entry.Model,
		Name:     entry.Model,
		MaxToken: entry.MaxTokens,
	}
}
