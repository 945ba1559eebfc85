package analyzer

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type DocumentType struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type ConfidenceRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Catalog is the closed set of values an analysis payload is built from.
type Catalog struct {
	DocumentTypes   []DocumentType  `yaml:"documentTypes"`
	KeyPoints       []string        `yaml:"keyPoints"`
	Recommendations []string        `yaml:"recommendations"`
	ComplianceCheck string          `yaml:"complianceCheck"`
	Confidence      ConfidenceRange `yaml:"confidence"`
}

// LoadCatalog reads the catalog at path, or the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	raw := defaultCatalog
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read analyzer catalog: %w", err)
		}
		raw = data
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse analyzer catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.DocumentTypes) == 0 {
		return errors.New("analyzer catalog: no document types")
	}
	for _, t := range c.DocumentTypes {
		if strings.TrimSpace(t.Name) == "" {
			return errors.New("analyzer catalog: document type without name")
		}
	}
	if len(c.KeyPoints) == 0 || len(c.Recommendations) == 0 {
		return errors.New("analyzer catalog: key points and recommendations are required")
	}
	if strings.TrimSpace(c.ComplianceCheck) == "" {
		return errors.New("analyzer catalog: compliance check text is required")
	}
	if c.Confidence.Min < 0 || c.Confidence.Max > 100 || c.Confidence.Min > c.Confidence.Max {
		return fmt.Errorf("analyzer catalog: invalid confidence range %d-%d", c.Confidence.Min, c.Confidence.Max)
	}
	return nil
}
