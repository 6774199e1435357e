package store

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var bundledFS embed.FS

// BundledSet names a dataset shipped inside the binary.
type BundledSet string

const (
	BundledSample  BundledSet = "sample"
	BundledDemoCSV BundledSet = "demo_csv"
	BundledDemoAPI BundledSet = "demo_api"
)

type bundledFile struct {
	Title   string          `yaml:"title"`
	Records []StudentRecord `yaml:"records"`
}

// LoadBundled decodes one of the embedded datasets. Each call returns a fresh
// slice, so callers may keep it without copying.
func LoadBundled(set BundledSet) (Dataset, string, error) {
	raw, err := bundledFS.ReadFile("data/" + string(set) + ".yaml")
	if err != nil {
		return nil, "", fmt.Errorf("unknown bundled dataset %q: %w", set, err)
	}
	var f bundledFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, "", fmt.Errorf("failed to decode bundled dataset %q: %w", set, err)
	}
	return Dataset(f.Records), f.Title, nil
}
