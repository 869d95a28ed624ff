package flowfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/mrio-cli/internal/model"
)

// ManifestFile is the manifest name inside the .mrio directory.
const ManifestFile = "manifest.yaml"

// Manifest records how a year's matrices were produced.
type Manifest struct {
	RunID       string          `yaml:"run_id"`
	Year        int             `yaml:"year"`
	Options     model.Options   `yaml:"options"`
	GeneratedAt time.Time       `yaml:"generated_at"`
	Stages      []StageManifest `yaml:"stages"`
}

// StageManifest is one stage's outcome.
type StageManifest struct {
	Name   string            `yaml:"name"`
	Status model.StageStatus `yaml:"status"`
	Rows   int64             `yaml:"rows"`
	File   string            `yaml:"file,omitempty"`
}

// Stage returns the named stage entry, if present.
func (m *Manifest) Stage(name string) (StageManifest, bool) {
	for _, s := range m.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageManifest{}, false
}

// SetStage adds or replaces the entry for s.Name.
func (m *Manifest) SetStage(s StageManifest) {
	for i := range m.Stages {
		if m.Stages[i].Name == s.Name {
			m.Stages[i] = s
			return
		}
	}
	m.Stages = append(m.Stages, s)
}

// WriteManifest writes <results>/<year>/.mrio/manifest.yaml.
func WriteManifest(results string, m *Manifest) error {
	dir := MrioDir(results, m.Year)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "flowfile: mkdir %s", dir)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "flowfile: marshal manifest")
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "flowfile: write %s", path)
	}
	return nil
}

// ReadManifest loads a year's manifest. A missing manifest yields an empty
// one for that year.
func ReadManifest(results string, year int) (*Manifest, error) {
	path := filepath.Join(MrioDir(results, year), ManifestFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Manifest{Year: year}, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "flowfile: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "flowfile: parse %s", path)
	}
	return &m, nil
}
