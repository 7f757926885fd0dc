package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/medivuehealth/flarecast/internal/store"
)

// ArtifactVersion is one registered bundle artifact.
type ArtifactVersion struct {
	Version         string          `json:"version"`
	Path            string          `json:"path"`
	CreatedAt       time.Time       `json:"created_at"`
	Metrics         store.MetricSet `json:"metrics"`
	TrainingSamples int             `json:"training_samples"`
	IsActive        bool            `json:"is_active"`
}

// Registry tracks bundle artifacts on disk and which one is active, so a
// bad training run can be rolled back without hunting for files.
type Registry struct {
	mu           sync.Mutex
	modelsDir    string
	versionsFile string
	versions     []ArtifactVersion
}

// NewRegistry opens (or starts) the registry under modelsDir.
func NewRegistry(modelsDir string) (*Registry, error) {
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	r := &Registry{
		modelsDir:    modelsDir,
		versionsFile: filepath.Join(modelsDir, "model_versions.json"),
	}
	if err := r.load(); err != nil {
		log.Warn().Err(err).Msg("failed to load model versions, starting fresh")
	}
	return r, nil
}

// Register writes the bundle into the models directory and records it as a
// new, inactive version.
func (r *Registry) Register(b *Bundle, trainingSamples int) (ArtifactVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path := filepath.Join(r.modelsDir, fmt.Sprintf("bundle-%s.json", b.Model.Version))
	if err := b.Save(path); err != nil {
		return ArtifactVersion{}, fmt.Errorf("save bundle: %w", err)
	}

	v := ArtifactVersion{
		Version:         b.Model.Version,
		Path:            path,
		CreatedAt:       time.Now().UTC(),
		Metrics:         b.Model.Metrics,
		TrainingSamples: trainingSamples,
	}
	r.versions = append(r.versions, v)
	sort.Slice(r.versions, func(i, j int) bool {
		return r.versions[i].CreatedAt.After(r.versions[j].CreatedAt)
	})
	return v, r.save()
}

// Activate marks a version active and deactivates the rest.
func (r *Registry) Activate(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	found := false
	for i := range r.versions {
		if r.versions[i].Version == version {
			r.versions[i].IsActive = true
			found = true
		} else {
			r.versions[i].IsActive = false
		}
	}
	if !found {
		return fmt.Errorf("version %s not found", version)
	}
	log.Info().Str("version", version).Msg("model version activated")
	return r.save()
}

// Rollback activates the version registered immediately before the active
// one.
func (r *Registry) Rollback() error {
	r.mu.Lock()
	currentIdx := -1
	for i, v := range r.versions {
		if v.IsActive {
			currentIdx = i
			break
		}
	}
	if currentIdx == -1 || currentIdx+1 >= len(r.versions) {
		r.mu.Unlock()
		return fmt.Errorf("no previous version available for rollback")
	}
	target := r.versions[currentIdx+1].Version
	r.mu.Unlock()
	return r.Activate(target)
}

// Active returns the active version, if any.
func (r *Registry) Active() (ArtifactVersion, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.versions {
		if v.IsActive {
			return v, true
		}
	}
	return ArtifactVersion{}, false
}

// List returns all registered versions, newest-first.
func (r *Registry) List() []ArtifactVersion {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ArtifactVersion, len(r.versions))
	copy(out, r.versions)
	return out
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.versionsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &r.versions)
}

func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.versions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.versionsFile, data, 0o644)
}
