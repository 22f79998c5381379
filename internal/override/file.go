package override

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/payout-recon/internal/model"
)

type fileSnapshot struct {
	Overrides  []model.Override `json:"overrides"`
	Exclusions []model.Key      `json:"exclusions"`
}

// FileRepository keeps overrides and exclusions in one JSON file so a
// session can be handed to another auditor. A missing file reads as empty.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

// NewFileRepository returns a Repository backed by path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (r *FileRepository) read() (fileSnapshot, error) {
	var snap fileSnapshot
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return snap, nil
	}
	if err != nil {
		return snap, eris.Wrapf(err, "override: read %s", r.path)
	}
	if len(data) == 0 {
		return snap, nil
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, eris.Wrapf(err, "override: parse %s", r.path)
	}
	return snap, nil
}

func (r *FileRepository) write(snap fileSnapshot) error {
	if snap.Overrides == nil {
		snap.Overrides = []model.Override{}
	}
	if snap.Exclusions == nil {
		snap.Exclusions = []model.Key{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return eris.Wrap(err, "override: encode file")
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "override: write %s", tmp)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return eris.Wrapf(err, "override: rename %s", tmp)
	}
	return nil
}

// SaveOverrides implements Repository.
func (r *FileRepository) SaveOverrides(_ context.Context, overrides []model.Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, err := r.read()
	if err != nil {
		return err
	}
	snap.Overrides = overrides
	return r.write(snap)
}

// LoadOverrides implements Repository.
func (r *FileRepository) LoadOverrides(_ context.Context) ([]model.Override, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, err := r.read()
	return snap.Overrides, err
}

// SaveExclusions implements Repository.
func (r *FileRepository) SaveExclusions(_ context.Context, keys []model.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, err := r.read()
	if err != nil {
		return err
	}
	snap.Exclusions = keys
	return r.write(snap)
}

// LoadExclusions implements Repository.
func (r *FileRepository) LoadExclusions(_ context.Context) ([]model.Key, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap, err := r.read()
	return snap.Exclusions, err
}
