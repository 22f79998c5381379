// Package override holds manual audit decisions for one session.
package override

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/recon"
)

// ValidationError is returned when an override is refused. The store is left
// unchanged.
type ValidationError struct {
	Key    model.Key
	Status model.PaymentStatus
	Msg    string
}

func (e *ValidationError) Error() string {
	return "override: " + e.Key.String() + " " + string(e.Status) + ": " + e.Msg
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// noMotive lists reasons that stand for "no motive given".
var noMotive = map[string]bool{
	"":                true,
	"-":               true,
	"SEM MOTIVO":      true,
	"NO MOTIVE":       true,
	"NO MOTIVE GIVEN": true,
	"NO_MOTIVE_GIVEN": true,
	"N/A":             true,
}

// Repository persists overrides and exclusions across sessions.
type Repository interface {
	SaveOverrides(ctx context.Context, overrides []model.Override) error
	LoadOverrides(ctx context.Context) ([]model.Override, error)
	SaveExclusions(ctx context.Context, keys []model.Key) error
	LoadExclusions(ctx context.Context) ([]model.Key, error)
}

// Store holds session-scoped overrides and confirmed exclusions.
// Last write wins.
type Store struct {
	mu        sync.RWMutex
	overrides map[model.Key]model.Override
	excluded  map[model.Key]bool
	now       func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		overrides: make(map[model.Key]model.Override),
		excluded:  make(map[model.Key]bool),
		now:       time.Now,
	}
}

// Set records a manual decision for key. Rejections require a reason; the
// check happens before anything is written.
func (s *Store) Set(key model.Key, status model.PaymentStatus, reason string) error {
	key = recon.NormalizeKey(key.Client, key.Order)
	if key.Empty() {
		return &ValidationError{Key: key, Status: status, Msg: "empty key"}
	}
	if _, err := model.ParsePaymentStatus(string(status)); err != nil {
		return &ValidationError{Key: key, Status: status, Msg: "unknown status"}
	}
	reason = strings.TrimSpace(reason)
	if status.RequiresReason() && noMotive[recon.NormalizeName(reason)] {
		return &ValidationError{Key: key, Status: status, Msg: "a reason is required"}
	}

	s.mu.Lock()
	s.overrides[key] = model.Override{Key: key, Status: status, Reason: reason, SetAt: s.now().UTC()}
	s.mu.Unlock()

	zap.L().Debug("override set",
		zap.String("key", key.String()),
		zap.String("status", string(status)),
	)
	return nil
}

// Get returns the override for key, if any.
func (s *Store) Get(key model.Key) (model.Override, bool) {
	key = recon.NormalizeKey(key.Client, key.Order)
	s.mu.RLock()
	defer s.mu.RUnlock()
	ov, ok := s.overrides[key]
	return ov, ok
}

// Delete removes the override for key.
func (s *Store) Delete(key model.Key) {
	key = recon.NormalizeKey(key.Client, key.Order)
	s.mu.Lock()
	delete(s.overrides, key)
	s.mu.Unlock()
}

// All returns every override sorted by key.
func (s *Store) All() []model.Override {
	s.mu.RLock()
	out := make([]model.Override, 0, len(s.overrides))
	for _, ov := range s.overrides {
		out = append(out, ov)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}

// Exclude confirms that key is dropped from payout.
func (s *Store) Exclude(key model.Key) error {
	key = recon.NormalizeKey(key.Client, key.Order)
	if key.Empty() {
		return &ValidationError{Key: key, Msg: "empty key"}
	}
	s.mu.Lock()
	s.excluded[key] = true
	s.mu.Unlock()
	return nil
}

// Include reverses Exclude.
func (s *Store) Include(key model.Key) {
	key = recon.NormalizeKey(key.Client, key.Order)
	s.mu.Lock()
	delete(s.excluded, key)
	s.mu.Unlock()
}

// IsExcluded implements recon.Exclusions.
func (s *Store) IsExcluded(key model.Key) bool {
	key = recon.NormalizeKey(key.Client, key.Order)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.excluded[key]
}

// Excluded returns every excluded key sorted.
func (s *Store) Excluded() []model.Key {
	s.mu.RLock()
	out := make([]model.Key, 0, len(s.excluded))
	for k := range s.excluded {
		out = append(out, k)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Reset clears the session.
func (s *Store) Reset() {
	s.mu.Lock()
	s.overrides = make(map[model.Key]model.Override)
	s.excluded = make(map[model.Key]bool)
	s.mu.Unlock()
}

// Export writes the session to repo.
func (s *Store) Export(ctx context.Context, repo Repository) error {
	if err := repo.SaveOverrides(ctx, s.All()); err != nil {
		return eris.Wrap(err, "override: export overrides")
	}
	if err := repo.SaveExclusions(ctx, s.Excluded()); err != nil {
		return eris.Wrap(err, "override: export exclusions")
	}
	return nil
}

// Import loads overrides and exclusions from repo into the session,
// replacing entries with the same key. Every persisted override is checked
// again before anything is applied.
func (s *Store) Import(ctx context.Context, repo Repository) error {
	ovs, err := repo.LoadOverrides(ctx)
	if err != nil {
		return eris.Wrap(err, "override: import overrides")
	}
	keys, err := repo.LoadExclusions(ctx)
	if err != nil {
		return eris.Wrap(err, "override: import exclusions")
	}

	staged := New()
	for _, ov := range ovs {
		if err := staged.Set(ov.Key, ov.Status, ov.Reason); err != nil {
			return eris.Wrap(err, "override: import")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ov := range ovs {
		k := recon.NormalizeKey(ov.Key.Client, ov.Key.Order)
		ov.Key = k
		s.overrides[k] = ov
	}
	for _, k := range keys {
		k = recon.NormalizeKey(k.Client, k.Order)
		if !k.Empty() {
			s.excluded[k] = true
		}
	}
	return nil
}
