package profile

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/taskdeck/agentexec/pkg/models"
)

// Registry owns the profile pool, the active profile pointer, and the
// per-profile rate-limit bookkeeping. All reads and mutations serialize
// through one mutex: two tasks rate-limited at the same moment must not race
// to pick the same alternative.
type Registry struct {
	mu       sync.Mutex
	path     string
	profiles []Profile
	active   string
	policy   Policy
	limited  map[string]time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}

	now func() time.Time
}

// NewRegistry builds a registry from an in-memory profile set. The active
// id may be empty, in which case the first profile is active. Used by tests
// and by callers that do not keep profiles on disk.
func NewRegistry(profiles []Profile, active string, policy Policy) *Registry {
	r := &Registry{
		profiles: append([]Profile(nil), profiles...),
		active:   active,
		policy:   policy,
		limited:  make(map[string]time.Time),
		now:      time.Now,
	}
	if r.active == "" && len(r.profiles) > 0 {
		r.active = r.profiles[0].ID
	}
	return r
}

// Load reads a profiles file into a new registry.
func Load(path string) (*Registry, error) {
	f, err := readFile(path)
	if err != nil {
		return nil, err
	}
	r := NewRegistry(f.Profiles, f.Active, f.Failover)
	r.path = path
	return r, nil
}

// Reload re-reads the profiles file. The current active profile is kept
// when it still exists; otherwise the file's choice (or the first profile)
// takes over. Rate-limit bookkeeping survives a reload.
func (r *Registry) Reload() error {
	r.mu.Lock()
	path := r.path
	r.mu.Unlock()
	if path == "" {
		return fmt.Errorf("registry was not loaded from a file")
	}

	f, err := readFile(path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.profiles = f.Profiles
	r.policy = f.Failover
	if _, ok := r.findLocked(r.active); !ok {
		r.active = f.Active
		if r.active == "" {
			r.active = f.Profiles[0].ID
		}
	}
	return nil
}

// Watch starts reloading the registry whenever its file changes. Returns
// without error when the watcher cannot be constructed; hot reload is an
// enhancement, not a requirement.
func (r *Registry) Watch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.path == "" || r.watcher != nil {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	// Watch the directory; editors replace files on save and a watch on
	// the old inode would go quiet.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return
	}

	r.watcher = watcher
	r.done = make(chan struct{})
	go r.watchLoop(watcher, r.done, r.path)
}

func (r *Registry) watchLoop(watcher *fsnotify.Watcher, done chan struct{}, path string) {
	base := filepath.Base(path)
	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Keep the last good set on a bad rewrite.
				_ = r.Reload()
			}
		case <-watcher.Errors:
			// Keep watching.
		}
	}
}

// Close stops the file watcher, if one is running.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcher == nil {
		return
	}
	close(r.done)
	r.watcher.Close()
	r.watcher = nil
}

// Save writes the current profile set, active pointer, and policy back to
// the registry's file.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return fmt.Errorf("registry was not loaded from a file")
	}
	return writeFile(r.path, fileFormat{
		Active:   r.active,
		Failover: r.policy,
		Profiles: r.profiles,
	})
}

// Active returns the active profile. ok is false when the pool is empty.
func (r *Registry) Active() (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(r.active)
}

// ActiveID returns the active profile's id, or "".
func (r *Registry) ActiveID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Get returns a profile by id.
func (r *Registry) Get(id string) (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(id)
}

// List returns the profiles in declaration order.
func (r *Registry) List() []Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Profile(nil), r.profiles...)
}

// Policy returns the failover policy.
func (r *Registry) Policy() Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy
}

// SetActive switches the active profile by operator request.
func (r *Registry) SetActive(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.findLocked(id); !ok {
		return fmt.Errorf("unknown profile %q", id)
	}
	r.active = id
	return nil
}

// MarkLimited records that a profile is rate-limited until the given time.
// Selection skips it until then.
func (r *Registry) MarkLimited(id string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.findLocked(id); !ok {
		return
	}
	r.limited[id] = until
}

// LimitedUntil returns the time a profile is limited until, if it is.
func (r *Registry) LimitedUntil(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	until, ok := r.limited[id]
	if !ok || !r.now().Before(until) {
		return time.Time{}, false
	}
	return until, true
}

// SwapForRateLimit is the reactive failover decision. Called when a run
// under limitedID was classified as rate-limited. The whole check-select-
// activate sequence runs under the registry lock, so concurrent callers
// observe each other's swaps.
//
// The swap fails with ok=false, mutating nothing, when failover is disabled,
// when the active profile has already moved away from limitedID (a
// concurrent swap won), or when no non-limited alternative exists. Candidate
// order is declaration order, which makes the tie-break deterministic for a
// fixed profile set.
func (r *Registry) SwapForRateLimit(limitedID string) (models.ProfileSwapDecision, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.policy.Enabled || !r.policy.OnRateLimit {
		return models.ProfileSwapDecision{}, false
	}
	if limitedID == "" {
		limitedID = r.active
	}
	if r.active != limitedID {
		return models.ProfileSwapDecision{}, false
	}

	now := r.now()
	for _, p := range r.profiles {
		if p.ID == limitedID {
			continue
		}
		if until, ok := r.limited[p.ID]; ok && now.Before(until) {
			continue
		}
		r.active = p.ID
		return models.ProfileSwapDecision{
			WasAutoSwapped: true,
			FromProfile:    limitedID,
			ToProfile:      p.ID,
			Reason:         models.SwapReasonReactive,
		}, true
	}
	return models.ProfileSwapDecision{}, false
}

// findLocked looks a profile up by id. Callers hold the lock.
func (r *Registry) findLocked(id string) (Profile, bool) {
	for _, p := range r.profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}
