package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the process-level owner of every user's App. One
// coordinator process serves many users (§6.4: "one OS process can
// open as many [databases] as there are active users"); Registry is
// the lazy, concurrency-safe directory that turns a bare userID into
// a running *App, opening and starting it on first use and holding it
// open for the life of the process — the same lazy-singleton shape as
// accountholder.Registry one level up the tree.
type Registry struct {
	mu      sync.Mutex
	apps    map[string]*App
	dataDir string
	deps    Deps
	logger  zerolog.Logger
}

// NewRegistry builds an empty, unstarted registry rooted at dataDir.
func NewRegistry(dataDir string, deps Deps, logger zerolog.Logger) *Registry {
	return &Registry{
		apps:    map[string]*App{},
		dataDir: dataDir,
		deps:    deps,
		logger:  logger,
	}
}

// Get returns the running App for userID, opening and starting it on
// first call. Safe for concurrent use; a given userID is only ever
// opened once.
func (r *Registry) Get(ctx context.Context, userID string) (*App, error) {
	if userID == "" {
		return nil, fmt.Errorf("empty user id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.apps[userID]; ok {
		return a, nil
	}

	a, err := Open(r.dataDir, userID, r.deps)
	if err != nil {
		return nil, err
	}
	if err := a.Start(ctx, r.deps.ReconcileSchedule); err != nil {
		return nil, fmt.Errorf("start app for user %s: %w", userID, err)
	}
	r.apps[userID] = a
	r.logger.Info().Str("user_id", userID).Msg("user coordinator started")
	return a, nil
}

// StartKnownUsers opens and starts an App for every "<userID>.db" file
// already present under dataDir, so a restarted process resumes
// every previously-active user's pipelines without waiting for the
// first incoming request or queue message to name them.
func (r *Registry) StartKnownUsers(ctx context.Context) error {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read data dir %s: %w", r.dataDir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		userID := strings.TrimSuffix(e.Name(), ".db")
		if _, err := r.Get(ctx, userID); err != nil {
			return fmt.Errorf("resume user %s: %w", userID, err)
		}
	}
	return nil
}

// Users returns the set of currently-running user IDs.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.apps))
	for u := range r.apps {
		out = append(out, u)
	}
	return out
}

// Close stops every running App in the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for userID, a := range r.apps {
		a.Stop()
		r.logger.Info().Str("user_id", userID).Msg("user coordinator stopped")
	}
	r.apps = map[string]*App{}
}

// DataDir is exposed so callers (e.g. onboarding/account-linking,
// which is external-collaborator territory per spec.md §1) know where
// a new user's store will land without reaching into Registry's
// private fields.
func (r *Registry) DataDir() string { return filepath.Clean(r.dataDir) }
