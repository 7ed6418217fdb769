// Package provideradapter holds the seam between T-Minus's
// provider-agnostic core and an actual calendar provider. A concrete
// client (Google Calendar, Microsoft Graph, CalDAV, ...) is out of
// scope per spec.md §1's Non-goals — this package supplies only an
// Unconfigured stub satisfying every adapter interface the core
// depends on (accountholder.TokenRefresher, consumer.ProviderClient,
// writer.ProviderWriter, reconcile.ProviderClient), so a process can
// wire up and boot without one, and fails loudly if a pipeline
// actually tries to reach a provider.
package provideradapter

import (
	"context"
	"time"

	"github.com/RamXX/tminus/internal/coordinator"
	"github.com/RamXX/tminus/internal/queue"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// Unconfigured implements every provider-facing interface in the
// codebase with a ProviderFatalError, so a deployment missing a real
// client fails each sync/write attempt visibly (DLQ'd per §7) rather
// than silently doing nothing.
type Unconfigured struct{}

var errNoProvider = &tminuserrors.ProviderFatalError{Cause: errNotConfigured{}}

type errNotConfigured struct{}

func (errNotConfigured) Error() string {
	return "no calendar provider client configured"
}

func (Unconfigured) Refresh(ctx context.Context, accountID string, refreshToken []byte) ([]byte, time.Time, error) {
	return nil, time.Time{}, errNoProvider
}

func (Unconfigured) FetchIncremental(ctx context.Context, accessToken, cursor string) ([]coordinator.ProviderDelta, string, error) {
	return nil, "", errNoProvider
}

func (Unconfigured) FetchFull(ctx context.Context, accessToken string) ([]coordinator.ProviderDelta, string, error) {
	return nil, "", errNoProvider
}

func (Unconfigured) CreateEvent(ctx context.Context, accessToken, calendarID string, payload queue.ProjectedEvent) (string, error) {
	return "", errNoProvider
}

func (Unconfigured) PatchEvent(ctx context.Context, accessToken, calendarID, providerEventID string, payload queue.ProjectedEvent) error {
	return errNoProvider
}

func (Unconfigured) DeleteEvent(ctx context.Context, accessToken, calendarID, providerEventID string) error {
	return errNoProvider
}
