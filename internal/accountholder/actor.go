// Package accountholder implements §4.6's per-account state holder:
// one single-writer actor per external account owning its encrypted
// tokens, sync cursor, and notification channel lease, shaped the same
// "channel of closures" way internal/coordinator owns a user's
// canonical store.
package accountholder

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/RamXX/tminus/internal/domain"
	"github.com/RamXX/tminus/internal/tminuserrors"
)

// refreshSkew is how far ahead of expiry a token is treated as already
// expired, so getAccessToken never hands out a token that dies mid-call.
const refreshSkew = 2 * time.Minute

// Store is the subset of internal/store's persistence API the holder
// needs.
type Store interface {
	GetAccountState(ctx context.Context, accountID string) (domain.AccountState, error)
	PutAccountState(ctx context.Context, a domain.AccountState) error
}

// TokenRefresher exchanges a refresh token for a new access token.
// Providers are out of scope per spec.md §1's Non-goals, so this is
// the injection seam a provider adapter would satisfy; tests supply a
// fake.
type TokenRefresher interface {
	Refresh(ctx context.Context, accountID string, refreshToken []byte) (accessToken []byte, expiresAt time.Time, err error)
}

// request is one closure queued onto the actor's channel.
type request struct {
	fn func(ctx context.Context)
}

// Actor is the single-writer holder for one external account's state.
type Actor struct {
	accountID string
	store     Store
	envelope  *Envelope
	refresher TokenRefresher
	limiter   *rate.Limiter
	logger    zerolog.Logger

	dek    []byte
	reqCh  chan request
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a holder for one account. ratePerSecond/burst size
// the outbound provider-call token bucket §4.6's rateLimit(cost) gates.
func New(accountID string, store Store, envelope *Envelope, refresher TokenRefresher, ratePerSecond float64, burst int, logger zerolog.Logger) *Actor {
	return &Actor{
		accountID: accountID,
		store:     store,
		envelope:  envelope,
		refresher: refresher,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		logger:    logger.With().Str("component", "accountholder").Str("account_id", accountID).Logger(),
		reqCh:     make(chan request, 64),
	}
}

// Start loads (or, for a brand-new account, mints) the account's DEK
// into memory and launches the actor goroutine.
func (a *Actor) Start(ctx context.Context) error {
	state, err := a.store.GetAccountState(ctx, a.accountID)
	if err != nil {
		if _, ok := err.(*tminuserrors.NotFoundError); !ok {
			return err
		}
		dek, wrapped, genErr := a.envelope.GenerateDEK(a.accountID)
		if genErr != nil {
			return genErr
		}
		a.dek = dek
		state = domain.AccountState{
			AccountID:    a.accountID,
			EncryptedDEK: wrapped,
			Active:       true,
		}
		if putErr := a.store.PutAccountState(ctx, state); putErr != nil {
			return putErr
		}
	} else {
		dek, unwrapErr := a.envelope.UnwrapDEK(a.accountID, state.EncryptedDEK)
		if unwrapErr != nil {
			return unwrapErr
		}
		a.dek = dek
	}

	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.run(ctx)
	a.logger.Info().Msg("account holder started")
	return nil
}

// Stop cancels the actor and waits for the in-flight request to finish.
func (a *Actor) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info().Msg("account holder stopped")
}

func (a *Actor) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-a.reqCh:
			req.fn(ctx)
		}
	}
}

func (a *Actor) do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	req := request{fn: func(actorCtx context.Context) {
		done <- fn(actorCtx)
	}}
	select {
	case a.reqCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SeedTokens stores an account's initial access/refresh token pair,
// encrypted under the account's DEK. Called once, at account link time.
func (a *Actor) SeedTokens(ctx context.Context, accessToken, refreshToken string, accessExpiresAt time.Time) error {
	return a.do(ctx, func(ctx context.Context) error {
		state, err := a.store.GetAccountState(ctx, a.accountID)
		if err != nil {
			return err
		}
		encAccess, err := Seal(a.dek, []byte(accessToken))
		if err != nil {
			return err
		}
		encRefresh, err := Seal(a.dek, []byte(refreshToken))
		if err != nil {
			return err
		}
		state.EncryptedAccessToken = encAccess
		state.EncryptedRefreshToken = encRefresh
		state.AccessTokenExpiresAt = accessExpiresAt
		state.Active = true
		return a.store.PutAccountState(ctx, state)
	})
}

// GetAccessToken decrypts the stored access token, transparently
// refreshing it first if it is expired or within refreshSkew of
// expiring. Returns AuthRevokedError if the refresh yields a terminal
// failure — the refresh token never leaves this method.
func (a *Actor) GetAccessToken(ctx context.Context) (string, error) {
	var token string
	err := a.do(ctx, func(ctx context.Context) error {
		state, err := a.store.GetAccountState(ctx, a.accountID)
		if err != nil {
			return err
		}
		if !state.Active {
			return &tminuserrors.AuthRevokedError{AccountID: a.accountID, Reason: "account inactive"}
		}

		if time.Now().Add(refreshSkew).Before(state.AccessTokenExpiresAt) {
			access, err := Open(a.dek, state.EncryptedAccessToken)
			if err != nil {
				return err
			}
			token = string(access)
			return nil
		}

		refreshToken, err := Open(a.dek, state.EncryptedRefreshToken)
		if err != nil {
			return err
		}
		access, expiresAt, err := a.refresher.Refresh(ctx, a.accountID, refreshToken)
		if err != nil {
			state.Active = false
			_ = a.store.PutAccountState(ctx, state)
			return &tminuserrors.AuthRevokedError{AccountID: a.accountID, Reason: err.Error()}
		}
		encAccess, err := Seal(a.dek, access)
		if err != nil {
			return err
		}
		state.EncryptedAccessToken = encAccess
		state.AccessTokenExpiresAt = expiresAt
		if err := a.store.PutAccountState(ctx, state); err != nil {
			return err
		}
		token = string(access)
		return nil
	})
	return token, err
}

// GetSyncCursor returns the account's last-committed sync cursor.
func (a *Actor) GetSyncCursor(ctx context.Context) (string, error) {
	var cursor string
	err := a.do(ctx, func(ctx context.Context) error {
		state, err := a.store.GetAccountState(ctx, a.accountID)
		if err != nil {
			return err
		}
		cursor = state.SyncCursor
		return nil
	})
	return cursor, err
}

// SetSyncCursor commits a new cursor and success timestamp; only the
// provider→canonical consumer calls this, and only after the
// coordinator has durably applied the corresponding delta.
func (a *Actor) SetSyncCursor(ctx context.Context, cursor string, successTS time.Time) error {
	return a.do(ctx, func(ctx context.Context) error {
		state, err := a.store.GetAccountState(ctx, a.accountID)
		if err != nil {
			return err
		}
		state.SyncCursor = cursor
		state.LastSuccessAt = successTS
		return a.store.PutAccountState(ctx, state)
	})
}

// RegisterChannel records a newly created provider push-notification
// channel.
func (a *Actor) RegisterChannel(ctx context.Context, channelID, resourceID string, expiresAt time.Time) error {
	return a.do(ctx, func(ctx context.Context) error {
		state, err := a.store.GetAccountState(ctx, a.accountID)
		if err != nil {
			return err
		}
		state.ChannelID = channelID
		state.ResourceID = resourceID
		state.ChannelExpiresAt = expiresAt
		return a.store.PutAccountState(ctx, state)
	})
}

// RenewChannel is RegisterChannel's alias for the cron-driven renewal
// path — same persistence, different caller intent.
func (a *Actor) RenewChannel(ctx context.Context, channelID, resourceID string, expiresAt time.Time) error {
	return a.RegisterChannel(ctx, channelID, resourceID, expiresAt)
}

// ExpireChannel clears a channel lease, e.g. after a renewal failure.
func (a *Actor) ExpireChannel(ctx context.Context) error {
	return a.do(ctx, func(ctx context.Context) error {
		state, err := a.store.GetAccountState(ctx, a.accountID)
		if err != nil {
			return err
		}
		state.ChannelID = ""
		state.ResourceID = ""
		state.ChannelExpiresAt = time.Time{}
		return a.store.PutAccountState(ctx, state)
	})
}

// RateLimit blocks until cost tokens are available in the account's
// outbound-call bucket, or ctx is done. It does not funnel through the
// actor channel — the limiter is already safe for concurrent use and
// gating it on the single-writer channel would serialize unrelated
// concurrent provider calls for no benefit.
func (a *Actor) RateLimit(ctx context.Context, cost int) error {
	return a.limiter.WaitN(ctx, cost)
}

// Deactivate marks the account inactive, halting GetAccessToken and
// excluding it from internal/reconcile's active-account sweep.
func (a *Actor) Deactivate(ctx context.Context) error {
	return a.do(ctx, func(ctx context.Context) error {
		state, err := a.store.GetAccountState(ctx, a.accountID)
		if err != nil {
			return err
		}
		state.Active = false
		return a.store.PutAccountState(ctx, state)
	})
}
