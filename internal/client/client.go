package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skolbridge/skolbridge/internal/domain/children"
	"github.com/skolbridge/skolbridge/internal/domain/shared"
	"github.com/skolbridge/skolbridge/internal/infrastructure/external/bakalari"
)

// ══════════════════════════════════════════════════════════════════════════════
// POLL CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// PollContextConfig contains configuration for the shared polling state.
type PollContextConfig struct {
	// Options is the options store holding child records and tokens.
	Options children.OptionsRepository

	// Bus publishes auth and rotation events.
	Bus shared.EventPublisher

	// HTTPTimeout is the remote request timeout for new sessions.
	HTTPTimeout time.Duration

	// RateLimiter configures per-session rate limiting.
	RateLimiter bakalari.RateLimiterConfig

	// CircuitBreaker configures per-session fault tolerance.
	CircuitBreaker bakalari.CircuitBreakerConfig

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultPollContextConfig returns sensible defaults.
func DefaultPollContextConfig(options children.OptionsRepository, bus shared.EventPublisher) PollContextConfig {
	return PollContextConfig{
		Options:        options,
		Bus:            bus,
		HTTPTimeout:    30 * time.Second,
		RateLimiter:    bakalari.DefaultRateLimiterConfig(),
		CircuitBreaker: bakalari.DefaultCircuitBreakerConfig(),
	}
}

// PollContext is the shared state every authenticated client references.
// It replaces module-level globals: the process-wide fetch lock, the
// options-update lock, and the per-child reauth suppression flags all live
// here.
//
// The fetch lock is shared across all children. Remote hosts rate-limit
// per source address, so one fetch at a time process-wide keeps the
// integration a polite citizen. It is held around the remote call only,
// never across the token save.
type PollContext struct {
	options children.OptionsRepository
	bus     shared.EventPublisher
	logger  *slog.Logger

	httpTimeout    time.Duration
	rateLimiter    bakalari.RateLimiterConfig
	circuitBreaker bakalari.CircuitBreakerConfig

	// fetchMu serializes remote fetches across all children.
	fetchMu sync.Mutex

	// updateMu serializes options writes. Token saves re-read the record
	// fresh under this lock so rotations from concurrent cycles never
	// clobber each other.
	updateMu sync.Mutex

	// reauthMu guards reauthRequested. A child gets exactly one
	// reauth-required event per authentication episode; the flag clears
	// when a token save proves credentials work again.
	reauthMu        sync.Mutex
	reauthRequested map[children.Key]bool
}

// NewPollContext creates the shared polling state.
func NewPollContext(config PollContextConfig) *PollContext {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 30 * time.Second
	}

	return &PollContext{
		options:         config.Options,
		bus:             config.Bus,
		logger:          config.Logger,
		httpTimeout:     config.HTTPTimeout,
		rateLimiter:     config.RateLimiter,
		circuitBreaker:  config.CircuitBreaker,
		reauthRequested: make(map[children.Key]bool),
	}
}

// requestReauth emits one reauth-required event per authentication
// episode. Repeated auth failures for the same child are suppressed until
// the episode ends.
func (pc *PollContext) requestReauth(child children.Child, reason string) {
	pc.reauthMu.Lock()
	already := pc.reauthRequested[child.Key]
	pc.reauthRequested[child.Key] = true
	pc.reauthMu.Unlock()

	if already {
		return
	}

	pc.logger.Warn("re-authentication required",
		"child", child.String(),
		"reason", reason,
	)
	if pc.bus != nil {
		event := shared.NewReauthRequiredEvent(string(child.Key), child.DisplayName, child.Server, reason)
		if err := pc.bus.Publish(event); err != nil {
			pc.logger.Error("failed to publish reauth event", "error", err)
		}
	}
}

// clearReauth ends the child's authentication episode.
func (pc *PollContext) clearReauth(key children.Key) {
	pc.reauthMu.Lock()
	delete(pc.reauthRequested, key)
	pc.reauthMu.Unlock()
}

// ReauthPending reports whether the child is waiting for new credentials.
func (pc *PollContext) ReauthPending(key children.Key) bool {
	pc.reauthMu.Lock()
	defer pc.reauthMu.Unlock()
	return pc.reauthRequested[key]
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATED CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// AuthenticatedClient wraps one child's remote session. The session is
// created lazily from a fresh options read and dropped whenever the
// remote side rejects its credentials; the next call rebuilds it from
// whatever tokens the options store holds by then.
type AuthenticatedClient struct {
	pc    *PollContext
	child children.Child

	// slot is the child's key in the options store.
	slot string

	mu      sync.Mutex
	session *bakalari.Session
}

// NewAuthenticatedClient creates a client for one child.
func NewAuthenticatedClient(pc *PollContext, child children.Child, slot string) *AuthenticatedClient {
	return &AuthenticatedClient{
		pc:    pc,
		child: child,
		slot:  slot,
	}
}

// Child returns the wrapped child.
func (c *AuthenticatedClient) Child() children.Child {
	return c.child
}

// resetSession drops the cached session.
func (c *AuthenticatedClient) resetSession() {
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
}

// acquireSession returns the cached session or builds one from the given
// record. Double-checked so concurrent coordinators share one session.
func (c *AuthenticatedClient) acquireSession(record children.Record) (*bakalari.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}

	config := bakalari.SessionConfig{
		Server: record.Server,
		Credentials: bakalari.Credentials{
			UserID:       record.UserID,
			Username:     record.Username,
			AccessToken:  record.AccessToken,
			RefreshToken: record.RefreshToken,
		},
		Timeout:              c.pc.httpTimeout,
		RateLimiterConfig:    c.pc.rateLimiter,
		CircuitBreakerConfig: c.pc.circuitBreaker,
		Logger:               c.pc.logger,
	}
	session, err := bakalari.NewSession(config)
	if err != nil {
		return nil, err
	}
	c.session = session
	return session, nil
}

// saveTokensIfChanged persists a rotated token pair. The record is
// re-read fresh under the update lock so a concurrent save from another
// coordinator is never overwritten with stale values.
func (c *AuthenticatedClient) saveTokensIfChanged(ctx context.Context, access, refresh, prevAccess, prevRefresh string) {
	if access == prevAccess && refresh == prevRefresh {
		return
	}

	c.pc.updateMu.Lock()
	defer c.pc.updateMu.Unlock()

	current, err := c.pc.options.Child(ctx, c.slot)
	if err != nil {
		c.pc.logger.Error("token save: fresh record read failed",
			"child", c.child.String(), "error", err)
		return
	}
	if current.AccessToken == access && current.RefreshToken == refresh {
		return
	}

	if err := c.pc.options.UpdateTokens(ctx, c.slot, access, refresh); err != nil {
		c.pc.logger.Error("token save failed", "child", c.child.String(), "error", err)
		return
	}

	c.pc.clearReauth(c.child.Key)
	c.pc.logger.Debug("token pair persisted", "child", c.child.String())
	if c.pc.bus != nil {
		event := shared.NewTokensRotatedEvent(string(c.child.Key), c.child.Server)
		if err := c.pc.bus.Publish(event); err != nil {
			c.pc.logger.Error("failed to publish rotation event", "error", err)
		}
	}
}

// clearTokens wipes the child's stored tokens after the remote side
// rejected them, re-reading the record fresh under the update lock.
func (c *AuthenticatedClient) clearTokens(ctx context.Context) {
	c.pc.updateMu.Lock()
	defer c.pc.updateMu.Unlock()

	if err := c.pc.options.ClearTokens(ctx, c.slot); err != nil {
		c.pc.logger.Error("token clear failed", "child", c.child.String(), "error", err)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CALL ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// CallSpec describes one remote operation for the Call envelope.
type CallSpec[T any] struct {
	// Op names the operation in logs.
	Op string

	// Default is returned whenever the call cannot complete.
	Default T

	// Do performs the remote operation against an authenticated session.
	Do func(ctx context.Context, session *bakalari.Session) (T, error)
}

// Call runs one remote operation through the full authentication
// envelope: fresh credential resolve, fail-fast on missing tokens, lazy
// session, serialized fetch, auth-error handling with per-episode reauth
// requests, and token-rotation persistence. It never propagates an error
// to the caller; any failure yields spec.Default. Callers that need
// to distinguish failure use a pointer default and test for nil.
func Call[T any](ctx context.Context, c *AuthenticatedClient, spec CallSpec[T]) T {
	logger := c.pc.logger.With("op", spec.Op, "child", c.child.String())

	record, err := c.pc.options.Child(ctx, c.slot)
	if err != nil {
		logger.Warn("credential resolve failed", "error", err)
		return spec.Default
	}

	if !record.HasTokens() {
		c.resetSession()
		c.pc.requestReauth(c.child, "missing_credentials: "+spec.Op)
		return spec.Default
	}

	session, err := c.acquireSession(record)
	if err != nil {
		logger.Warn("session construction failed", "error", err)
		c.pc.requestReauth(c.child, "missing_credentials: "+spec.Op)
		return spec.Default
	}

	prevAccess, prevRefresh := session.Tokens()

	c.pc.fetchMu.Lock()
	result, err := spec.Do(ctx, session)
	c.pc.fetchMu.Unlock()

	if err != nil && bakalari.IsAuthError(err) {
		logger.Warn("authentication rejected", "error", err)
		c.resetSession()
		c.clearTokens(ctx)
		c.pc.requestReauth(c.child, err.Error())
		return spec.Default
	}

	// The session may have rotated the token pair mid-call even when the
	// retried request then failed. A rotated refresh token is single-use
	// on the remote side, so the new pair must be persisted on every
	// outcome or a restart would rebuild the session from dead
	// credentials.
	access, refresh := session.Tokens()
	c.saveTokensIfChanged(ctx, access, refresh, prevAccess, prevRefresh)

	if err != nil {
		logger.Warn("remote call failed", "error", err)
		return spec.Default
	}

	return result
}
