package bakalari

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/skolbridge/skolbridge/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Credentials carries the per-child token pair used by a session.
type Credentials struct {
	// UserID is the account identifier on the server.
	UserID string

	// Username is the login name, used only for the password login flow.
	Username string

	// AccessToken is the current access token.
	AccessToken string

	// RefreshToken is the current refresh token.
	RefreshToken string
}

// HasAny reports whether at least one token is present.
func (c Credentials) HasAny() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}

// SessionConfig contains configuration for one child's API session.
type SessionConfig struct {
	// Server is the base URL of the school server.
	Server string

	// Credentials is the initial token pair.
	Credentials Credentials

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimiterConfig for API rate limiting.
	RateLimiterConfig RateLimiterConfig

	// CircuitBreakerConfig for fault tolerance.
	CircuitBreakerConfig CircuitBreakerConfig

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultSessionConfig returns sensible defaults for a server.
func DefaultSessionConfig(server string, creds Credentials) SessionConfig {
	return SessionConfig{
		Server:               strings.TrimRight(server, "/"),
		Credentials:          creds,
		Timeout:              30 * time.Second,
		RateLimiterConfig:    DefaultRateLimiterConfig(),
		CircuitBreakerConfig: DefaultCircuitBreakerConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is one child's authenticated connection to a school server. It
// owns the token pair, refreshes it transparently when the access token is
// rejected, and exposes the rotated pair through Tokens() so callers can
// persist it.
type Session struct {
	server         string
	httpClient     *http.Client
	logger         *slog.Logger
	rateLimiter    *RateLimiter
	circuitBreaker *CircuitBreaker

	credMu    sync.RWMutex
	creds     Credentials
	refreshMu sync.Mutex
}

// NewSession creates a session for one child. Fails with
// ErrMissingCredentials when neither token is present; callers must route
// such children to re-authentication instead of constructing a session.
func NewSession(config SessionConfig) (*Session, error) {
	if !config.Credentials.HasAny() {
		return nil, ErrMissingCredentials
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Session{
		server: strings.TrimRight(config.Server, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:         config.Logger,
		rateLimiter:    NewRateLimiter(config.RateLimiterConfig),
		circuitBreaker: NewCircuitBreaker(config.CircuitBreakerConfig),
		creds:          config.Credentials,
	}, nil
}

// Tokens returns the current token pair. Callers compare this against a
// snapshot taken at session acquisition to detect rotation.
func (s *Session) Tokens() (access, refresh string) {
	s.credMu.RLock()
	defer s.credMu.RUnlock()
	return s.creds.AccessToken, s.creds.RefreshToken
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGIN & TOKEN REFRESH
// ══════════════════════════════════════════════════════════════════════════════

// Login exchanges a username/password for a fresh token pair. Used by the
// programmatic child-enrollment flow, never during polling.
func (s *Session) Login(ctx context.Context, username, password string) error {
	form := url.Values{
		"client_id":  {"ANDR"},
		"grant_type": {"password"},
		"username":   {username},
		"password":   {password},
	}
	token, err := s.requestToken(ctx, form)
	if err != nil {
		return err
	}

	s.credMu.Lock()
	s.creds.Username = username
	s.creds.AccessToken = token.AccessToken
	s.creds.RefreshToken = token.RefreshToken
	if token.UserID != "" {
		s.creds.UserID = token.UserID
	}
	s.credMu.Unlock()
	return nil
}

// refreshTokens exchanges the refresh token for a new pair. Serialized so
// two concurrent 401s trigger only one exchange: the second caller
// observes the already-rotated pair and returns.
func (s *Session) refreshTokens(ctx context.Context, staleAccess string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.credMu.RLock()
	current := s.creds
	s.credMu.RUnlock()

	if current.AccessToken != staleAccess {
		// Another caller already refreshed.
		return nil
	}
	if current.RefreshToken == "" {
		return ErrInvalidRefreshToken
	}

	form := url.Values{
		"client_id":     {"ANDR"},
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
	}
	token, err := s.requestToken(ctx, form)
	if err != nil {
		return err
	}

	s.credMu.Lock()
	s.creds.AccessToken = token.AccessToken
	s.creds.RefreshToken = token.RefreshToken
	s.credMu.Unlock()

	s.logger.Debug("token pair rotated", "user_id", current.UserID)
	return nil
}

// requestToken posts a form to the login endpoint and decodes the token
// response, mapping error codes onto the closed auth-error set.
func (s *Session) requestToken(ctx context.Context, form url.Values) (*TokenResponseDTO, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server+"/api/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("bakalari: create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bakalari: login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("bakalari: read login response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody ErrorResponseDTO
		_ = json.Unmarshal(body, &errBody)
		if authErr := asAuthError(errBody.Error); authErr != nil {
			return nil, authErr
		}
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			// The exchange was rejected without a recognizable code;
			// the refresh token is not coming back.
			return nil, ErrInvalidRefreshToken
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Code: errBody.Error, Message: errBody.ErrorDescription}
	}

	var token TokenResponseDTO
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("bakalari: parse token response: %w", err)
	}
	return &token, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchMarks fetches all marks within the given date window.
func (s *Session) FetchMarks(ctx context.Context, from, to time.Time) (*MarksResponseDTO, error) {
	params := url.Values{
		"from": {timeutil.FormatDateStr(from)},
		"to":   {timeutil.FormatDateStr(to)},
	}

	var out MarksResponseDTO
	if err := s.doRequest(ctx, http.MethodGet, "/api/3/marks?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchMessages fetches received Komens messages within the date window.
func (s *Session) FetchMessages(ctx context.Context, from, to time.Time) (*MessagesResponseDTO, error) {
	params := url.Values{
		"from": {timeutil.FormatDateStr(from)},
		"to":   {timeutil.FormatDateStr(to)},
	}

	var out MessagesResponseDTO
	if err := s.doRequest(ctx, http.MethodPost, "/api/3/komens/messages/received?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchNoticeboard fetches the noticeboard bulletins.
func (s *Session) FetchNoticeboard(ctx context.Context) (*MessagesResponseDTO, error) {
	var out MessagesResponseDTO
	if err := s.doRequest(ctx, http.MethodPost, "/api/3/komens/messages/noticeboard", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchTimetableActual fetches the actual timetable for the week containing
// the given date.
func (s *Session) FetchTimetableActual(ctx context.Context, date time.Time) (*TimetableResponseDTO, error) {
	params := url.Values{"date": {timeutil.FormatDateStr(date)}}

	var out TimetableResponseDTO
	if err := s.doRequest(ctx, http.MethodGet, "/api/3/timetable/actual?"+params.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchTimetablePermanent fetches the permanent timetable.
func (s *Session) FetchTimetablePermanent(ctx context.Context) (*TimetableResponseDTO, error) {
	var out TimetableResponseDTO
	if err := s.doRequest(ctx, http.MethodGet, "/api/3/timetable/permanent", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// doRequest performs an authenticated request with rate limiting and
// circuit breaking. A rejected access token triggers one transparent
// refresh followed by a single retry; a second rejection surfaces as a
// terminal auth error.
func (s *Session) doRequest(ctx context.Context, method, path string, result interface{}) error {
	if err := s.circuitBreaker.Allow(); err != nil {
		return err
	}

	err := s.doAuthenticated(ctx, method, path, result)
	if err == nil {
		s.circuitBreaker.RecordSuccess()
		return nil
	}

	if errors.Is(err, ErrInvalidToken) {
		access, _ := s.Tokens()
		if refreshErr := s.refreshTokens(ctx, access); refreshErr != nil {
			s.circuitBreaker.RecordFailure()
			return refreshErr
		}
		if retryErr := s.doAuthenticated(ctx, method, path, result); retryErr != nil {
			s.circuitBreaker.RecordFailure()
			return retryErr
		}
		s.circuitBreaker.RecordSuccess()
		return nil
	}

	if !IsAuthError(err) {
		s.circuitBreaker.RecordFailure()
	}
	return err
}

// doAuthenticated performs a single request with the current access token.
func (s *Session) doAuthenticated(ctx context.Context, method, path string, result interface{}) error {
	if err := s.rateLimiter.Allow(ctx); err != nil {
		return err
	}

	access, _ := s.Tokens()
	if access == "" {
		return ErrInvalidToken
	}

	req, err := http.NewRequestWithContext(ctx, method, s.server+path, nil)
	if err != nil {
		return fmt.Errorf("bakalari: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("bakalari: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("bakalari: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		s.rateLimiter.RecordRateLimitHit()
		return &APIError{StatusCode: resp.StatusCode, Message: "rate limit exceeded"}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		var errBody ErrorResponseDTO
		_ = json.Unmarshal(body, &errBody)
		if authErr := asAuthError(errBody.Error); authErr != nil {
			return authErr
		}
		return ErrInvalidToken
	}

	if resp.StatusCode >= 400 {
		var errBody ErrorResponseDTO
		_ = json.Unmarshal(body, &errBody)
		return &APIError{StatusCode: resp.StatusCode, Code: errBody.Error, Message: errBody.ErrorDescription}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("bakalari: unmarshal response: %w", err)
		}
	}
	return nil
}
