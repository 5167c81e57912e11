// Package session keeps per-visitor client state (authentication token,
// locale and cart) in a server-side store keyed by a session id.
package session

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/xenking/lotto-share/internal/domain/cart"
	"github.com/xenking/lotto-share/internal/domain/otp"
)

// CookieName is the HTTP cookie carrying the session id.
const CookieName = "lotto_session"

// Storage keys.
const (
	TokenKey  = "authentication-token"
	LocaleKey = "locale"
)

// DefaultLocale is used when the visitor never picked one.
const DefaultLocale = "en"

// SupportedLocales lists the locales the client ships translations for.
var SupportedLocales = []string{"en", "hi"}

// ErrUnsupportedLocale is returned by SetLocale for unknown locales.
var ErrUnsupportedLocale = errors.New("unsupported locale")

// Store is a session-scoped key/value store. Get returns nil and no error
// for missing keys. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id uuid.UUID, key string) ([]byte, error)
	Set(ctx context.Context, id uuid.UUID, key string, value []byte) error
	Delete(ctx context.Context, id uuid.UUID, keys ...string) error
}

// State is the state container of one session.
type State struct {
	id    uuid.UUID
	store Store
	clock clockwork.Clock
}

// New returns the State of session id.
func New(id uuid.UUID, store Store, clock clockwork.Clock) *State {
	return &State{id: id, store: store, clock: clock}
}

// ID returns the session id.
func (s *State) ID() uuid.UUID {
	return s.id
}

// Token returns the authentication token, or an empty string when there is
// none or it has expired. Expired tokens are removed from the store.
func (s *State) Token(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, s.id, TokenKey)
	if err != nil {
		return "", errors.Wrap(err, "get token")
	}
	token := string(raw)
	if token == "" {
		return "", nil
	}

	if exp, ok := TokenExpiry(token); ok && !s.clock.Now().Before(exp) {
		if err := s.store.Delete(ctx, s.id, TokenKey); err != nil {
			return "", errors.Wrap(err, "drop expired token")
		}
		return "", nil
	}
	return token, nil
}

// Authenticated reports whether the session holds a live token.
func (s *State) Authenticated(ctx context.Context) (bool, error) {
	token, err := s.Token(ctx)
	return token != "", err
}

// SetToken stores the authentication token.
func (s *State) SetToken(ctx context.Context, token string) error {
	if err := s.store.Set(ctx, s.id, TokenKey, []byte(token)); err != nil {
		return errors.Wrap(err, "set token")
	}
	return nil
}

// ClearAuth forgets the authentication token. The cart and locale survive so
// the visitor can log in again and continue.
func (s *State) ClearAuth(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.id, TokenKey); err != nil {
		return errors.Wrap(err, "clear token")
	}
	return nil
}

// Locale returns the selected locale or DefaultLocale.
func (s *State) Locale(ctx context.Context) (string, error) {
	raw, err := s.store.Get(ctx, s.id, LocaleKey)
	if err != nil {
		return "", errors.Wrap(err, "get locale")
	}
	if !slices.Contains(SupportedLocales, string(raw)) {
		return DefaultLocale, nil
	}
	return string(raw), nil
}

// SetLocale stores a supported locale.
func (s *State) SetLocale(ctx context.Context, locale string) error {
	if !slices.Contains(SupportedLocales, locale) {
		return errors.Wrapf(ErrUnsupportedLocale, "%q", locale)
	}
	if err := s.store.Set(ctx, s.id, LocaleKey, []byte(locale)); err != nil {
		return errors.Wrap(err, "set locale")
	}
	return nil
}

// Cart loads the session cart. Callers hold the session lock while mutating it.
func (s *State) Cart(ctx context.Context) (*cart.Cart, error) {
	return cart.Load(ctx, scoped{id: s.id, store: s.store})
}

// Now returns the session clock time.
func (s *State) Now() time.Time {
	return s.clock.Now()
}

// scoped binds a Store to one session for packages that only know keys.
type scoped struct {
	id    uuid.UUID
	store Store
}

func (s scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.store.Get(ctx, s.id, key)
}

func (s scoped) Set(ctx context.Context, key string, value []byte) error {
	return s.store.Set(ctx, s.id, key, value)
}

// OTPWindow returns the window of the last OTP sent in this session, or nil.
func (s *State) OTPWindow(ctx context.Context) (*otp.Window, error) {
	raw, err := s.store.Get(ctx, s.id, otp.SessionKey)
	if err != nil {
		return nil, errors.Wrap(err, "get otp window")
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var w otp.Window
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, "decode otp window")
	}
	return &w, nil
}

// SetOTPWindow replaces the OTP window.
func (s *State) SetOTPWindow(ctx context.Context, w otp.Window) error {
	raw, err := json.Marshal(w)
	if err != nil {
		return errors.Wrap(err, "encode otp window")
	}
	if err := s.store.Set(ctx, s.id, otp.SessionKey, raw); err != nil {
		return errors.Wrap(err, "set otp window")
	}
	return nil
}

// ClearOTPWindow forgets the OTP window once the flow is complete.
func (s *State) ClearOTPWindow(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.id, otp.SessionKey); err != nil {
		return errors.Wrap(err, "clear otp window")
	}
	return nil
}
