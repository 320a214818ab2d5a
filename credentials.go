package kurirgo

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/ambiyansyah-risyal/kurirgo/internal/singleflight"
)

// credentialLeeway guards against attaching a token that expires while
// the request is on the wire.
const credentialLeeway = 10 * time.Second

// Credential is an opaque bearer token plus its expiry, when known.
type Credential struct {
	Token  string
	Expiry time.Time
}

// Valid reports whether the credential exists and has not expired. A zero
// expiry means the credential never expires by clock; it is replaced only
// when the endpoint rejects it.
func (c Credential) Valid() bool {
	if c.Token == "" {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(credentialLeeway).Before(c.Expiry)
}

// CredentialSource supplies and renews credentials. Credential returns
// the currently stored credential, which may be zero when none exists
// yet; Refresh obtains a fresh one from the issuing authority. Sources
// are never called concurrently for Refresh; the refresher serializes
// renewal.
type CredentialSource interface {
	Credential(ctx context.Context) (Credential, error)
	Refresh(ctx context.Context) (Credential, error)
}

// StaticCredentials returns a source with a fixed token that cannot be
// refreshed. An endpoint rejecting it surfaces a Refresh failure.
func StaticCredentials(token string) CredentialSource {
	return staticCredentials{token: token}
}

type staticCredentials struct {
	token string
}

func (s staticCredentials) Credential(ctx context.Context) (Credential, error) {
	return Credential{Token: s.token}, nil
}

func (s staticCredentials) Refresh(ctx context.Context) (Credential, error) {
	return Credential{}, errors.New("static credential cannot be refreshed")
}

// CredentialFuncs adapts plain functions to a CredentialSource. A nil
// Fetch starts with no credential so the first call triggers Renew.
type CredentialFuncs struct {
	Fetch func(ctx context.Context) (Credential, error)
	Renew func(ctx context.Context) (Credential, error)
}

// Credential implements CredentialSource.
func (f CredentialFuncs) Credential(ctx context.Context) (Credential, error) {
	if f.Fetch == nil {
		return Credential{}, nil
	}
	return f.Fetch(ctx)
}

// Refresh implements CredentialSource.
func (f CredentialFuncs) Refresh(ctx context.Context) (Credential, error) {
	if f.Renew == nil {
		return Credential{}, errors.New("no renew function configured")
	}
	return f.Renew(ctx)
}

// TokenSourceCredentials adapts an oauth2.TokenSource. The token source
// handles its own renewal internally, so both operations delegate to
// Token().
func TokenSourceCredentials(src oauth2.TokenSource) CredentialSource {
	return tokenSourceCredentials{src: src}
}

type tokenSourceCredentials struct {
	src oauth2.TokenSource
}

func (t tokenSourceCredentials) Credential(ctx context.Context) (Credential, error) {
	return t.token()
}

func (t tokenSourceCredentials) Refresh(ctx context.Context) (Credential, error) {
	return t.token()
}

func (t tokenSourceCredentials) token() (Credential, error) {
	tok, err := t.src.Token()
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: tok.AccessToken, Expiry: tok.Expiry}, nil
}

// CredentialRefresher caches the current credential and serializes
// renewal, so concurrent expiry signals collapse into a single upstream
// refresh whose outcome every caller observes.
type CredentialRefresher struct {
	source CredentialSource
	group  *singleflight.Group

	// onRefresh, when set, observes each actual renewal exactly once
	// with outcome "success" or "failure".
	onRefresh func(outcome string)

	mu      sync.Mutex
	current Credential
	fetched bool
}

// NewCredentialRefresher wraps source with caching and single-flight
// renewal.
func NewCredentialRefresher(source CredentialSource) *CredentialRefresher {
	return &CredentialRefresher{
		source: source,
		group:  singleflight.New(),
	}
}

const refresherKey = "credential"

// Token returns the current credential, fetching or renewing it when
// absent or expired. Concurrent callers share one fetch.
func (cr *CredentialRefresher) Token(ctx context.Context) (Credential, error) {
	cr.mu.Lock()
	if cr.fetched && cr.current.Valid() {
		cred := cr.current
		cr.mu.Unlock()
		return cred, nil
	}
	cr.mu.Unlock()

	v, err := cr.group.Do(ctx, refresherKey, func(ctx context.Context) (any, error) {
		cr.mu.Lock()
		if cr.fetched && cr.current.Valid() {
			cred := cr.current
			cr.mu.Unlock()
			return cred, nil
		}
		cr.mu.Unlock()

		cred, err := cr.source.Credential(ctx)
		if err == nil && cred.Valid() {
			cr.store(cred)
			return cred, nil
		}
		return cr.renew(ctx)
	})
	return cr.finish(ctx, v, err)
}

// Refresh renews the credential after an authorization rejection. stale
// is the credential the rejected attempt used: when another caller has
// already installed a different valid credential, that one is returned
// without a second renewal. Concurrent callers share one renewal and its
// outcome, success or failure.
func (cr *CredentialRefresher) Refresh(ctx context.Context, stale Credential) (Credential, error) {
	if fresh, ok := cr.fresher(stale); ok {
		return fresh, nil
	}

	v, err := cr.group.Do(ctx, refresherKey, func(ctx context.Context) (any, error) {
		if fresh, ok := cr.fresher(stale); ok {
			return fresh, nil
		}
		return cr.renew(ctx)
	})
	return cr.finish(ctx, v, err)
}

// fresher reports whether a credential newer than stale is already
// installed.
func (cr *CredentialRefresher) fresher(stale Credential) (Credential, bool) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if cr.fetched && cr.current.Valid() && cr.current.Token != stale.Token {
		return cr.current, true
	}
	return Credential{}, false
}

// renew performs one upstream refresh. It runs inside the single-flight
// group, so it executes at most once per renewal cycle.
func (cr *CredentialRefresher) renew(ctx context.Context) (Credential, error) {
	cred, err := cr.source.Refresh(ctx)
	if err != nil {
		if cr.onRefresh != nil {
			cr.onRefresh("failure")
		}
		return Credential{}, err
	}
	cr.store(cred)
	if cr.onRefresh != nil {
		cr.onRefresh("success")
	}
	return cred, nil
}

// finish classifies the shared outcome for one caller. A caller whose ctx
// ended while waiting gets its own Cancelled failure; a failed renewal
// surfaces as a Refresh failure to every waiter.
func (cr *CredentialRefresher) finish(ctx context.Context, v any, err error) (Credential, error) {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Credential{}, cancellationError(ctxErr)
		}
		return Credential{}, &Error{
			Type:      ErrorTypeRefresh,
			Message:   "credential refresh failed",
			Cause:     err,
			Timestamp: time.Now(),
		}
	}
	return v.(Credential), nil
}

// store installs cred as current, deriving a missing expiry from the
// token's exp claim when the token is a JWT.
func (cr *CredentialRefresher) store(cred Credential) {
	if cred.Expiry.IsZero() {
		if exp, ok := jwtExpiry(cred.Token); ok {
			cred.Expiry = exp
		}
	}
	cr.mu.Lock()
	cr.current = cred
	cr.fetched = true
	cr.mu.Unlock()
}

// jwtExpiry extracts the exp claim from a JWT access token so
// expiry-aware renewal works for sources that do not report expiry out of
// band. The signature is not verified; only the claims are read.
func jwtExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
