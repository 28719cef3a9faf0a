package session

import (
	"net/http"
	"strings"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/google/uuid"
)

const (
	HeaderSessionID = "X-Session-ID"
	QuerySessionID  = "session_id"
	QueryToken      = "token"
)

// Identity is what a request claims to be before resolution.
type Identity struct {
	UserID    string
	SessionID string
}

// Resolve picks the cart owner for id. An authenticated user always wins
// over a guest session carried alongside it.
func Resolve(id Identity) (domain.Owner, error) {
	if id.UserID != "" {
		return domain.UserOwner(id.UserID), nil
	}
	if id.SessionID != "" {
		return domain.SessionOwner(id.SessionID), nil
	}
	return domain.Owner{}, domain.ErrNoIdentity
}

func NewSessionID() string {
	return uuid.NewString()
}

type Resolver struct {
	verifier *TokenVerifier
}

func NewResolver(verifier *TokenVerifier) *Resolver {
	return &Resolver{verifier: verifier}
}

// Identify extracts the identity from r. A bearer token that does not verify
// is an error, not a fallback to the guest session.
func (res *Resolver) Identify(r *http.Request) (Identity, error) {
	var id Identity

	if raw := bearerToken(r); raw != "" {
		userID, err := res.verifier.Verify(raw)
		if err != nil {
			return Identity{}, err
		}
		id.UserID = userID
	}

	id.SessionID = strings.TrimSpace(r.Header.Get(HeaderSessionID))
	if id.SessionID == "" {
		id.SessionID = strings.TrimSpace(r.URL.Query().Get(QuerySessionID))
	}
	return id, nil
}

func (res *Resolver) FromRequest(r *http.Request) (domain.Owner, error) {
	id, err := res.Identify(r)
	if err != nil {
		return domain.Owner{}, err
	}
	return Resolve(id)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	// browsers cannot set headers on a WebSocket upgrade
	return r.URL.Query().Get(QueryToken)
}
