package gateway

import (
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"

	"github.com/soyeahso/chatdesk/internal/config"
	"github.com/soyeahso/chatdesk/internal/domain"
)

// IdentityResolver maps bearer tokens onto chat identities using the
// configured user table. It doubles as the user directory for display
// names and notification addresses.
type IdentityResolver struct {
	users []credential
	byID  map[string]domain.Identity
}

type credential struct {
	token string
	id    domain.Identity
}

// NewIdentityResolver builds a resolver from the gateway auth config.
func NewIdentityResolver(cfg config.GatewayAuth) *IdentityResolver {
	r := &IdentityResolver{byID: make(map[string]domain.Identity, len(cfg.Users))}
	for _, u := range cfg.Users {
		if u.ID == "" || u.Token == "" {
			continue
		}
		id := domain.Identity{UserID: u.ID, Name: u.Name, Email: u.Email, Agent: u.Agent}
		r.users = append(r.users, credential{token: u.Token, id: id})
		r.byID[u.ID] = id
	}
	return r
}

// Resolve returns the identity for token. An empty token is an anonymous
// visitor; an unknown token reports false.
func (r *IdentityResolver) Resolve(token string) (domain.Identity, bool) {
	if token == "" {
		return domain.Identity{}, true
	}
	var (
		found domain.Identity
		ok    bool
	)
	// every entry is compared so the match position is not observable
	for _, c := range r.users {
		if safeEqual(token, c.token) {
			found, ok = c.id, true
		}
	}
	return found, ok
}

// ResolveRequest resolves the Authorization bearer token of an HTTP request.
func (r *IdentityResolver) ResolveRequest(req *http.Request) (domain.Identity, bool) {
	return r.Resolve(bearerToken(req))
}

// Lookup returns a configured user by ID.
func (r *IdentityResolver) Lookup(userID string) (domain.Identity, bool) {
	id, ok := r.byID[userID]
	return id, ok
}

// Agents lists every configured agent, sorted by ID.
func (r *IdentityResolver) Agents() []domain.Identity {
	var out []domain.Identity
	for _, id := range r.byID {
		if id.Agent {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// safeEqual performs a constant-time string comparison to prevent timing attacks.
// It avoids early-return on length mismatch to prevent leaking secret length via timing.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
