package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"giveaway/internal/repo"
)

const tokenIssuer = "giveaway"

type AuthConfig struct {
	JWTSecret string
	// AllowActorHeader trusts a bare X-Actor-Id header. Local development only.
	AllowActorHeader bool
}

// Principal is the authenticated caller. ActorID is recorded on draws and events.
type Principal struct {
	ActorID string
	Source  string
}

type principalKey struct{}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p.ActorID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// IssueToken signs an HS256 bearer token for actorID valid for ttl.
func IssueToken(secret, actorID string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(actorID) == "" {
		return "", errors.New("actor id required")
	}
	claims := jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		Subject:  actorID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// errNoCredentials means the request carried none of the accepted headers.
var errNoCredentials = errors.New("no credentials")

type authenticator struct {
	cfg  AuthConfig
	repo repo.Repo
	log  zerolog.Logger
}

func (a authenticator) verifyJWT(token string) (Principal, error) {
	if strings.TrimSpace(a.cfg.JWTSecret) == "" {
		return Principal{}, errors.New("jwt secret not configured")
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(a.cfg.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{ActorID: claims.Subject, Source: "jwt"}, nil
}

func (a authenticator) verifyAPIKey(ctx context.Context, key string) (Principal, error) {
	rec, err := a.repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(key))
	if err != nil {
		return Principal{}, err
	}
	if rec.ActorID == "" {
		return Principal{}, errors.New("api key missing actor")
	}
	return Principal{ActorID: rec.ActorID, Source: "api_key"}, nil
}

// authenticate checks, in order, a bearer token, an X-Api-Key header and,
// when allowed, X-Actor-Id.
func (a authenticator) authenticate(req *http.Request) (Principal, error) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		scheme, token, ok := strings.Cut(authz, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return Principal{}, errors.New("malformed authorization header")
		}
		return a.verifyJWT(strings.TrimSpace(token))
	}
	if key := strings.TrimSpace(req.Header.Get("X-Api-Key")); key != "" {
		return a.verifyAPIKey(req.Context(), key)
	}
	if actor := strings.TrimSpace(req.Header.Get("X-Actor-Id")); actor != "" && a.cfg.AllowActorHeader {
		a.log.Warn().Str("actor_id", actor).Msg("using unauthenticated X-Actor-Id header")
		return Principal{ActorID: actor, Source: "actor_header"}, nil
	}
	return Principal{}, errNoCredentials
}

func newAuthMiddleware(basePath string, cfg AuthConfig, r repo.Repo, log zerolog.Logger) func(http.Handler) http.Handler {
	a := authenticator{cfg: cfg, repo: r, log: log}
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			p, err := a.authenticate(req)
			switch {
			case errors.Is(err, errNoCredentials):
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
				return
			case err != nil:
				log.Debug().Err(err).Str("path", req.URL.Path).Msg("authentication failed")
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), principalKey{}, p)))
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
