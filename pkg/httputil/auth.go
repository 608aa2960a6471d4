package httputil

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pharmaflow/pharmaflow-backend/pkg/actor"
	"github.com/pharmaflow/pharmaflow-backend/pkg/config"
	"github.com/pharmaflow/pharmaflow-backend/pkg/errors"
)

// ActorClaims are the token claims issued by the identity service. This
// service only verifies them; it never issues tokens.
type ActorClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// ActorMiddleware resolves the acting user for each request.
//
// A Bearer token, when present, is verified against the shared secret and its
// claims become the request actor. Requests arriving from inside the cluster
// through the gateway instead carry X-User-ID / X-User-Email headers, which
// are trusted as the gateway has already verified the token.
func ActorMiddleware(cfg *config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || parts[0] != "Bearer" {
					Error(w, errors.Unauthorized("malformed authorization header"))
					return
				}

				claims, err := verifyToken(parts[1], cfg)
				if err != nil {
					Error(w, err)
					return
				}

				a := &actor.Actor{
					ID:        claims.UserID,
					FirstName: claims.FirstName,
					LastName:  claims.LastName,
					Email:     claims.Email,
					RoleName:  claims.Role,
				}
				ctx := actor.WithActor(r.Context(), a)
				ctx = WithUserContext(ctx, a.ID, a.Email, a.RoleName)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// Gateway-injected headers
			if userID := r.Header.Get("X-User-ID"); userID != "" {
				a := &actor.Actor{
					ID:       userID,
					Email:    r.Header.Get("X-User-Email"),
					RoleName: r.Header.Get("X-User-Role"),
				}
				ctx := actor.WithActor(r.Context(), a)
				ctx = WithUserContext(ctx, a.ID, a.Email, a.RoleName)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireActor rejects requests with no resolved actor. Use on routes that
// create or approve ledger entries, where the audit trail needs a user ID.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor.FromContext(r.Context()) == nil {
			Error(w, errors.Unauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func verifyToken(tokenString string, cfg *config.AuthConfig) (*ActorClaims, error) {
	claims := &ActorClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Unauthorized("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	}, jwt.WithIssuer(cfg.Issuer))

	if err != nil || !token.Valid {
		return nil, errors.Unauthorized("invalid or expired token")
	}

	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}

	return claims, nil
}
