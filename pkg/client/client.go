package client

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	dgerrors "github.com/habitkit/devicegate/pkg/errors"
)

// AuthAccount is the authenticated account behind a request. The account id
// comes from the token's "sub" claim.
type AuthAccount struct {
	AccountID uuid.UUID
	Subject   string
	Email     string
	Roles     []string
}

func (a AuthAccount) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("account", a.Subject),
		slog.Any("roles", a.Roles),
	)
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "devicegate context value " + k.name
}

const ACCESS_TOKEN_NAME = "access_token"

var AuthAccountKey = &contextKey{"AuthAccount"}

// Verifier extracts a token from the Authorization header or the access_token cookie.
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// AuthAccountMiddleware rejects requests without a verified token and stores
// the AuthAccount in the request context. It must run after Verifier.
func AuthAccountMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil {
			slog.Debug("Rejected unauthenticated request", "path", r.URL.Path, "err", err)
			renderUnauthorized(w, r, "missing or invalid token")
			return
		}

		account, err := accountFromClaims(claims)
		if err != nil {
			slog.Warn("Rejected token without account", "err", err)
			renderUnauthorized(w, r, err.Error())
			return
		}

		slog.Debug("authenticated account", "account", account)
		next.ServeHTTP(w, r.WithContext(WithAuthAccount(r.Context(), account)))
	})
}

func accountFromClaims(claims map[string]interface{}) (*AuthAccount, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, dgerrors.Unauthorized("missing subject in token")
	}
	accountID, err := uuid.Parse(sub)
	if err != nil {
		return nil, dgerrors.Unauthorized("subject is not an account id")
	}

	account := &AuthAccount{AccountID: accountID, Subject: sub}
	if email, ok := claims["email"].(string); ok {
		account.Email = email
	}
	if roles, ok := claims["roles"].([]interface{}); ok {
		for _, role := range roles {
			if s, ok := role.(string); ok {
				account.Roles = append(account.Roles, s)
			}
		}
	}
	return account, nil
}

func WithAuthAccount(ctx context.Context, account *AuthAccount) context.Context {
	return context.WithValue(ctx, AuthAccountKey, account)
}

// GetAuthAccount returns the account stored by AuthAccountMiddleware.
func GetAuthAccount(r *http.Request) (*AuthAccount, bool) {
	account, ok := r.Context().Value(AuthAccountKey).(*AuthAccount)
	return account, ok && account != nil
}

type errorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func renderUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, errorResponse{
		Status:  "error",
		Code:    string(dgerrors.ErrCodeUnauthorized),
		Message: message,
	})
}
