package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestToken(t *testing.T, tokenAuth *jwtauth.JWTAuth, claims map[string]interface{}) string {
	t.Helper()
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	_, tokenString, err := tokenAuth.Encode(claims)
	require.NoError(t, err)
	return tokenString
}

func newTestRouter(tokenAuth *jwtauth.JWTAuth) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Verifier(tokenAuth))
	r.Use(AuthAccountMiddleware)
	r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		account, ok := GetAuthAccount(r)
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"account_id": account.AccountID.String(),
			"email":      account.Email,
			"roles":      account.Roles,
		})
	})
	return r
}

func TestAuthAccountMiddleware_ValidToken(t *testing.T) {
	tokenAuth := jwtauth.New("HS256", []byte("test-jwt-secret-key"), nil)
	accountID := uuid.New()
	token := createTestToken(t, tokenAuth, map[string]interface{}{
		"sub":   accountID.String(),
		"email": "habit@example.com",
		"roles": []string{"member"},
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	newTestRouter(tokenAuth).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, accountID.String(), body["account_id"])
	assert.Equal(t, "habit@example.com", body["email"])
	assert.Equal(t, []interface{}{"member"}, body["roles"])
}

func TestAuthAccountMiddleware_CookieToken(t *testing.T) {
	tokenAuth := jwtauth.New("HS256", []byte("test-jwt-secret-key"), nil)
	token := createTestToken(t, tokenAuth, map[string]interface{}{"sub": uuid.New().String()})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: ACCESS_TOKEN_NAME, Value: token})
	rec := httptest.NewRecorder()
	newTestRouter(tokenAuth).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAccountMiddleware_Rejects(t *testing.T) {
	tokenAuth := jwtauth.New("HS256", []byte("test-jwt-secret-key"), nil)
	otherAuth := jwtauth.New("HS256", []byte("another-secret"), nil)

	tests := []struct {
		name  string
		token string
	}{
		{name: "no token", token: ""},
		{name: "wrong signature", token: createTestToken(t, otherAuth, map[string]interface{}{"sub": uuid.New().String()})},
		{name: "expired", token: createTestToken(t, tokenAuth, map[string]interface{}{
			"sub": uuid.New().String(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
		{name: "missing subject", token: createTestToken(t, tokenAuth, map[string]interface{}{})},
		{name: "subject not a uuid", token: createTestToken(t, tokenAuth, map[string]interface{}{"sub": "alice"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			newTestRouter(tokenAuth).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
		})
	}
}
