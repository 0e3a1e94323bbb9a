package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/peerledger/internal/apperr"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func newServer() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(nil)
	api := e.Group("", JWT(testSecret))
	api.GET("/me", func(c echo.Context) error {
		id, err := UserID(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
	})
	api.GET("/admin", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}, AdminGuard)
	return e
}

func doRequest(e *echo.Echo, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestJWTSetsIdentityFromSubject(t *testing.T) {
	e := newServer()
	token := signToken(t, jwt.MapClaims{"sub": "alice", "role": "user", "exp": time.Now().Add(time.Hour).Unix()})

	rec := doRequest(e, "/me", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["id"])
	assert.Equal(t, "user", body["role"])
}

func TestJWTFallsBackToUserIDClaim(t *testing.T) {
	e := newServer()
	token := signToken(t, jwt.MapClaims{"user_id": "bob"})

	rec := doRequest(e, "/me", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"bob"`)
}

func TestJWTRejectsMissingOrBadTokens(t *testing.T) {
	e := newServer()

	assert.Equal(t, http.StatusUnauthorized, doRequest(e, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, doRequest(e, "/me", "not-a-token").Code)

	expired := signToken(t, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(-time.Hour).Unix()})
	assert.Equal(t, http.StatusUnauthorized, doRequest(e, "/me", expired).Code)

	noSubject := signToken(t, jwt.MapClaims{"role": "admin"})
	assert.Equal(t, http.StatusUnauthorized, doRequest(e, "/me", noSubject).Code)
}

func TestAdminGuard(t *testing.T) {
	e := newServer()

	user := signToken(t, jwt.MapClaims{"sub": "alice", "role": "user"})
	assert.Equal(t, http.StatusForbidden, doRequest(e, "/admin", user).Code)

	admin := signToken(t, jwt.MapClaims{"sub": "root", "role": RoleAdmin})
	assert.Equal(t, http.StatusNoContent, doRequest(e, "/admin", admin).Code)
}

func TestErrorHandlerRendersLedgerErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
		field  string
	}{
		{"too long", apperr.FieldTooLong("display_name", 50), http.StatusBadRequest, "field_too_long", "display_name"},
		{"already sold", apperr.ErrAlreadySold, http.StatusConflict, "already_sold", ""},
		{"transfer", apperr.Transfer(errors.New("wallet locked")), http.StatusPaymentRequired, "transfer_failed", ""},
		{"not found", apperr.NotFound("listing"), http.StatusNotFound, "not_found", "listing"},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			e.HTTPErrorHandler = ErrorHandler(nil)
			e.GET("/", func(c echo.Context) error { return tc.err })

			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, tc.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["code"])
			assert.Equal(t, tc.field, body["field"])
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body["error"])
			}
		})
	}
}
