package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"rollcall/internal/token"
)

func testRouter(t *testing.T) (*gin.Engine, *token.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, err := token.NewService("test-secret", "HS256", 15*time.Minute, time.Hour, time.Second, nil)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/protected", Bearer(svc), func(c *gin.Context) {
		claims := MustClaims(c)
		c.JSON(http.StatusOK, gin.H{"user": claims.UserID, "role": claims.Role})
	})
	r.POST("/faculty", Bearer(svc), RequireRole("faculty"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, svc
}

func do(r *gin.Engine, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestBearerRequiresToken(t *testing.T) {
	r, _ := testRouter(t)

	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/protected", "").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/protected", "garbage").Code)
}

func TestBearerAcceptsAccessToken(t *testing.T) {
	r, svc := testRouter(t)

	pair, err := svc.Issue("alice", "student")
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/protected", pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"user":"alice"`)
}

func TestBearerRejectsRefreshToken(t *testing.T) {
	r, svc := testRouter(t)

	pair, err := svc.Issue("alice", "student")
	require.NoError(t, err)

	// A perfectly valid refresh token must never authorize a resource call.
	require.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/protected", pair.RefreshToken).Code)
}

func TestRequireRole(t *testing.T) {
	r, svc := testRouter(t)

	student, err := svc.Issue("alice", "student")
	require.NoError(t, err)
	faculty, err := svc.Issue("prof", "faculty")
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/faculty", student.AccessToken)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Contains(t, w.Body.String(), "faculty")

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/faculty", faculty.AccessToken).Code)
}
