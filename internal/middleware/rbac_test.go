package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/kosen-dev/timetable-api/internal/models"
)

func performWithClaims(t *testing.T, claims *models.JWTClaims, mw gin.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	})
	r.POST("/requests/:id/approve", mw, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/users/:id", mw, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	method := http.MethodPost
	if path[:6] == "/users" {
		method = http.MethodGet
	}
	req, _ := http.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRequireCapabilityAllowsAdminApprove(t *testing.T) {
	claims := &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}
	w := performWithClaims(t, claims, RequireCapability(models.CapReviewRequest), "/requests/req-1/approve")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireCapabilityBlocksTeacherApprove(t *testing.T) {
	claims := &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	w := performWithClaims(t, claims, RequireCapability(models.CapReviewRequest), "/requests/req-1/approve")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireCapabilityBlocksStudentRequestCreation(t *testing.T) {
	claims := &models.JWTClaims{UserID: "s1", Role: models.RoleStudent}
	w := performWithClaims(t, claims, RequireCapability(models.CapCreateRequest), "/requests/req-1/approve")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireCapabilityUnauthenticated(t *testing.T) {
	w := performWithClaims(t, nil, RequireCapability(models.CapViewTimetable), "/requests/req-1/approve")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRolesSelfEscape(t *testing.T) {
	mw := RequireRoles(string(models.RoleAdmin), "SELF")

	own := performWithClaims(t, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, mw, "/users/u1")
	assert.Equal(t, http.StatusOK, own.Code)

	foreign := performWithClaims(t, &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, mw, "/users/u2")
	assert.Equal(t, http.StatusForbidden, foreign.Code)

	admin := performWithClaims(t, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}, mw, "/users/u2")
	assert.Equal(t, http.StatusOK, admin.Code)
}
