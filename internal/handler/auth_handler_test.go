package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosen-dev/timetable-api/internal/models"
)

func TestAuthHandlerMeIncludesClassID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(nil)

	classID := "class-1a"
	w := httptest.NewRecorder()
	c, _ := withClaims(w, &models.JWTClaims{
		UserID:   "s1",
		Email:    "student@example.com",
		FullName: "Student One",
		Role:     models.RoleStudent,
		ClassID:  &classID,
	})
	req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Request = req

	handler.Me(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"class_id":"class-1a"`)
	assert.Contains(t, w.Body.String(), `"role":"student"`)
}

func TestAuthHandlerMeUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/auth/me", nil)
	c.Request = req

	handler.Me(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
