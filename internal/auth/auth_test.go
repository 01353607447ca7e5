package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"aide/internal/store"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword("hunter2", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("correct password rejected")
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	if _, err := VerifyPassword("x", "not-a-hash"); err == nil {
		t.Fatal("expected error for malformed hash")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	manager := NewTokenManager("test-secret", "aide", time.Minute)
	signed, expiresAt, err := manager.GenerateAccessToken("u1", "a@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatal("token already expired")
	}
	claims, err := manager.ParseAccessToken(signed)
	if err != nil {
		t.Fatalf("ParseAccessToken: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "a@example.com" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signed, _, err := NewTokenManager("secret-a", "aide", time.Minute).GenerateAccessToken("u1", "a@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := NewTokenManager("secret-b", "aide", time.Minute).ParseAccessToken(signed); err == nil {
		t.Fatal("token signed with another secret accepted")
	}
}

func middlewareFixture(t *testing.T, active bool) (*TokenManager, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	stores := store.NewMemoryStores()
	if _, err := stores.Users().Create(context.Background(), store.User{
		ID: "u1", Email: "a@example.com", PasswordHash: "x", Active: active,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	manager := NewTokenManager("test-secret", "aide", time.Minute)
	router := gin.New()
	router.GET("/protected", Middleware(manager, stores.Users()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": UserID(c)})
	})
	return manager, router
}

func TestMiddlewareAllowsValidToken(t *testing.T) {
	manager, router := middlewareFixture(t, true)
	signed, _, err := manager.GenerateAccessToken("u1", "a@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	_, router := middlewareFixture(t, true)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestMiddlewareRejectsInactiveAccount(t *testing.T) {
	manager, router := middlewareFixture(t, false)
	signed, _, err := manager.GenerateAccessToken("u1", "a@example.com")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}
