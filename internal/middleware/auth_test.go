package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"ledgerly/internal/config"
)

const testSecret = "middleware-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
	os.Setenv("JWT_SECRET", testSecret)
	if _, err := config.Load(); err != nil {
		panic(err)
	}
}

func setupAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(AuthMiddleware())
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("userID")})
	})
	return r
}

func signToken(t *testing.T, secret string, claims JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func doAuthRequest(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	validClaims := JWTClaims{
		UserID: "user-123",
		Email:  "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	tests := []struct {
		name       string
		authHeader func(t *testing.T) string
		wantStatus int
		wantUserID string
	}{
		{
			name: "valid_token",
			authHeader: func(t *testing.T) string {
				return "Bearer " + signToken(t, testSecret, validClaims)
			},
			wantStatus: http.StatusOK,
			wantUserID: "user-123",
		},
		{
			name: "subject_fallback",
			authHeader: func(t *testing.T) string {
				claims := JWTClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						Subject:   "user-456",
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
				}
				return "Bearer " + signToken(t, testSecret, claims)
			},
			wantStatus: http.StatusOK,
			wantUserID: "user-456",
		},
		{
			name:       "missing_header",
			authHeader: func(t *testing.T) string { return "" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed_header",
			authHeader: func(t *testing.T) string { return "Token abc" },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "wrong_signature",
			authHeader: func(t *testing.T) string {
				return "Bearer " + signToken(t, "some-other-secret", validClaims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "expired_token",
			authHeader: func(t *testing.T) string {
				claims := validClaims
				claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
				return "Bearer " + signToken(t, testSecret, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "no_user_identity",
			authHeader: func(t *testing.T) string {
				claims := JWTClaims{
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
					},
				}
				return "Bearer " + signToken(t, testSecret, claims)
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupAuthRouter()
			rec := doAuthRequest(router, tt.authHeader(t))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			if tt.wantUserID != "" {
				var result map[string]interface{}
				if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
					t.Fatalf("failed to parse response body: %v", err)
				}
				if result["user_id"] != tt.wantUserID {
					t.Errorf("user_id = %v, want %q", result["user_id"], tt.wantUserID)
				}
			}
		})
	}
}
