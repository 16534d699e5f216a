package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

func signedToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func validClaims(sub string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub": sub,
		"aud": "api://aud",
		"iss": "https://issuer/",
		"exp": time.Now().Add(5 * time.Minute).Unix(),
		"nbf": time.Now().Add(-time.Minute).Unix(),
		"iat": time.Now().Add(-time.Minute).Unix(),
	}
}

func TestBearerTokenFromStringSuccess(t *testing.T) {
	token, err := bearerTokenFromString("  Bearer header.payload.signature ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(token) != "header.payload.signature" {
		t.Fatalf("unexpected token content: %s", string(token))
	}
}

func TestBearerTokenFromStringErrors(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "blank", header: "   ", want: errMissingAuthorization},
		{name: "basic", header: "Basic dXNlcjpwYXNz", want: errBadAuthorization},
		{name: "prefixOnly", header: "Bearer ", want: errBadAuthorization},
		{name: "twoSegments", header: "Bearer a.b", want: errBadAuthorization},
		{name: "manyPeriods", header: "Bearer " + strings.Repeat(".", 1000), want: errBadAuthorization},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := bearerTokenFromString(tt.header); err != tt.want {
				t.Fatalf("bearerTokenFromString(%q) error = %v, want %v", tt.header, err, tt.want)
			}
		})
	}
}

func TestUserIDFromBearerHS256(t *testing.T) {
	secret := []byte("test-secret")
	signed := signedToken(t, secret, validClaims("user-123"))

	auth := NewAuth(nil, "api://aud", "https://issuer/", WithSharedSecret(secret))
	userID, err := auth.UserIDFromBearer([]byte(signed))
	if err != nil {
		t.Fatalf("unexpected error verifying token: %v", err)
	}
	if userID != "user-123" {
		t.Fatalf("unexpected user id: %s", userID)
	}
}

func TestUserIDFromBearerRejects(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuth(nil, "api://aud", "https://issuer/", WithSharedSecret(secret))

	expired := validClaims("user-123")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	wrongAudience := validClaims("user-123")
	wrongAudience["aud"] = "api://other"
	noSubject := validClaims("")
	futureIssue := validClaims("user-123")
	futureIssue["iat"] = time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrongSecret", token: signedToken(t, []byte("other"), validClaims("user-123"))},
		{name: "expired", token: signedToken(t, secret, expired)},
		{name: "audience", token: signedToken(t, secret, wrongAudience)},
		{name: "missingSub", token: signedToken(t, secret, noSubject)},
		{name: "issuedInFuture", token: signedToken(t, secret, futureIssue)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := auth.UserIDFromBearer([]byte(tt.token)); err == nil {
				t.Fatalf("expected token to be rejected")
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuth(nil, "", "", WithSharedSecret(secret))
	signed := signedToken(t, secret, validClaims("user-7"))

	e := echo.New()
	e.GET("/who", func(c echo.Context) error {
		return c.String(http.StatusOK, userIDFrom(c))
	}, AuthMiddleware(auth))

	tests := []struct {
		name       string
		target     string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "header", target: "/who", header: "Bearer " + signed, wantStatus: http.StatusOK, wantBody: "user-7"},
		{name: "query", target: "/who?token=" + signed, wantStatus: http.StatusOK, wantBody: "user-7"},
		{name: "missing", target: "/who", wantStatus: http.StatusUnauthorized, wantBody: errMissingAuthorization.Error()},
		{name: "garbage", target: "/who", header: "Bearer nope", wantStatus: http.StatusUnauthorized, wantBody: errBadAuthorization.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d got %d", tt.wantStatus, rec.Code)
			}
			if rec.Body.String() != tt.wantBody {
				t.Fatalf("unexpected body: %q", rec.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareRecordsDuration(t *testing.T) {
	secret := []byte("test-secret")
	auth := NewAuth(nil, "", "", WithSharedSecret(secret))
	signed := signedToken(t, secret, validClaims("user-7"))

	e := echo.New()
	var recorded bool
	e.GET("/who", func(c echo.Context) error {
		_, recorded = c.Get(authDurationKey).(time.Duration)
		return c.NoContent(http.StatusNoContent)
	}, AuthMiddleware(auth))

	req := httptest.NewRequest(http.MethodGet, "/who", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+signed)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if !recorded {
		t.Fatalf("auth duration not recorded on the context")
	}
}
