package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/NoNameWrath/poap-api/database"
	"github.com/NoNameWrath/poap-api/metrics"
	"github.com/NoNameWrath/poap-api/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var testJWTSecret = []byte("router-test-secret")

func setupTestRouter(t *testing.T) http.Handler {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(dsn)
	if err != nil {
		t.Fatalf("Could not open database: %v", err)
	}
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(0)
	t.Cleanup(func() {
		db.Close()
	})

	if err := metrics.Init(t.Name()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(metrics.Deinit)

	svc := services.NewService(&services.ServiceConfig{
		DB:       db,
		TokenTTL: 30 * time.Second,
		Logger:   zap.NewNop(),
		Clock:    clockwork.NewRealClock(),
	})
	if err := svc.Init(); err != nil {
		t.Fatalf("Could not initialize service: %v", err)
	}
	t.Cleanup(svc.Deinit)

	return NewAPIRouter("/poap/v1/", svc, []string{"*"}, testJWTSecret, zap.NewNop())
}

func bearerToken(t *testing.T, email string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": email,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testJWTSecret)
	if err != nil {
		t.Fatalf("Could not sign bearer token: %v", err)
	}
	return signed
}

func TestCreateEventWindowRequired(t *testing.T) {
	router := setupTestRouter(t)

	// Absent timestamps decode to zero and must not become a 1970 window.
	data := []struct {
		name   string
		body   string
		status int
	}{
		{"missing_starts_at", `{"name":"Event","ends_at":1900003600}`, http.StatusBadRequest},
		{"missing_ends_at", `{"name":"Event","starts_at":1900000000}`, http.StatusBadRequest},
		{"missing_window", `{"name":"Event"}`, http.StatusBadRequest},
		{"negative_window", `{"name":"Event","starts_at":-10,"ends_at":-5}`, http.StatusBadRequest},
		{"valid", `{"name":"Event","starts_at":1900000000,"ends_at":1900003600}`, http.StatusCreated},
	}

	for _, d := range data {
		t.Run(d.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/poap/v1/events", strings.NewReader(d.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+bearerToken(t, "organizer@example.com"))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != d.status {
				t.Fatalf("Expected status %d, got %d (%s)", d.status, rec.Code, rec.Body.String())
			}
		})
	}
}
