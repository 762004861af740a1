package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ecofood/foodshare/internal/app"
	"github.com/ecofood/foodshare/internal/config"
	"github.com/ecofood/foodshare/internal/model"
)

type testServer struct {
	app     *app.App
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		AppName:               "FoodShare",
		AppEnv:                "development",
		AppURL:                "http://localhost:8090",
		DBDriver:              "sqlite",
		DBConnection:          filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)",
		JWTSecret:             "test-secret",
		DeliveryBackend:       "email",
		EmailFrom:             "noreply@example.com",
		PickupWindow:          2 * time.Hour,
		PickupExpiryEnforced:  true,
		PickupReminderLead:    30 * time.Minute,
		ExpiringLead:          2 * time.Hour,
		FanoutRadiusKm:        10,
		FanoutMaxRecipients:   50,
		NearbyRadiusKm:        5,
		NotificationRetention: 7 * 24 * time.Hour,
		SweepInterval:         time.Minute,
		GeoRefreshInterval:    5 * time.Minute,
		TaskTimeout:           5 * time.Second,
		RequestTimeout:        10 * time.Second,
		VerifyRateLimit:       3,
		VerifyRateWindow:      time.Minute,
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})

	return &testServer{app: a, handler: SetupRoutes(a)}
}

// user creates an active, approved, located account and returns a bearer token.
func (s *testServer) user(t *testing.T, name, role string, lng, lat float64) (model.Actor, string) {
	t.Helper()
	account, err := s.app.AccountService.Upsert(context.Background(), &model.Account{
		Name:     name,
		Email:    name + "@example.com",
		Role:     role,
		Approval: model.ApprovalApproved,
		Active:   true,
		Lng:      &lng,
		Lat:      &lat,
	})
	if err != nil {
		t.Fatalf("Upsert %s: %v", name, err)
	}
	actor := model.Actor{ID: account.ID, Role: account.Role}
	token, err := s.app.AuthService.GenerateJWT(actor, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return actor, token
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type listingBody struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	VerificationCode string `json:"verification_code"`
}

func TestDonationOverHTTP(t *testing.T) {
	s := newTestServer(t)
	_, donorToken := s.user(t, "bistro", model.RoleDonor, 77.2090, 28.6139)
	_, orgToken := s.user(t, "foodbank", model.RoleOrganization, 77.2167, 28.6448)

	lng, lat := 77.2090, 28.6139
	rec := s.do(t, http.MethodPost, "/api/listings", donorToken, map[string]any{
		"name":       "Hot Meals",
		"category":   model.CategoryVeg,
		"quantity":   "10 units",
		"expires_at": time.Now().UTC().Add(5 * time.Hour).Format(time.RFC3339),
		"lng":        lng,
		"lat":        lat,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: status = %d, body = %s", rec.Code, rec.Body)
	}
	posted := decode[listingBody](t, rec)
	if posted.Status != model.ListingStatusAvailable {
		t.Errorf("posted status = %q", posted.Status)
	}
	s.app.Runner.Wait()

	rec = s.do(t, http.MethodGet, "/api/notifications", orgToken, nil)
	inbox := decode[model.Inbox](t, rec)
	if inbox.Unread != 1 || len(inbox.Notifications) != 1 || inbox.Notifications[0].Kind != model.NotificationPosted {
		t.Fatalf("org inbox = %+v", inbox)
	}

	rec = s.do(t, http.MethodPost, "/api/listings/"+posted.ID+"/claim", donorToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("donor claim: status = %d, want 403", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/listings/"+posted.ID+"/claim", orgToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim: status = %d, body = %s", rec.Code, rec.Body)
	}
	claimed := decode[listingBody](t, rec)
	if claimed.Status != model.ListingStatusPending || len(claimed.VerificationCode) != 6 {
		t.Fatalf("claimed = %+v", claimed)
	}

	rec = s.do(t, http.MethodPost, "/api/listings/"+posted.ID+"/claim", orgToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second claim: status = %d, want 409", rec.Code)
	}

	// the donor's own view never carries the code
	rec = s.do(t, http.MethodGet, "/api/listings/mine", donorToken, nil)
	mine := decode[struct {
		Listings []listingBody `json:"listings"`
	}](t, rec)
	if len(mine.Listings) != 1 || mine.Listings[0].VerificationCode != "" {
		t.Errorf("donor listings = %+v", mine.Listings)
	}

	wrong := "000000"
	if claimed.VerificationCode == wrong {
		wrong = "999999"
	}
	rec = s.do(t, http.MethodPost, "/api/listings/"+posted.ID+"/verify", donorToken, map[string]string{"code": wrong})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("wrong code: status = %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/listings/"+posted.ID+"/verify", donorToken, map[string]string{"code": claimed.VerificationCode})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify: status = %d, body = %s", rec.Code, rec.Body)
	}
	if done := decode[listingBody](t, rec); done.Status != model.ListingStatusCompleted {
		t.Errorf("verified status = %q", done.Status)
	}
	s.app.Runner.Wait()

	rec = s.do(t, http.MethodGet, "/api/notifications/unread/count", donorToken, nil)
	if count := decode[struct {
		Count int `json:"count"`
	}](t, rec); count.Count == 0 {
		t.Errorf("donor has no unread notifications after claim and pickup")
	}

	rec = s.do(t, http.MethodGet, "/api/impact", donorToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("impact: status = %d", rec.Code)
	}
	if stats := decode[model.ImpactStats](t, rec); stats.DonationsCompleted != 1 {
		t.Errorf("impact = %+v", stats)
	}
}

func TestRoutes_Auth(t *testing.T) {
	s := newTestServer(t)
	_, orgToken := s.user(t, "shelter", model.RoleOrganization, 77.18, 28.53)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"impact needs token", http.MethodGet, "/api/impact", "", http.StatusUnauthorized},
		{"read all", http.MethodPut, "/api/notifications/read/all", orgToken, http.StatusOK},
		{"read unknown", http.MethodPut, "/api/notifications/missing/read", orgToken, http.StatusNotFound},
		{"no token", http.MethodGet, "/api/listings/available", "", http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/api/listings/available", "garbage", http.StatusUnauthorized},
		{"wrong role", http.MethodGet, "/api/listings/mine", orgToken, http.StatusForbidden},
		{"available", http.MethodGet, "/api/listings/available", orgToken, http.StatusOK},
		{"nearby without point", http.MethodGet, "/api/listings/nearby", orgToken, http.StatusBadRequest},
		{"nearby", http.MethodGet, "/api/listings/nearby?lat=28.53&lng=77.18&radiusKm=3", orgToken, http.StatusOK},
		{"claim unknown", http.MethodPost, "/api/listings/missing/claim", orgToken, http.StatusNotFound},
		{"moderator only", http.MethodPut, "/api/accounts/x/approval", orgToken, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestRoutes_VerifyRateLimited(t *testing.T) {
	s := newTestServer(t)
	_, donorToken := s.user(t, "cafe", model.RoleDonor, 77.2, 28.6)

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodPost, "/api/listings/missing/verify", donorToken, map[string]string{"code": "123456"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("attempt %d: status = %d, want 404", i+1, rec.Code)
		}
	}
	rec := s.do(t, http.MethodPost, "/api/listings/missing/verify", donorToken, map[string]string{"code": "123456"})
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}
