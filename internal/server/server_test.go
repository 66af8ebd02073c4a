package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"cardtime/internal/config"
	"cardtime/internal/db"
	"cardtime/internal/domain"
	"cardtime/internal/engine"
	"cardtime/internal/migrate"
	"cardtime/internal/repo"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(db.Path(workspace)))
	handler, err := New(Config{Engine: e, BasePath: "/api/v1", Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func loginToken(t *testing.T, srv *testServer) (string, map[string]string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/auth/login", map[string]any{
		"trello_user_id": "member-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("expected a token")
	}
	return login.Token, map[string]string{"Authorization": "Bearer " + login.Token}
}

func TestLoginAndTimerRoundTrip(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
	client := srv.Client()
	_, auth := loginToken(t, srv)

	startRes, startBody := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/time/start", map[string]any{
		"card_id":   "card-1",
		"card_name": "Fix login",
	}, auth)
	if startRes.StatusCode != http.StatusCreated {
		t.Fatalf("start status %d: %s", startRes.StatusCode, string(startBody))
	}

	activeRes, activeBody := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/time/active", nil, auth)
	if activeRes.StatusCode != http.StatusOK {
		t.Fatalf("active status %d: %s", activeRes.StatusCode, string(activeBody))
	}
	var active ActiveResponse
	if err := json.Unmarshal(activeBody, &active); err != nil {
		t.Fatalf("unmarshal active: %v", err)
	}
	if !active.Active || active.Entry == nil || active.Entry.CardID != "card-1" {
		t.Fatalf("active = %s", string(activeBody))
	}

	stopRes, stopBody := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/time/stop", nil, auth)
	if stopRes.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d: %s", stopRes.StatusCode, string(stopBody))
	}
	var stopped EntryResponse
	if err := json.Unmarshal(stopBody, &stopped); err != nil {
		t.Fatalf("unmarshal stop: %v", err)
	}
	if stopped.EndTime == nil || stopped.DurationMinutes == nil {
		t.Fatalf("entry not settled: %s", string(stopBody))
	}

	againRes, againBody := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/time/stop", nil, auth)
	if againRes.StatusCode != http.StatusNotFound {
		t.Fatalf("second stop status %d: %s", againRes.StatusCode, string(againBody))
	}
	var apiErr apiError
	if err := json.Unmarshal(againBody, &apiErr); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if apiErr.Body.Code != "not_found" {
		t.Fatalf("error code = %q, want not_found", apiErr.Body.Code)
	}
}

func TestUnauthorizedWithoutCredentials(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must stay public, got %d", res.StatusCode)
	}
}

func TestDemoFallback(t *testing.T) {
	srv := newTestServer(t, AuthConfig{DemoEnabled: true, DemoTrelloID: "demo_user_123"})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/me", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var me UserResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.TrelloID != "demo_user_123" {
		t.Fatalf("me = %s", string(data))
	}
}

func TestUpdateProfile(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
	_, auth := loginToken(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/api/v1/me", map[string]any{
		"name":        "Ada",
		"hourly_rate": 75,
	}, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var me UserResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.Name != "Ada" || me.HourlyRate != 75 {
		t.Fatalf("me = %s", string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/me", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatal(err)
	}
	if me.HourlyRate != 75 {
		t.Fatalf("rate not persisted: %s", string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	ctx := context.Background()
	u, err := srv.Engine.EnsureUser(ctx, "member-1", "", "")
	if err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	rawKey := "ct_test_key_123"
	tx, err := srv.Engine.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Engine.Repo.InsertAPIKey(ctx, tx, domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Name:      "tests",
		KeyHash:   repo.HashAPIKey(rawKey),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/me", nil, map[string]string{"X-Api-Key": rawKey})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/api/v1/me", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad key status %d", res.StatusCode)
	}
}

func TestValidationErrorsMapTo400(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
	_, auth := loginToken(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/time/start", map[string]any{
		"card_name": "no card id",
	}, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var apiErr apiError
	if err := json.Unmarshal(data, &apiErr); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if apiErr.Body.Code != "validation_error" {
		t.Fatalf("code = %q, want validation_error", apiErr.Body.Code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/api/v1/time/entries", map[string]any{
		"card_id":    "card-1",
		"start_time": "2024-01-02T10:00:00Z",
		"end_time":   "2024-01-02T09:00:00Z",
	}, auth)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("inverted span status %d: %s", res.StatusCode, string(data))
	}
}

func TestEntriesPagination(t *testing.T) {
	srv := newTestServer(t, AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour})
	client := srv.Client()
	_, auth := loginToken(t, srv)

	for i := 0; i < 3; i++ {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/api/v1/time/entries", map[string]any{
			"card_id":    fmt.Sprintf("card-%d", i),
			"start_time": fmt.Sprintf("2024-01-02T%02d:00:00Z", 8+i),
			"end_time":   fmt.Sprintf("2024-01-02T%02d:30:00Z", 8+i),
		}, auth)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("create %d status %d: %s", i, res.StatusCode, string(data))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/time/entries?limit=2", nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var page paginatedEntries
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("page = %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/v1/time/entries?limit=2&cursor="+page.NextCursor, nil, auth)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second page status %d: %s", res.StatusCode, string(data))
	}
	var rest paginatedEntries
	if err := json.Unmarshal(data, &rest); err != nil {
		t.Fatalf("unmarshal second page: %v", err)
	}
	if len(rest.Items) != 1 || rest.NextCursor != "" {
		t.Fatalf("second page = %s", string(data))
	}
	if rest.Items[0].ID == page.Items[0].ID || rest.Items[0].ID == page.Items[1].ID {
		t.Fatalf("pages overlap")
	}
}
