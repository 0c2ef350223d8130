package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/PhanTTKhai/ADO-translate/pkg/capture"
	"github.com/PhanTTKhai/ADO-translate/pkg/config"
)

// helper to perform requests with auth token
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupIntegrationServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	t.Setenv("UPLOAD_BASE", t.TempDir())
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	db := mustOpenDB(cfg, log)
	if err := migrate(db, log); err != nil {
		t.Fatal(err)
	}
	_, base := newTestServer(t)
	s := &server{
		cfg:       cfg,
		db:        db,
		store:     capture.NewStore(db),
		service:   base.service,
		jwtSecret: []byte(cfg.JWTSecret),
		log:       log,
	}
	r := gin.New()
	s.setupRoutes(r)
	return r
}

func TestFullFlow(t *testing.T) {
	r := setupIntegrationServer(t)

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"username": "user1", "password": "pass12"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 && resp.Code != 409 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 2. Login
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	refresh, _ := loginResp["refresh_token"].(string)
	if token == "" || refresh == "" {
		t.Fatalf("missing tokens in login response: %+v", loginResp)
	}

	// 3. Recognize an upload; the capture is stored
	body, ct := imageForm(t, nil, pngBytes(t))
	resp = performRequest(r, http.MethodPost, "/recognize", body, token, ct)
	if resp.Code != 200 {
		t.Fatalf("recognize failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var rec recognizeResponse
	_ = json.Unmarshal(resp.Body.Bytes(), &rec)
	if rec.ID == "" {
		t.Fatalf("capture was not stored: %s", resp.Body.String())
	}

	// 4. Fetch it back
	resp = performRequest(r, http.MethodGet, "/captures/"+rec.ID, nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("get capture failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodGet, "/captures", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("list captures failed status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 5. Rotate then revoke the refresh token
	rb, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(rb), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("refresh failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(rb), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("rotated refresh token must not be reusable, got %d", resp.Code)
	}

	// 6. Unauthorized access to protected endpoint should be 401
	unauth := performRequest(r, http.MethodGet, "/captures", nil, "", "")
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list captures got %d", unauth.Code)
	}
}
