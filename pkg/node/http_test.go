package node

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/verdandi"
)

func httpNode(id, nodeType string, config map[string]interface{}) verdandi.Node {
	return verdandi.Node{ID: id, Type: nodeType, Config: config}
}

func TestHTTPSourceGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"items":[1,2]}`))
	}))
	defer server.Close()

	n := httpNode("fetch", "source.http", map[string]interface{}{"url": server.URL})
	out, err := NewHTTP(nil).Execute(context.Background(), n, nil, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["status"] != http.StatusOK {
		t.Errorf("expected status 200, got %v", out["status"])
	}
	body, ok := out["body"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected decoded JSON body, got %T", out["body"])
	}
	if body["ok"] != true {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHTTPOutputPostsInput(t *testing.T) {
	var gotBody map[string]interface{}
	var gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		gotContentType = r.Header.Get("Content-Type")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &gotBody)
		w.Write([]byte(`{"accepted":true}`))
	}))
	defer server.Close()

	n := httpNode("post", "output.http", map[string]interface{}{"url": server.URL})
	input := map[string]interface{}{"event": "signup", "count": float64(3)}
	out, err := NewHTTP(nil).Execute(context.Background(), n, input, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotContentType)
	}
	if gotBody["event"] != "signup" || gotBody["count"] != float64(3) {
		t.Errorf("server received %v", gotBody)
	}
	body := out["body"].(map[string]interface{})
	if body["accepted"] != true {
		t.Errorf("unexpected response body: %v", body)
	}
}

func TestHTTPBodyTemplate(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
	}))
	defer server.Close()

	n := httpNode("post", "output.http", map[string]interface{}{
		"url":  server.URL,
		"body": `{"user":"{{name}}"}`,
	})
	_, err := NewHTTP(nil).Execute(context.Background(), n, map[string]interface{}{"name": "ana"}, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotBody != `{"user":"ana"}` {
		t.Errorf("unexpected body: %s", gotBody)
	}
}

func TestHTTPTemplateURL(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer server.Close()

	n := httpNode("fetch", "source.http", map[string]interface{}{"url": server.URL + "/items/{{id}}"})
	_, err := NewHTTP(nil).Execute(context.Background(), n, map[string]interface{}{"id": "42"}, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/items/42" {
		t.Errorf("expected /items/42, got %s", gotPath)
	}
}

func TestHTTPHeaders(t *testing.T) {
	var gotHeader, gotTenant string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Version")
		gotTenant = r.Header.Get("X-Tenant")
	}))
	defer server.Close()

	n := httpNode("fetch", "source.http", map[string]interface{}{
		"url": server.URL,
		"headers": map[string]interface{}{
			"X-Api-Version": "2024-01",
			"X-Tenant":      "{{tenant}}",
		},
	})
	_, err := NewHTTP(nil).Execute(context.Background(), n, map[string]interface{}{"tenant": "acme"}, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotHeader != "2024-01" {
		t.Errorf("expected X-Api-Version 2024-01, got %q", gotHeader)
	}
	if gotTenant != "acme" {
		t.Errorf("expected X-Tenant acme, got %q", gotTenant)
	}
}

func TestHTTPBearerCredential(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	resolver := &stubResolver{creds: map[string]string{"token": "secret-token"}}
	n := verdandi.Node{
		ID:         "fetch",
		Type:       "source.http",
		Config:     map[string]interface{}{"url": server.URL},
		Credential: "http/api",
	}
	_, err := NewHTTP(nil).Execute(context.Background(), n, nil, testEC(resolver))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected bearer header, got %q", gotAuth)
	}
}

func TestHTTPBasicAuthCredential(t *testing.T) {
	var gotUser, gotPass string
	var gotOK bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, gotOK = r.BasicAuth()
	}))
	defer server.Close()

	resolver := &stubResolver{creds: map[string]string{"username": "svc", "password": "pw"}}
	n := verdandi.Node{
		ID:         "fetch",
		Type:       "source.http",
		Config:     map[string]interface{}{"url": server.URL},
		Credential: "http/internal",
	}
	_, err := NewHTTP(nil).Execute(context.Background(), n, nil, testEC(resolver))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !gotOK || gotUser != "svc" || gotPass != "pw" {
		t.Errorf("expected basic auth svc/pw, got %q/%q ok=%v", gotUser, gotPass, gotOK)
	}
}

func TestHTTPOAuth2ClientCredentials(t *testing.T) {
	var tokenCalls int
	var gotGrant string
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		_ = r.ParseForm()
		gotGrant = r.FormValue("grant_type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"minted-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"ok":true}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	resolver := &stubResolver{creds: map[string]string{
		"client_id":     "svc",
		"client_secret": "pw",
		"token_url":     server.URL + "/token",
		"scopes":        "read write",
	}}
	n := verdandi.Node{
		ID:         "fetch",
		Type:       "source.http",
		Config:     map[string]interface{}{"url": server.URL + "/data"},
		Credential: "http/api",
	}
	_, err := NewHTTP(nil).Execute(context.Background(), n, nil, testEC(resolver))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenCalls != 1 || gotGrant != "client_credentials" {
		t.Errorf("expected one client_credentials grant, got %d calls with grant %q", tokenCalls, gotGrant)
	}
	if gotAuth != "Bearer minted-token" {
		t.Errorf("expected minted bearer header, got %q", gotAuth)
	}
}

func TestHTTPOAuth2TokenFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	resolver := &stubResolver{creds: map[string]string{
		"client_id":     "svc",
		"client_secret": "pw",
		"token_url":     server.URL,
	}}
	n := verdandi.Node{
		ID:         "fetch",
		Type:       "source.http",
		Config:     map[string]interface{}{"url": server.URL},
		Credential: "http/api",
	}
	_, err := NewHTTP(nil).Execute(context.Background(), n, nil, testEC(resolver))
	if err == nil || !strings.Contains(err.Error(), "oauth2") {
		t.Errorf("expected oauth2 error, got %v", err)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	n := httpNode("fetch", "source.http", map[string]interface{}{"url": server.URL})
	_, err := NewHTTP(nil).Execute(context.Background(), n, nil, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "unexpected status code: 500") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestHTTPPlainTextBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	n := httpNode("fetch", "source.http", map[string]interface{}{"url": server.URL})
	out, err := NewHTTP(nil).Execute(context.Background(), n, nil, testEC(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["body"] != "pong" {
		t.Errorf("expected raw string body, got %v", out["body"])
	}
}

func TestHTTPMissingURL(t *testing.T) {
	n := httpNode("fetch", "source.http", nil)
	_, err := NewHTTP(nil).Execute(context.Background(), n, nil, testEC(nil))
	if err == nil || !strings.Contains(err.Error(), "no url") {
		t.Errorf("expected missing url error, got %v", err)
	}
}
