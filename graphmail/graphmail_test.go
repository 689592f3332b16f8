package graphmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func validConfig(baseURL, tokenURL string) Config {
	return Config{
		TenantID:     "11111111-2222-3333-4444-555555555555",
		ClientID:     "app-client-id",
		ClientSecret: "s3cret",
		Sender:       "invoices@example.com",
		Timeout:      5 * time.Second,
		BaseURL:      baseURL,
		TokenURL:     tokenURL,
	}
}

// newServers starts a fake token endpoint and a fake Graph endpoint.
// The Graph handler is provided by the test; token requests always
// succeed with a static bearer token.
func newServers(t *testing.T, graph http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	token := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("token endpoint got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fake-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(token.Close)

	srv := httptest.NewServer(graph)
	t.Cleanup(srv.Close)

	c, err := New(validConfig(srv.URL, token.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestValidateConfig(t *testing.T) {
	// WHAT: Missing and sample credentials are told apart.
	// WHY: A fresh install must say "configure me", not fail with a Graph 401.
	if err := ValidateConfig(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("empty config: %v", err)
	}
	cfg := validConfig("", "")
	cfg.TenantID = "your-tenant-id-here"
	if err := ValidateConfig(cfg); !errors.Is(err, ErrPlaceholderCredentials) {
		t.Errorf("placeholder tenant: %v", err)
	}
	cfg = validConfig("", "")
	cfg.Sender = "rechnung@ppv-web.de"
	if err := ValidateConfig(cfg); !errors.Is(err, ErrPlaceholderCredentials) {
		t.Errorf("sample sender: %v", err)
	}
	if err := ValidateConfig(validConfig("", "")); err != nil {
		t.Errorf("valid config: %v", err)
	}
}

func TestSendMail_Accepted(t *testing.T) {
	// WHAT: A 202 from Graph with a well-formed sendMail payload succeeds.
	var got sendMailRequest
	var path, auth string
	c, _ := newServers(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	})

	err := c.SendMail(context.Background(), Message{
		To:             "buyer@kunde.de",
		Subject:        "RE-2024-001",
		Body:           "Sehr geehrte Damen und Herren",
		AttachmentName: "RE-2024-001.pdf",
		Attachment:     []byte("%PDF-1.4 test"),
	})
	if err != nil {
		t.Fatalf("SendMail: %v", err)
	}

	if path != "/users/invoices@example.com/sendMail" {
		t.Errorf("path = %q", path)
	}
	if auth != "Bearer fake-token" {
		t.Errorf("authorization = %q", auth)
	}
	if !got.SaveToSentItems {
		t.Error("saveToSentItems not set")
	}
	m := got.Message
	if m.Subject != "RE-2024-001" || m.Body.ContentType != "Text" {
		t.Errorf("message = %+v", m)
	}
	if len(m.ToRecipients) != 1 || m.ToRecipients[0].EmailAddress.Address != "buyer@kunde.de" {
		t.Errorf("recipients = %+v", m.ToRecipients)
	}
	if len(m.Attachments) != 1 {
		t.Fatalf("attachments = %+v", m.Attachments)
	}
	a := m.Attachments[0]
	if a.ODataType != "#microsoft.graph.fileAttachment" || a.ContentType != "application/pdf" {
		t.Errorf("attachment = %+v", a)
	}
	raw, err := base64.StdEncoding.DecodeString(a.ContentBytes)
	if err != nil || string(raw) != "%PDF-1.4 test" {
		t.Errorf("attachment bytes = %q, %v", raw, err)
	}
}

func TestSendMail_NoAttachmentOmitsField(t *testing.T) {
	var body map[string]any
	c, _ := newServers(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	})
	if err := c.SendMail(context.Background(), Message{To: "a@b.c", Subject: "s", Body: "b"}); err != nil {
		t.Fatal(err)
	}
	msg := body["message"].(map[string]any)
	if _, ok := msg["attachments"]; ok {
		t.Error("attachments present on mail without attachment")
	}
}

func TestSendMail_GraphErrorSurfaced(t *testing.T) {
	// WHAT: Non-202 responses carry the Graph error.message to the caller.
	c, _ := newServers(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "ErrorAccessDenied", "message": "Access to the sender mailbox is denied"},
		})
	})
	err := c.SendMail(context.Background(), Message{To: "a@b.c", Subject: "s", Body: "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "http 403") || !strings.Contains(err.Error(), "denied") {
		t.Errorf("error = %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	c, _ := newServers(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/invoices@example.com" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"id":"x"}`))
	})
	if err := c.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}

	bad, _ := newServers(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"token invalid"}}`))
	})
	if err := bad.TestConnection(context.Background()); err == nil || !strings.Contains(err.Error(), "token invalid") {
		t.Errorf("error = %v", err)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("New on empty config: %v", err)
	}
}
