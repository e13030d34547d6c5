package email

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConfigured(t *testing.T) {
	if NewClient("", "from@example.com", "http://localhost").Configured() {
		t.Error("client without token should not be configured")
	}
	if !NewClient("token", "from@example.com", "http://localhost").Configured() {
		t.Error("client with token should be configured")
	}
}

func TestSendInviteNotConfigured(t *testing.T) {
	c := NewClient("", "from@example.com", "http://localhost")
	if err := c.SendInvite("to@example.com", "ABC123", "Elm Street", "Alice"); err == nil {
		t.Error("expected error when not configured")
	}
}

func TestSendInvite(t *testing.T) {
	var got postmarkEmail
	var gotToken string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient("test-token", "noreply@example.com", "https://flat.example.com", WithAPIURL(srv.URL))
	if err := c.SendInvite("friend@example.com", "ABC123XYZ0", "Elm Street", "Alice"); err != nil {
		t.Fatalf("send invite: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want test-token", gotToken)
	}
	if got.To != "friend@example.com" {
		t.Errorf("to = %q", got.To)
	}
	if got.From != "noreply@example.com" {
		t.Errorf("from = %q", got.From)
	}
	if !strings.Contains(got.Subject, "Elm Street") {
		t.Errorf("subject missing home name: %q", got.Subject)
	}
	if !strings.Contains(got.TextBody, "ABC123XYZ0") {
		t.Errorf("text body missing code: %q", got.TextBody)
	}
	if !strings.Contains(got.TextBody, "https://flat.example.com/join?code=ABC123XYZ0") {
		t.Errorf("text body missing join link: %q", got.TextBody)
	}
}

func TestSendInviteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewClient("test-token", "noreply@example.com", "http://localhost", WithAPIURL(srv.URL))
	if err := c.SendInvite("friend@example.com", "CODE", "Home", "Alice"); err == nil {
		t.Error("expected error on API failure")
	}
}
