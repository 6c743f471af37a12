package msgraph

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

type stub struct {
	tokenCalls atomic.Int32
	lastAuth   string
	lastBody   []byte
	lastPath   string
}

func newStubClient(t *testing.T, handle func(s *stub, w http.ResponseWriter, r *http.Request)) (*Client, *stub) {
	t.Helper()
	s := &stub{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/oauth2/v2.0/token") {
			s.tokenCalls.Add(1)
			if err := r.ParseForm(); err != nil {
				t.Errorf("parse form: %v", err)
			}
			if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
				t.Errorf("grant_type = %q", got)
			}
			if got := r.PostForm.Get("client_secret"); got != "secret" {
				t.Errorf("client_secret = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "tok-123",
				"expires_in":   3600,
			})
			return
		}
		s.lastAuth = r.Header.Get("Authorization")
		s.lastPath = r.URL.Path
		s.lastBody, _ = io.ReadAll(r.Body)
		handle(s, w, r)
	}))
	t.Cleanup(srv.Close)
	c := New("tenant-1", "client-1", "secret", "bot@example.com",
		WithEndpoints(srv.URL, srv.URL))
	return c, s
}

func TestTokenCached(t *testing.T) {
	c, s := newStubClient(t, func(s *stub, w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	})

	for i := 0; i < 3; i++ {
		if _, err := c.UserByName(context.Background(), "김아영"); err != nil {
			t.Fatalf("UserByName: %v", err)
		}
	}
	if got := s.tokenCalls.Load(); got != 1 {
		t.Fatalf("token requests = %d, want 1 (cached until expiry)", got)
	}
	if s.lastAuth != "Bearer tok-123" {
		t.Fatalf("Authorization = %q, want Bearer tok-123", s.lastAuth)
	}
}

func TestUserByName(t *testing.T) {
	c, _ := newStubClient(t, func(s *stub, w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("$filter"); got != "startsWith(displayName,'김아영')" {
			t.Errorf("$filter = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]string{
				{"id": "u1", "displayName": "김아영", "mail": "ayoung@example.com"},
			},
		})
	})

	users, err := c.UserByName(context.Background(), "김아영")
	if err != nil {
		t.Fatalf("UserByName: %v", err)
	}
	if len(users) != 1 || users[0].Mail != "ayoung@example.com" {
		t.Fatalf("users = %+v", users)
	}
}

func TestUserByEmail(t *testing.T) {
	c, _ := newStubClient(t, func(s *stub, w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(User{ID: "u2", DisplayName: "박민수", Mail: "minsu@example.com"})
	})

	u, err := c.UserByEmail(context.Background(), "minsu@example.com")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if u.ID != "u2" || u.DisplayName != "박민수" {
		t.Fatalf("user = %+v", u)
	}
}

func TestSendMail(t *testing.T) {
	c, s := newStubClient(t, func(s *stub, w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	err := c.SendMail(context.Background(),
		[]string{"ayoung@example.com", "minsu@example.com"},
		"8월 30일 회의록", "<p>오늘 회의록 정리 내용입니다.</p>")
	if err != nil {
		t.Fatalf("SendMail: %v", err)
	}
	if s.lastPath != "/users/bot@example.com/sendMail" {
		t.Fatalf("path = %q", s.lastPath)
	}

	var req struct {
		Message struct {
			Subject string `json:"subject"`
			Body    struct {
				ContentType string `json:"contentType"`
				Content     string `json:"content"`
			} `json:"body"`
			ToRecipients []struct {
				EmailAddress struct {
					Address string `json:"address"`
				} `json:"emailAddress"`
			} `json:"toRecipients"`
		} `json:"message"`
		SaveToSentItems bool `json:"saveToSentItems"`
	}
	if err := json.Unmarshal(s.lastBody, &req); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if req.Message.Subject != "8월 30일 회의록" {
		t.Fatalf("subject = %q", req.Message.Subject)
	}
	if req.Message.Body.ContentType != "HTML" {
		t.Fatalf("contentType = %q, want HTML", req.Message.Body.ContentType)
	}
	if len(req.Message.ToRecipients) != 2 || req.Message.ToRecipients[1].EmailAddress.Address != "minsu@example.com" {
		t.Fatalf("recipients = %+v", req.Message.ToRecipients)
	}
	if req.SaveToSentItems {
		t.Fatal("saveToSentItems = true, want false")
	}
}

func TestTokenErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_client",
			"error_description": "bad secret",
		})
	}))
	defer srv.Close()

	c := New("tenant-1", "client-1", "wrong", "bot@example.com", WithEndpoints(srv.URL, srv.URL))
	if _, err := c.Token(context.Background()); err == nil {
		t.Fatal("token error did not surface")
	}
}
