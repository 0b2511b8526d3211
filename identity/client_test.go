package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gullin-backend/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.IdentityConfig{APIURL: url, APIUser: "gullin", APIKey: "secret", Timeout: 2 * time.Second})
}

func TestSubmitSendsWireFields(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "gullin" || pass != "secret" {
			t.Errorf("bad basic auth %q %q", user, pass)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"tid":"t-1"}`))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Submit(context.Background(), &Application{
		TID:        "t-1",
		FirstName:  "Ada",
		Country:    "GB",
		FaceImages: []string{"c2VsZmll"},
		Stage:      4,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got["tid"] != "t-1" || got["bfn"] != "Ada" || got["bco"] != "GB" {
		t.Fatalf("unexpected payload %v", got)
	}
	if got["stage"].(float64) != 4 {
		t.Fatalf("expected stage 4, got %v", got["stage"])
	}
}

func TestDecisionParsesState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/t-9" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"state":"D","frp":"DENY"}`))
	}))
	defer srv.Close()

	d, err := newTestClient(srv.URL).Decision(context.Background(), "t-9")
	if err != nil {
		t.Fatalf("Decision: %v", err)
	}
	if d.State != "D" || d.Raw != `{"state":"D","frp":"DENY"}` {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestNon2xxIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Decision(context.Background(), "x")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestMissingURL(t *testing.T) {
	err := newTestClient("").Submit(context.Background(), &Application{TID: "x"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
