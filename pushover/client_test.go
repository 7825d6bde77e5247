// Copyright (c) 2023 BVK Chaitanya

package pushover

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(&Keys{ApplicationKey: "app", UserKey: "user"})
	if err != nil {
		t.Fatal(err)
	}
	c.endpoint = srv.URL + "/1/messages.json"
	return c
}

func TestSendMessage(t *testing.T) {
	at := time.Unix(1760000000, 0)
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/1/messages.json" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("could not decode request: %v", err)
		}
		w.Write([]byte(`{"status":1,"request":"abc"}`))
	})

	if err := c.SendMessage(context.Background(), at, t.Name()); err != nil {
		t.Fatal(err)
	}
	if got["token"] != "app" || got["user"] != "user" || got["message"] != t.Name() {
		t.Fatalf("unexpected message: %v", got)
	}
	if ts, _ := got["timestamp"].(float64); int64(ts) != at.Unix() {
		t.Fatalf("want %d, got %v", at.Unix(), got["timestamp"])
	}
}

func TestSendMessageError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":0,"errors":["user identifier is invalid"]}`))
	})

	err := c.SendMessage(context.Background(), time.Now(), "hello")
	if err == nil || !strings.Contains(err.Error(), "user identifier is invalid") {
		t.Fatalf("want the api error, got %v", err)
	}
}

func TestKeysCheck(t *testing.T) {
	if _, err := New(&Keys{ApplicationKey: "app"}); err == nil {
		t.Fatalf("want an error for a missing user key")
	}
}
