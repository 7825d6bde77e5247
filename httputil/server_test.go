// Copyright (c) 2023 BVK Chaitanya

package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"
)

func TestServer(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.AddHandler("/state", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ManagingPosition")
	}))

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
	id, err := s.StartTCP(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}
	if addr.Port == 0 {
		t.Fatalf("want the chosen port in the address")
	}

	u := fmt.Sprintf("http://%s/state", addr)
	resp, err := http.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(data) != "ManagingPosition" {
		t.Fatalf("want ManagingPosition, got %q", data)
	}

	if !s.RemoveHandler("/state") {
		t.Fatalf("want handler removed")
	}
	if s.RemoveHandler("/state") {
		t.Fatalf("want false for a removed handler")
	}

	resp, err = http.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("want %d, got %d", http.StatusNotFound, resp.StatusCode)
	}

	if err := s.Stop(id); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(id); err == nil {
		t.Fatalf("want an error for a stopped server")
	}
}

func TestOptionsCheck(t *testing.T) {
	opts := &Options{ReadyTimeout: time.Second, ReadyPollInterval: 2 * time.Second}
	if err := opts.Check(); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want %v, got %v", os.ErrInvalid, err)
	}
	opts = &Options{ShutdownTimeout: -time.Second}
	opts.setDefaults()
	if err := opts.Check(); !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("want %v, got %v", os.ErrInvalid, err)
	}
	if _, err := New(&Options{ReadyTimeout: time.Second, ReadyPollInterval: 2 * time.Second}); err == nil {
		t.Fatalf("want an error for invalid options")
	}
}

func TestGracefulStop(t *testing.T) {
	s, err := New(&Options{ShutdownTimeout: 5 * time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	started := make(chan struct{})
	s.AddHandler("/status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(100 * time.Millisecond)
		io.WriteString(w, "Shutdown")
	}))

	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
	id, err := s.StartTCP(context.Background(), addr)
	if err != nil {
		t.Fatal(err)
	}

	type result struct {
		body string
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/status", addr))
		if err != nil {
			resultCh <- result{err: err}
			return
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		resultCh <- result{body: string(data), err: err}
	}()

	<-started
	if err := s.Stop(id); err != nil {
		t.Fatal(err)
	}
	r := <-resultCh
	if r.err != nil || r.body != "Shutdown" {
		t.Fatalf("want in-flight request to complete, got %q (%v)", r.body, r.err)
	}
}
