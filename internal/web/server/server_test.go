package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestNew_RejectsMissingConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
	if _, err := New(&Config{Address: ":0"}); err == nil {
		t.Error("New without a handler should fail")
	}
}

func TestServer_ServesAndShutsDown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})
	config := DefaultConfig(handler)
	config.Address = "127.0.0.1:0"

	srv, err := New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start() }()

	// Wait for the listener to bind.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == config.Address {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := <-errChan; err != http.ErrServerClosed {
		t.Errorf("Start returned %v, want ErrServerClosed", err)
	}
}

func TestGracefulShutdown_RunsHooks(t *testing.T) {
	config := DefaultConfig(http.NotFoundHandler())
	config.Address = "127.0.0.1:0"
	srv, err := New(config)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	gs := NewGracefulShutdown(srv, time.Second)
	var hookRan bool
	gs.RegisterHook(func(ctx context.Context) error {
		hookRan = true
		return nil
	})

	go srv.Start()
	time.Sleep(50 * time.Millisecond)

	if err := gs.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !hookRan {
		t.Error("shutdown hook did not run")
	}
}
