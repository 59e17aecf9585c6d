package api

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"testing"
	"time"
)

func TestHTTPServerAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	srv := NewHTTPServer(ln.Addr().String(), http.NewServeMux())
	if srv.WriteTimeout != 0 {
		t.Fatalf("streaming responses need no write timeout, got %v", srv.WriteTimeout)
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	if err := GracefulShutdown(srv, time.Second); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	if err := <-served; err != http.ErrServerClosed {
		t.Fatalf("expected ErrServerClosed, got %v", err)
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ch := SetupSignalHandler()
	defer signal.Stop(ch)

	if cap(ch) != 1 {
		t.Fatalf("expected buffered channel")
	}
	var _ chan os.Signal = ch
}
