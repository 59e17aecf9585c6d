package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestConfigErrors(t *testing.T) {
	notFound := &ErrConfigNotFound{Path: "/tmp/config.yaml"}
	if !strings.Contains(notFound.Error(), "config file not found") {
		t.Fatalf("unexpected error message: %s", notFound.Error())
	}
	if !strings.Contains(notFound.Error(), notFound.Path) {
		t.Fatalf("expected path in error message: %s", notFound.Error())
	}

	base := errors.New("bad yaml")
	parse := &ErrConfigParse{Err: base}
	if !strings.Contains(parse.Error(), "failed to parse YAML") {
		t.Fatalf("unexpected parse message: %s", parse.Error())
	}
	if !errors.Is(parse, base) {
		t.Fatalf("expected unwrap to base error")
	}

	validation := &ErrConfigValidation{Err: base}
	if !strings.Contains(validation.Error(), "config validation failed") {
		t.Fatalf("unexpected validation message: %s", validation.Error())
	}
	if !errors.Is(validation, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestDatabaseErrors(t *testing.T) {
	base := errors.New("db")

	op := &ErrDatabaseOpen{Path: "/tmp/db.sqlite", Err: base}
	if !strings.Contains(op.Error(), "failed to open database") {
		t.Fatalf("unexpected open message: %s", op.Error())
	}
	if !errors.Is(op, base) {
		t.Fatalf("expected unwrap to base error")
	}

	migration := &ErrDatabaseMigration{Version: 2, Err: base}
	if !strings.Contains(migration.Error(), "database migration 2 failed") {
		t.Fatalf("unexpected migration message: %s", migration.Error())
	}
	if !errors.Is(migration, base) {
		t.Fatalf("expected unwrap to base error")
	}

	query := &ErrDatabaseQuery{Operation: "select", Err: base}
	if !strings.Contains(query.Error(), "database query failed") {
		t.Fatalf("unexpected query message: %s", query.Error())
	}
	if !errors.Is(query, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestOtherErrors(t *testing.T) {
	base := errors.New("boom")

	start := &ErrServerStart{Addr: ":8080", Err: base}
	if !strings.Contains(start.Error(), "failed to start server") {
		t.Fatalf("unexpected server start message: %s", start.Error())
	}
	if !errors.Is(start, base) {
		t.Fatalf("expected unwrap to base error")
	}

	shutdown := &ErrServerShutdown{Err: base}
	if !strings.Contains(shutdown.Error(), "server shutdown failed") {
		t.Fatalf("unexpected server shutdown message: %s", shutdown.Error())
	}
	if !errors.Is(shutdown, base) {
		t.Fatalf("expected unwrap to base error")
	}

	mkdir := &ErrDirectoryCreate{Path: "/tmp/dir", Err: base}
	if !strings.Contains(mkdir.Error(), "failed to create directory") {
		t.Fatalf("unexpected mkdir message: %s", mkdir.Error())
	}
	if !errors.Is(mkdir, base) {
		t.Fatalf("expected unwrap to base error")
	}

	read := &ErrFileRead{Path: "/tmp/file", Err: base}
	if !strings.Contains(read.Error(), "failed to read file") {
		t.Fatalf("unexpected read message: %s", read.Error())
	}
	if !errors.Is(read, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestCredentialErrors(t *testing.T) {
	cfg := &ErrConfig{Message: "service account not configured"}
	if cfg.Error() != "service account not configured" {
		t.Fatalf("unexpected config message: %s", cfg.Error())
	}

	base := errors.New("no such file")
	wrapped := &ErrConfig{Message: "invalid service account", Err: base}
	if !strings.Contains(wrapped.Error(), "no such file") {
		t.Fatalf("expected cause in message: %s", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected unwrap to base error")
	}

	auth := &ErrAuthentication{Err: base}
	if !strings.HasPrefix(auth.Error(), "Failed to authenticate with Adobe IMS") {
		t.Fatalf("unexpected auth message: %s", auth.Error())
	}
	if !errors.Is(auth, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestUpstreamAndTransportErrors(t *testing.T) {
	up := &ErrUpstream{Status: 403, Body: `{"error":"forbidden"}`}
	if !strings.Contains(up.Error(), "403") || !strings.Contains(up.Error(), "forbidden") {
		t.Fatalf("unexpected upstream message: %s", up.Error())
	}
	if StatusCode(fmt.Errorf("wrapped: %w", up)) != 403 {
		t.Fatalf("expected status to survive wrapping")
	}
	if StatusCode(errors.New("plain")) != 0 {
		t.Fatalf("expected zero status for plain errors")
	}

	long := &ErrUpstream{Status: 500, Body: strings.Repeat("x", 2000)}
	if len(long.Error()) > 600 {
		t.Fatalf("expected body to be truncated, got %d bytes", len(long.Error()))
	}

	base := errors.New("timeout")
	tr := &ErrTransport{Method: "GET", URL: "https://aem/api", Err: base}
	if !strings.Contains(tr.Error(), "GET https://aem/api") {
		t.Fatalf("unexpected transport message: %s", tr.Error())
	}
	if !errors.Is(tr, base) {
		t.Fatalf("expected unwrap to base error")
	}
}

func TestInvocationErrors(t *testing.T) {
	missing := &ErrMissingArgument{Field: "folderPath"}
	if missing.Error() != "folderPath parameter is required" {
		t.Fatalf("unexpected missing message: %s", missing.Error())
	}
	custom := &ErrMissingArgument{Field: "assetId", Message: "Either assetId or folderPath parameter is required"}
	if custom.Error() != custom.Message {
		t.Fatalf("expected custom message")
	}

	unknown := &ErrUnknownTool{Name: "add"}
	if unknown.Error() != "Unknown tool: add" {
		t.Fatalf("unexpected unknown message: %s", unknown.Error())
	}

	if !IsClientError(fmt.Errorf("dispatch: %w", missing)) || !IsClientError(unknown) {
		t.Fatalf("expected invocation errors to be client errors")
	}
	if IsClientError(&ErrUpstream{Status: 400}) {
		t.Fatalf("upstream errors are not client errors")
	}
}
