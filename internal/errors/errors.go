package errors

import (
	stderrors "errors"
	"fmt"
)

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// Credential and invocation errors

// ErrConfig reports missing or invalid credentials and settings needed by an
// operation. It is raised per call, so an unconfigured service account only
// fails the operations that need it.
type ErrConfig struct {
	Message string
	Err     error
}

func (e *ErrConfig) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ErrConfig) Unwrap() error {
	return e.Err
}

type ErrMissingArgument struct {
	Field   string
	Message string
}

func (e *ErrMissingArgument) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s parameter is required", e.Field)
}

type ErrUnknownTool struct {
	Name string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}

// Upstream errors

type ErrAuthentication struct {
	Issuer string
	Err    error
}

func (e *ErrAuthentication) Error() string {
	issuer := e.Issuer
	if issuer == "" {
		issuer = "Adobe IMS"
	}
	return fmt.Sprintf("Failed to authenticate with %s: %v", issuer, e.Err)
}

func (e *ErrAuthentication) Unwrap() error {
	return e.Err
}

// maxBodyInMessage caps how much of an upstream body is echoed in Error().
const maxBodyInMessage = 512

// ErrUpstream is returned when AEM or IMS answers with a non-2xx status.
type ErrUpstream struct {
	Status int
	Body   string
}

func (e *ErrUpstream) Error() string {
	body := e.Body
	if len(body) > maxBodyInMessage {
		body = body[:maxBodyInMessage] + "..."
	}
	if body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, body)
}

type ErrTransport struct {
	Method string
	URL    string
	Err    error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.URL, e.Err)
}

func (e *ErrTransport) Unwrap() error {
	return e.Err
}

// StatusCode returns the upstream HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var upstream *ErrUpstream
	if stderrors.As(err, &upstream) {
		return upstream.Status
	}
	return 0
}

// IsClientError reports whether err was caused by the caller's invocation
// rather than by credentials or the upstream service.
func IsClientError(err error) bool {
	var missing *ErrMissingArgument
	var unknown *ErrUnknownTool
	return stderrors.As(err, &missing) || stderrors.As(err, &unknown)
}
