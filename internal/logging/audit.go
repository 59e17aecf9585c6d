package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// Credential events
	TokenRefresh AuditEventType = "TOKEN_REFRESH"
	TokenFailure AuditEventType = "TOKEN_FAILURE"

	// Configuration events
	ConfigChange AuditEventType = "CONFIG_CHANGE"

	// Asset mutations
	MetadataUpdate AuditEventType = "METADATA_UPDATE"
	BulkUpdate     AuditEventType = "BULK_UPDATE"

	// Tool invocations from either front end
	ToolCall AuditEventType = "TOOL_CALL"

	// Requests rejected before reaching a tool
	AccessDenied AuditEventType = "ACCESS_DENIED"
)

// AuditSeverity represents the severity level of an audit event
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityError    AuditSeverity = "error"
	SeverityCritical AuditSeverity = "critical"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	StatusSuccess AuditStatus = "success"
	StatusFailure AuditStatus = "failure"
)

// AuditEvent records one credential, configuration or asset mutation event.
// Resource is an asset or folder path for mutations and a provider name for
// token events.
type AuditEvent struct {
	ID            string                 `json:"id"`
	Timestamp     time.Time              `json:"timestamp"`
	EventType     AuditEventType         `json:"event_type"`
	Severity      AuditSeverity          `json:"severity"`
	Actor         string                 `json:"actor,omitempty"`
	IPAddress     string                 `json:"ip_address,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Action        string                 `json:"action"`
	Resource      string                 `json:"resource"`
	Status        AuditStatus            `json:"status"`
	Details       map[string]interface{} `json:"details,omitempty"`
	ErrorMessage  string                 `json:"error_message,omitempty"`
}

// NewAuditEvent creates a new audit event with a generated ID and timestamp
func NewAuditEvent(eventType AuditEventType, action string, status AuditStatus) *AuditEvent {
	return &AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  SeverityInfo,
		Action:    action,
		Status:    status,
	}
}

// WithActor sets which front end (http, mcp, cli) triggered the event
func (e *AuditEvent) WithActor(actor string) *AuditEvent {
	e.Actor = actor
	return e
}

func (e *AuditEvent) WithIPAddress(ipAddress string) *AuditEvent {
	e.IPAddress = ipAddress
	return e
}

// WithContext copies the correlation ID from ctx onto the event
func (e *AuditEvent) WithContext(ctx context.Context) *AuditEvent {
	if id := GetCorrelationID(ctx); id != "" {
		e.CorrelationID = id
	}
	return e
}

func (e *AuditEvent) WithResource(resource string) *AuditEvent {
	e.Resource = resource
	return e
}

func (e *AuditEvent) WithSeverity(severity AuditSeverity) *AuditEvent {
	e.Severity = severity
	return e
}

func (e *AuditEvent) WithDetails(details map[string]interface{}) *AuditEvent {
	e.Details = details
	return e
}

// WithError marks the event failed and raises severity to error unless a
// higher severity was already set.
func (e *AuditEvent) WithError(errorMessage string) *AuditEvent {
	e.ErrorMessage = errorMessage
	e.Status = StatusFailure
	if e.Severity == "" || e.Severity == SeverityInfo {
		e.Severity = SeverityError
	}
	return e
}

// ToJSON converts the audit event to a JSON string
func (e *AuditEvent) ToJSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal audit event: %v"}`, err)
	}
	return string(data)
}

// ParseAuditEvent parses a JSON string into an AuditEvent
func ParseAuditEvent(data string) (*AuditEvent, error) {
	var event AuditEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, fmt.Errorf("failed to parse audit event: %w", err)
	}
	return &event, nil
}

// EventTypeFromString converts a string to AuditEventType
func EventTypeFromString(s string) AuditEventType {
	switch AuditEventType(s) {
	case TokenRefresh, TokenFailure, ConfigChange, MetadataUpdate, BulkUpdate, ToolCall, AccessDenied:
		return AuditEventType(s)
	default:
		return ToolCall
	}
}

// AuditQueryFilters narrows QueryEvents and CountEvents. Zero values are
// ignored.
type AuditQueryFilters struct {
	EventType string
	Status    string
	Resource  string
	Actor     string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
	OrderDesc bool
}

// AuditStore persists audit events.
type AuditStore interface {
	SaveEvent(event *AuditEvent) error
	SaveEventAsync(event *AuditEvent)
	QueryEvents(ctx context.Context, filters AuditQueryFilters) ([]*AuditEvent, error)
	CountEvents(ctx context.Context, filters AuditQueryFilters) (int, error)
	GetEventByID(ctx context.Context, id string) (*AuditEvent, error)
	Close() error
}
