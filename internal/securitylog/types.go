package securitylog

import (
	"fmt"
	"strings"
	"time"
)

// Severity is totally ordered: SeverityLow < SeverityMedium < SeverityHigh < SeverityCritical.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

// Valid reports whether s is one of the declared severities.
func (s Severity) Valid() bool {
	return s >= SeverityLow && s <= SeverityCritical
}

func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// MarshalText encodes the severity as its lowercase name.
func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSeverity accepts a severity name in any case.
func ParseSeverity(name string) (Severity, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i := SeverityLow; i <= SeverityCritical; i++ {
		if severityNames[i] == n {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

// EventType is the closed set of security event kinds.
type EventType int

const (
	EventLoginSuccess EventType = iota + 1
	EventLoginFailed
	EventLogout
	EventPasswordResetRequested
	EventPasswordResetCompleted
	EventAccountLocked
	EventRateLimitExceeded
	EventInjectionAttempt
	EventXSSAttempt
	EventPathTraversalAttempt
	EventUnauthorizedAccess
	EventPrivilegeEscalationAttempt
	EventDataModification
	EventSensitiveDataAccess
	EventFileUpload
	EventAdminAction
	EventSuspiciousActivity
	EventPolicyViolation
)

var eventTypeNames = [...]string{
	EventLoginSuccess:               "LOGIN_SUCCESS",
	EventLoginFailed:                "LOGIN_FAILED",
	EventLogout:                     "LOGOUT",
	EventPasswordResetRequested:     "PASSWORD_RESET_REQUESTED",
	EventPasswordResetCompleted:     "PASSWORD_RESET_COMPLETED",
	EventAccountLocked:              "ACCOUNT_LOCKED",
	EventRateLimitExceeded:          "RATE_LIMIT_EXCEEDED",
	EventInjectionAttempt:           "INJECTION_ATTEMPT",
	EventXSSAttempt:                 "XSS_ATTEMPT",
	EventPathTraversalAttempt:       "PATH_TRAVERSAL_ATTEMPT",
	EventUnauthorizedAccess:         "UNAUTHORIZED_ACCESS",
	EventPrivilegeEscalationAttempt: "PRIVILEGE_ESCALATION_ATTEMPT",
	EventDataModification:           "DATA_MODIFICATION",
	EventSensitiveDataAccess:        "SENSITIVE_DATA_ACCESS",
	EventFileUpload:                 "FILE_UPLOAD",
	EventAdminAction:                "ADMIN_ACTION",
	EventSuspiciousActivity:         "SUSPICIOUS_ACTIVITY",
	EventPolicyViolation:            "POLICY_VIOLATION",
}

// EventTypes lists every declared event type in declaration order.
func EventTypes() []EventType {
	out := make([]EventType, 0, len(eventTypeNames)-1)
	for t := EventLoginSuccess; t <= EventPolicyViolation; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is one of the declared event types.
func (t EventType) Valid() bool {
	return t >= EventLoginSuccess && t <= EventPolicyViolation
}

func (t EventType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("EventType(%d)", int(t))
	}
	return eventTypeNames[t]
}

// MarshalText encodes the event type as its upper-case name.
func (t EventType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid event type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText parses an event type name.
func (t *EventType) UnmarshalText(b []byte) error {
	v, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseEventType accepts an event type name in any case.
func ParseEventType(name string) (EventType, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	for t := EventLoginSuccess; t <= EventPolicyViolation; t++ {
		if eventTypeNames[t] == n {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown event type %q", name)
}

// InjectionKind classifies an injection payload.
type InjectionKind string

const (
	InjectionSQL     InjectionKind = "sql"
	InjectionXSS     InjectionKind = "xss"
	InjectionCommand InjectionKind = "command"
)

// EventType maps the kind to the event type it is reported as.
func (k InjectionKind) EventType() EventType {
	switch k {
	case InjectionXSS, InjectionCommand:
		return EventXSSAttempt
	default:
		return EventInjectionAttempt
	}
}

// EventContext carries optional request-scoped fields copied into an event.
type EventContext struct {
	ActorID       string `json:"actor_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	SourceAddress string `json:"source_address,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"`
	Method        string `json:"method,omitempty"`
}

// Event is an immutable record of one notable action. Details have already
// been redacted when the logger does not include sensitive data.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	EventContext
	Details map[string]any `json:"details,omitempty"`
	Message string         `json:"message"`
	Success bool           `json:"success"`
}

// deriveSuccess treats an "error" key, or a "failed" key that is not false,
// as a failure marker.
func deriveSuccess(details map[string]any) bool {
	if _, ok := details["error"]; ok {
		return false
	}
	if v, ok := details["failed"]; ok {
		if b, isBool := v.(bool); isBool {
			return !b
		}
		return false
	}
	return true
}
