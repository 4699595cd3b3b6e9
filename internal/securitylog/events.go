package securitylog

import (
	"fmt"
	"unicode/utf8"
)

// InputPreviewLength is the number of runes of a suspicious payload kept in
// an injection event.
const InputPreviewLength = 100

// withDetails copies extra and layers the given pairs over it without
// touching the caller's map.
func withDetails(extra map[string]any, pairs ...any) map[string]any {
	out := make(map[string]any, len(extra)+len(pairs)/2)
	for k, v := range extra {
		out[k] = v
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		if k, ok := pairs[i].(string); ok {
			out[k] = pairs[i+1]
		}
	}
	return out
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= InputPreviewLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:InputPreviewLength])
}

// LogLoginAttempt records a login outcome. Failures are medium severity and
// carry failed=true.
func (l *Logger) LogLoginAttempt(actorID string, success bool, sourceAddress string, details map[string]any) (Event, bool) {
	ec := EventContext{ActorID: actorID, SourceAddress: sourceAddress}
	if success {
		return l.Log(EventLoginSuccess, SeverityLow,
			fmt.Sprintf("User %s logged in successfully", actorID),
			withDetails(details), ec)
	}
	return l.Log(EventLoginFailed, SeverityMedium,
		fmt.Sprintf("Failed login attempt for %s", actorID),
		withDetails(details, "failed", true), ec)
}

// LogRateLimitExceeded records a request refused by a limiter.
func (l *Logger) LogRateLimitExceeded(identifier, action, sourceAddress string) (Event, bool) {
	return l.Log(EventRateLimitExceeded, SeverityHigh,
		fmt.Sprintf("Rate limit exceeded for %s on %s", identifier, action),
		map[string]any{"identifier": identifier, "action": action},
		EventContext{SourceAddress: sourceAddress})
}

// LogInjectionAttempt records a payload that looks like an injection. Only
// the first InputPreviewLength runes of input are kept. ec carries the
// optional endpoint, actor and source address.
func (l *Logger) LogInjectionAttempt(kind InjectionKind, input string, ec EventContext) (Event, bool) {
	return l.Log(kind.EventType(), SeverityHigh,
		fmt.Sprintf("Possible %s injection attempt detected", kind),
		map[string]any{"injection_type": string(kind), "suspicious_input": preview(input)},
		ec)
}

// LogUnauthorizedAccess records access to an endpoint without valid
// credentials.
func (l *Logger) LogUnauthorizedAccess(endpoint string, ec EventContext, details map[string]any) (Event, bool) {
	ec.Endpoint = endpoint
	return l.Log(EventUnauthorizedAccess, SeverityHigh,
		fmt.Sprintf("Unauthorized access attempt to %s", endpoint),
		withDetails(details), ec)
}

// LogPrivilegeEscalation records an actor reaching for a role it does not hold.
func (l *Logger) LogPrivilegeEscalation(actorID, attemptedRole, currentRole, sourceAddress string) (Event, bool) {
	return l.Log(EventPrivilegeEscalationAttempt, SeverityCritical,
		fmt.Sprintf("Privilege escalation attempt by %s: %s -> %s", actorID, currentRole, attemptedRole),
		map[string]any{"attempted_role": attemptedRole, "current_role": currentRole},
		EventContext{ActorID: actorID, SourceAddress: sourceAddress})
}

// LogSuspiciousActivity records free-form suspicious behaviour.
func (l *Logger) LogSuspiciousActivity(description string, ec EventContext, details map[string]any) (Event, bool) {
	return l.Log(EventSuspiciousActivity, SeverityMedium, description, withDetails(details), ec)
}

// LogLogout records the end of a session.
func (l *Logger) LogLogout(actorID, sessionID, sourceAddress string) (Event, bool) {
	return l.Log(EventLogout, SeverityLow,
		fmt.Sprintf("User %s logged out", actorID), nil,
		EventContext{ActorID: actorID, SessionID: sessionID, SourceAddress: sourceAddress})
}

// LogAccountLocked records an account entering a lockout period.
func (l *Logger) LogAccountLocked(actorID, sourceAddress string, retryAfterSeconds int) (Event, bool) {
	return l.Log(EventAccountLocked, SeverityHigh,
		fmt.Sprintf("Account %s locked after repeated failures", actorID),
		map[string]any{"retry_after_seconds": retryAfterSeconds},
		EventContext{ActorID: actorID, SourceAddress: sourceAddress})
}

// LogPasswordResetRequested records a reset request. The actor may be an
// unknown address; the event is recorded either way.
func (l *Logger) LogPasswordResetRequested(actorID, sourceAddress string, known bool) (Event, bool) {
	return l.Log(EventPasswordResetRequested, SeverityLow,
		fmt.Sprintf("Password reset requested for %s", actorID),
		map[string]any{"known_account": known},
		EventContext{ActorID: actorID, SourceAddress: sourceAddress})
}

// LogPasswordResetCompleted records a reset that changed a password.
func (l *Logger) LogPasswordResetCompleted(actorID, sourceAddress string) (Event, bool) {
	return l.Log(EventPasswordResetCompleted, SeverityMedium,
		fmt.Sprintf("Password reset completed for %s", actorID), nil,
		EventContext{ActorID: actorID, SourceAddress: sourceAddress})
}

// LogPathTraversal records a request path that escapes its root.
func (l *Logger) LogPathTraversal(path string, ec EventContext) (Event, bool) {
	return l.Log(EventPathTraversalAttempt, SeverityHigh,
		"Path traversal attempt detected",
		map[string]any{"suspicious_input": preview(path)}, ec)
}

// LogAdminAction records an administrative change.
func (l *Logger) LogAdminAction(actorID, action string, details map[string]any, ec EventContext) (Event, bool) {
	ec.ActorID = actorID
	return l.Log(EventAdminAction, SeverityMedium,
		fmt.Sprintf("Admin %s performed %s", actorID, action),
		withDetails(details, "action", action), ec)
}

// LogDataModification records a change to security-relevant data.
func (l *Logger) LogDataModification(actorID, resource string, details map[string]any, ec EventContext) (Event, bool) {
	ec.ActorID = actorID
	return l.Log(EventDataModification, SeverityLow,
		fmt.Sprintf("User %s modified %s", actorID, resource),
		withDetails(details, "resource", resource), ec)
}
