// Package audit records security events in memory and hands them to a
// worker pool for persistence.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chameleon/internal/metrics"
	"chameleon/internal/models"
)

// EventType names a kind of security event
type EventType string

const (
	LoginSuccess         EventType = "login_success"
	LoginFailed          EventType = "login_failed"
	Logout               EventType = "logout"
	PasswordResetRequest EventType = "password_reset_request"
	PasswordResetSuccess EventType = "password_reset_success"
	UnauthorizedAccess   EventType = "unauthorized_access"
	ForbiddenAction      EventType = "forbidden_action"
	RateLimitExceeded    EventType = "rate_limit_exceeded"
	RateLimitBlocked     EventType = "rate_limit_blocked"
	SQLInjectionAttempt  EventType = "sql_injection_attempt"
	XSSAttempt           EventType = "xss_attempt"
	InvalidToken         EventType = "invalid_token"
	SuspiciousUpload     EventType = "suspicious_file_upload"
	AdminAction          EventType = "admin_action"
	UserBanned           EventType = "user_banned"
	UserUnbanned         EventType = "user_unbanned"
)

// Severity grades an event
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severities = map[EventType]Severity{
	LoginSuccess:         SeverityLow,
	LoginFailed:          SeverityMedium,
	Logout:               SeverityLow,
	PasswordResetRequest: SeverityMedium,
	PasswordResetSuccess: SeverityMedium,
	UnauthorizedAccess:   SeverityHigh,
	ForbiddenAction:      SeverityHigh,
	RateLimitExceeded:    SeverityMedium,
	RateLimitBlocked:     SeverityHigh,
	SQLInjectionAttempt:  SeverityCritical,
	XSSAttempt:           SeverityCritical,
	InvalidToken:         SeverityHigh,
	SuspiciousUpload:     SeverityHigh,
	AdminAction:          SeverityLow,
	UserBanned:           SeverityMedium,
	UserUnbanned:         SeverityMedium,
}

// SeverityOf returns the severity for an event type; unknown types are medium
func SeverityOf(t EventType) Severity {
	if s, ok := severities[t]; ok {
		return s
	}
	return SeverityMedium
}

// ParseSeverity maps a query value to a Severity
func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return sev, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// DefaultBufferSize is how many events are kept in memory
const DefaultBufferSize = 10000

// Event is what callers report
type Event struct {
	Type       EventType
	UserID     *int64
	AuthID     string
	Identifier string
	UserAgent  string
	Path       string
	Method     string
	Message    string
	Details    map[string]any
}

// Submitter queues events for persistence
type Submitter interface {
	Submit(event models.AuditEvent) error
}

// Logger keeps the most recent events in a ring buffer
type Logger struct {
	mu    sync.RWMutex
	buf   []models.AuditEvent
	next  int
	full  bool
	now   func() time.Time
	sink  Submitter
	log   *zap.Logger
	stats *metrics.Metrics
}

// Option configures a Logger
type Option func(*Logger)

// WithClock overrides the event timestamp source
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithSubmitter persists every logged event through s
func WithSubmitter(s Submitter) Option {
	return func(l *Logger) { l.sink = s }
}

// WithMetrics counts events by type and severity
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logger) { l.stats = m }
}

// New creates a logger holding up to size events
func New(size int, log *zap.Logger, opts ...Option) *Logger {
	if size <= 0 {
		size = DefaultBufferSize
	}
	l := &Logger{
		buf: make([]models.AuditEvent, size),
		now: time.Now,
		log: log.Named("audit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log records an event and returns the stored form
func (l *Logger) Log(ctx context.Context, e Event) models.AuditEvent {
	severity := SeverityOf(e.Type)
	record := models.AuditEvent{
		ID:         uuid.NewString(),
		Timestamp:  l.now().UTC(),
		EventType:  string(e.Type),
		Severity:   string(severity),
		UserID:     e.UserID,
		AuthID:     e.AuthID,
		Identifier: e.Identifier,
		UserAgent:  e.UserAgent,
		Path:       e.Path,
		Method:     e.Method,
		Message:    e.Message,
	}
	if record.Identifier == "" {
		record.Identifier = "unknown"
	}
	if record.UserAgent == "" {
		record.UserAgent = "unknown"
	}
	if len(e.Details) > 0 {
		if encoded, err := json.Marshal(e.Details); err == nil {
			record.Details = string(encoded)
		}
	}

	l.mu.Lock()
	l.buf[l.next] = record
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	fields := []zap.Field{
		zap.String("event_type", record.EventType),
		zap.String("severity", record.Severity),
		zap.String("identifier", record.Identifier),
		zap.String("path", record.Path),
		zap.String("method", record.Method),
	}
	if record.Message != "" {
		fields = append(fields, zap.String("message", record.Message))
	}
	switch severity {
	case SeverityCritical:
		l.log.Error("critical security event", append(fields, zap.String("details", record.Details))...)
	case SeverityHigh:
		l.log.Warn("security event", fields...)
	default:
		l.log.Info("security event", fields...)
	}
	l.stats.Audit(record.EventType, record.Severity)

	if l.sink != nil && ctx.Err() == nil {
		if err := l.sink.Submit(record); err != nil {
			l.log.Warn("audit event not persisted", zap.String("event_id", record.ID), zap.Error(err))
		}
	}
	return record
}

// snapshot returns buffered events oldest first. Caller holds the read lock.
func (l *Logger) snapshot() []models.AuditEvent {
	if !l.full {
		out := make([]models.AuditEvent, l.next)
		copy(out, l.buf[:l.next])
		return out
	}
	out := make([]models.AuditEvent, 0, len(l.buf))
	out = append(out, l.buf[l.next:]...)
	return append(out, l.buf[:l.next]...)
}

// Len returns how many events are buffered
func (l *Logger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}

// Recent returns up to limit events, newest first
func (l *Logger) Recent(limit int) []models.AuditEvent {
	return l.filter(limit, func(models.AuditEvent) bool { return true })
}

// ByIdentifier returns up to limit events for an identifier or user ID, newest first
func (l *Logger) ByIdentifier(identifier string, limit int) []models.AuditEvent {
	return l.filter(limit, func(e models.AuditEvent) bool {
		return e.Identifier == identifier ||
			(e.UserID != nil && strconv.FormatInt(*e.UserID, 10) == identifier)
	})
}

// BySeverity returns up to limit events of one severity, newest first
func (l *Logger) BySeverity(severity Severity, limit int) []models.AuditEvent {
	return l.filter(limit, func(e models.AuditEvent) bool { return e.Severity == string(severity) })
}

func (l *Logger) filter(limit int, keep func(models.AuditEvent) bool) []models.AuditEvent {
	l.mu.RLock()
	events := l.snapshot()
	l.mu.RUnlock()

	out := make([]models.AuditEvent, 0, min(max(limit, 0), len(events)))
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(events[i]) {
			out = append(out, events[i])
		}
	}
	return out
}

// Suspicion scores an identifier's recent history
type Suspicion struct {
	Suspicious bool   `json:"suspicious"`
	Reason     string `json:"reason,omitempty"`
	Score      int    `json:"score"`
}

// CheckSuspicious weighs the identifier's last 50 events. Critical events
// count 50, high 20, rate limit hits 10 and failed logins 5; a score of 50
// or more is suspicious.
func (l *Logger) CheckSuspicious(identifier string) Suspicion {
	var critical, high, rateLimited, failedLogins int
	for _, e := range l.ByIdentifier(identifier, 50) {
		switch Severity(e.Severity) {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		}
		switch EventType(e.EventType) {
		case RateLimitExceeded, RateLimitBlocked:
			rateLimited++
		case LoginFailed:
			failedLogins++
		}
	}

	score := critical*50 + high*20 + rateLimited*10 + failedLogins*5

	var reasons []string
	if critical > 0 {
		reasons = append(reasons, fmt.Sprintf("%d critical security events", critical))
	}
	if failedLogins >= 5 {
		reasons = append(reasons, fmt.Sprintf("%d failed login attempts", failedLogins))
	}
	if rateLimited >= 3 {
		reasons = append(reasons, fmt.Sprintf("%d rate limit violations", rateLimited))
	}

	return Suspicion{
		Suspicious: score >= 50,
		Reason:     strings.Join(reasons, ", "),
		Score:      score,
	}
}
