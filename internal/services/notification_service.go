package services

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"regexp"
	"strings"
	"time"

	"github.com/containrrr/shoutrrr"
	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/logger"
	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/version"
)

// NotificationService stores in-app notifications and escalates critical
// security events to external providers through shoutrrr.
type NotificationService struct {
	DB         *gorm.DB
	staticURLs []string
	send       func(url, message string) error
}

var _ securitylog.Alerter = (*NotificationService)(nil)

// NewNotificationService creates the service. alertURLs are shoutrrr URLs
// that always receive alerts in addition to enabled providers in the database.
func NewNotificationService(db *gorm.DB, alertURLs []string) *NotificationService {
	return &NotificationService{DB: db, staticURLs: alertURLs, send: shoutrrr.Send}
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

func normalizeURL(serviceType, rawURL string) string {
	if serviceType == "discord" {
		matches := discordWebhookRegex.FindStringSubmatch(rawURL)
		if len(matches) == 3 {
			id := matches[1]
			token := matches[2]
			return fmt.Sprintf("discord://%s@%s", token, id)
		}
	}
	return rawURL
}

// describeURL names a destination without its credentials.
func describeURL(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host
}

// Internal Notifications (DB)

// ErrNotificationNotFound is returned when acknowledging an unknown notification.
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationFilter narrows the inbox listing. Zero values match everything.
type NotificationFilter struct {
	UnreadOnly bool
	EventID    string
	Severity   string
	Limit      int
}

// notificationTypeFor maps event severity onto the inbox's display levels.
func notificationTypeFor(sev securitylog.Severity) models.NotificationType {
	switch sev {
	case securitylog.SeverityCritical, securitylog.SeverityHigh:
		return models.NotificationTypeError
	case securitylog.SeverityMedium:
		return models.NotificationTypeWarning
	default:
		return models.NotificationTypeInfo
	}
}

// recordEvent stores the inbox entry for an escalated event.
func (s *NotificationService) recordEvent(ev securitylog.Event, title string) (*models.Notification, error) {
	notification := &models.Notification{
		Type:     notificationTypeFor(ev.Severity),
		Title:    title,
		Message:  ev.Message,
		EventID:  ev.ID,
		Severity: ev.Severity.String(),
		Source:   ev.SourceAddress,
	}
	return notification, s.DB.Create(notification).Error
}

func (s *NotificationService) List(f NotificationFilter) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.DB.Order("created_at desc")
	if f.UnreadOnly {
		query = query.Where("read = ?", false)
	}
	if f.EventID != "" {
		query = query.Where("event_id = ?", f.EventID)
	}
	if f.Severity != "" {
		query = query.Where("severity = ?", f.Severity)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	result := query.Find(&notifications)
	return notifications, result.Error
}

func (s *NotificationService) MarkAsRead(id string) error {
	result := s.DB.Model(&models.Notification{}).Where("id = ?", id).Update("read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllAsRead acknowledges every unread notification and reports how many changed.
func (s *NotificationService) MarkAllAsRead() (int64, error) {
	result := s.DB.Model(&models.Notification{}).Where("read = ?", false).Update("read", true)
	return result.RowsAffected, result.Error
}

// Providers

func (s *NotificationService) ListProviders() ([]models.NotificationProvider, error) {
	var providers []models.NotificationProvider
	err := s.DB.Order("created_at asc").Find(&providers).Error
	return providers, err
}

func (s *NotificationService) CreateProvider(p *models.NotificationProvider) error {
	if strings.TrimSpace(p.URL) == "" {
		return errors.New("provider url is required")
	}
	return s.DB.Create(p).Error
}

func (s *NotificationService) DeleteProvider(id string) error {
	return s.DB.Delete(&models.NotificationProvider{}, "id = ?", id).Error
}

// TestProvider sends a fixed message to one provider.
func (s *NotificationService) TestProvider(p models.NotificationProvider) error {
	return s.send(normalizeURL(p.Type, p.URL), fmt.Sprintf("Test notification from %s", version.Name))
}

// External Notifications (Shoutrrr)

// destinations collects the static alert URLs and every enabled provider
// subscribed to security alerts.
func (s *NotificationService) destinations() ([]string, error) {
	urls := append([]string(nil), s.staticURLs...)
	if s.DB == nil {
		return urls, nil
	}
	var providers []models.NotificationProvider
	if err := s.DB.Where("enabled = ? AND notify_security = ?", true, true).Find(&providers).Error; err != nil {
		return urls, fmt.Errorf("load notification providers: %w", err)
	}
	for _, p := range providers {
		urls = append(urls, normalizeURL(p.Type, p.URL))
	}
	return urls, nil
}

// Alert records an in-app notification for ev and fans it out to every
// destination concurrently. Failures are joined; one bad destination does
// not stop the others.
func (s *NotificationService) Alert(ctx context.Context, ev securitylog.Event) error {
	title := fmt.Sprintf("[%s] %s", strings.ToUpper(ev.Severity.String()), ev.Type)
	var errs []error

	if s.DB != nil {
		if _, err := s.recordEvent(ev, title); err != nil {
			errs = append(errs, fmt.Errorf("store notification: %w", err))
		}
	}

	urls, err := s.destinations()
	if err != nil {
		errs = append(errs, err)
	}
	if len(urls) == 0 {
		return errors.Join(errs...)
	}

	msg := fmt.Sprintf("%s\n\n%s", title, formatAlert(ev))
	results := make(chan error, len(urls))
	for _, u := range urls {
		go func(u string) {
			if err := s.send(u, msg); err != nil {
				results <- fmt.Errorf("send to %s: %w", describeURL(u), err)
				return
			}
			results <- nil
		}(u)
	}

	for range urls {
		select {
		case err := <-results:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		}
	}

	if len(errs) > 0 {
		logger.Log().WithField("event_id", ev.ID).WithField("destinations", len(urls)).Warn("security alert partially delivered")
	}
	return errors.Join(errs...)
}

func formatAlert(ev securitylog.Event) string {
	var b strings.Builder
	b.WriteString(ev.Message)
	b.WriteString("\n")
	fmt.Fprintf(&b, "\nEvent: %s", ev.ID)
	fmt.Fprintf(&b, "\nTime: %s", ev.Timestamp.Format(time.RFC3339))
	if ev.ActorID != "" {
		fmt.Fprintf(&b, "\nActor: %s", ev.ActorID)
	}
	if ev.SourceAddress != "" {
		fmt.Fprintf(&b, "\nSource: %s", ev.SourceAddress)
	}
	if ev.Endpoint != "" {
		fmt.Fprintf(&b, "\nEndpoint: %s %s", ev.Method, ev.Endpoint)
	}
	return b.String()
}
