// Package monitoring provides alerting capabilities for the feed republisher
package monitoring

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	AlertTypeTargetCooling    AlertType = "target_cooling"
	AlertTypeTargetsExhausted AlertType = "targets_exhausted"
	AlertTypeFeedFailure      AlertType = "feed_failure"
)

// Alert represents an alert
type Alert struct {
	ID          string            `json:"id"`
	Type        AlertType         `json:"type"`
	Severity    AlertSeverity     `json:"severity"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
	Labels      map[string]string `json:"labels"`
	Resolved    bool              `json:"resolved"`
	ResolvedAt  *time.Time        `json:"resolved_at,omitempty"`
}

// Notifier interface for sending alert notifications
type Notifier interface {
	Send(alert *Alert) error
	Name() string
}

// LogNotifier sends alerts to the log
type LogNotifier struct {
	logger *logrus.Logger
}

func (n *LogNotifier) Name() string {
	return "log"
}

func (n *LogNotifier) Send(alert *Alert) error {
	level := logrus.InfoLevel
	switch alert.Severity {
	case SeverityHigh:
		level = logrus.WarnLevel
	case SeverityCritical:
		level = logrus.ErrorLevel
	}

	entry := n.logger.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"alert_type": alert.Type,
		"severity":   alert.Severity,
		"labels":     alert.Labels,
		"resolved":   alert.Resolved,
	})
	if alert.Resolved {
		entry.Log(logrus.InfoLevel, fmt.Sprintf("RESOLVED: %s", alert.Title))
		return nil
	}
	entry.Log(level, fmt.Sprintf("ALERT: %s - %s", alert.Title, alert.Description))

	return nil
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// AlertManager keeps one active alert per key and notifies on raise and resolve.
type AlertManager struct {
	alerts    map[string]*Alert
	mutex     sync.RWMutex
	logger    *logrus.Logger
	notifiers []Notifier
}

// NewAlertManager creates a new alert manager
func NewAlertManager(logger *logrus.Logger) *AlertManager {
	return &AlertManager{
		alerts:    make(map[string]*Alert),
		logger:    logger,
		notifiers: []Notifier{NewLogNotifier(logger)},
	}
}

// RaiseAlert opens an alert under key. Raising an already active key is a no-op.
func (am *AlertManager) RaiseAlert(key string, alertType AlertType, severity AlertSeverity, title, description string, labels map[string]string) {
	am.mutex.Lock()
	if existing, ok := am.alerts[key]; ok && !existing.Resolved {
		am.mutex.Unlock()
		return
	}
	alert := &Alert{
		ID:          fmt.Sprintf("%s-%d", alertType, time.Now().UnixNano()),
		Type:        alertType,
		Severity:    severity,
		Title:       title,
		Description: description,
		Timestamp:   time.Now(),
		Labels:      labels,
	}
	am.alerts[key] = alert
	am.mutex.Unlock()

	am.sendNotifications(alert)
}

// ResolveAlert resolves the active alert under key, if any
func (am *AlertManager) ResolveAlert(key string) {
	am.mutex.Lock()
	alert, exists := am.alerts[key]
	if !exists || alert.Resolved {
		am.mutex.Unlock()
		return
	}
	now := time.Now()
	alert.Resolved = true
	alert.ResolvedAt = &now
	delete(am.alerts, key)
	am.mutex.Unlock()

	am.sendNotifications(alert)
}

// sendNotifications sends the alert to all notifiers
func (am *AlertManager) sendNotifications(alert *Alert) {
	am.mutex.RLock()
	notifiers := make([]Notifier, len(am.notifiers))
	copy(notifiers, am.notifiers)
	am.mutex.RUnlock()

	for _, notifier := range notifiers {
		if err := notifier.Send(alert); err != nil {
			am.logger.WithError(err).WithField("notifier", notifier.Name()).Error("Failed to send alert notification")
		}
	}
}

// GetActiveAlerts returns all active alerts ordered by time
func (am *AlertManager) GetActiveAlerts() []*Alert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	activeAlerts := make([]*Alert, 0, len(am.alerts))
	for _, alert := range am.alerts {
		if !alert.Resolved {
			activeAlerts = append(activeAlerts, alert)
		}
	}
	sort.Slice(activeAlerts, func(i, j int) bool {
		return activeAlerts[i].Timestamp.Before(activeAlerts[j].Timestamp)
	})

	return activeAlerts
}

// AddNotifier adds a new notifier
func (am *AlertManager) AddNotifier(notifier Notifier) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	am.notifiers = append(am.notifiers, notifier)
}
