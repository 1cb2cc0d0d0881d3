// Package notify delivers session alerts to the desktop.
package notify

import (
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// Notifier sends a short alert to the user.
type Notifier interface {
	Notify(title, message string) error
}

// Desktop shows alerts through the platform notification service.
type Desktop struct {
	alert  bool
	logger zerolog.Logger
}

// NewDesktop creates a desktop notifier. When alert is set, notifications
// also play the system sound.
func NewDesktop(appName string, alert bool, logger zerolog.Logger) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	return &Desktop{
		alert:  alert,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// Notify sends the alert. Failures are logged and returned.
func (d *Desktop) Notify(title, message string) error {
	var err error
	if d.alert {
		err = beeep.Alert(title, message, "")
	} else {
		err = beeep.Notify(title, message, "")
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
		return err
	}
	d.logger.Debug().Str("title", title).Msg("Notification sent")
	return nil
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }
