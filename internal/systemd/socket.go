package systemd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
)

// HTTPListenerName is the FileDescriptorName= of the HTTP socket in snuskoll.socket.
const HTTPListenerName = "http"

// HTTPListener returns the socket-activated HTTP listener, or nil when the
// process was not started through socket activation.
func HTTPListener() (net.Listener, error) {
	// false = leave LISTEN_* set for anything we exec
	if len(activation.Files(false)) == 0 {
		return nil, nil
	}

	// Named listeners require systemd 227+
	listenersMap, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	if lns, ok := listenersMap[HTTPListenerName]; ok && len(lns) > 0 {
		return lns[0], nil
	}

	// A single unnamed socket is taken as the HTTP listener
	lns, err := activation.Listeners()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if len(lns) == 1 && lns[0] != nil {
		return lns[0], nil
	}
	return nil, nil
}

// NotifyReady sends READY=1 notification to systemd
func NotifyReady() error {
	// sent is false when not running under systemd, which is fine
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		return fmt.Errorf("failed to send sd_notify: %w", err)
	}
	return nil
}

// NotifyReloading sends RELOADING=1 notification to systemd
func NotifyReloading() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReloading); err != nil {
		return fmt.Errorf("failed to send sd_notify reloading: %w", err)
	}
	return nil
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		return fmt.Errorf("failed to send sd_notify stopping: %w", err)
	}
	return nil
}

// WatchdogInterval returns how often to ping the watchdog, or 0 when the
// unit has no WatchdogSec=.
func WatchdogInterval() time.Duration {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return 0
	}
	return interval / 2
}

// RunWatchdog pings the systemd watchdog until ctx is done. It returns
// immediately when the watchdog is disabled.
func RunWatchdog(ctx context.Context, logger zerolog.Logger) {
	interval := WatchdogInterval()
	if interval == 0 {
		return
	}

	logger.Debug().Dur("interval", interval).Msg("systemd watchdog enabled")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				logger.Warn().Err(err).Msg("Failed to ping systemd watchdog")
			}
		}
	}
}
