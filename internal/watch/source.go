package watch

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

// Source wakes the watch loop when the display configuration may have
// changed. Wait blocks for at most timeout and reports whether a change
// was signalled; a false return means the timeout expired and the
// caller should scan anyway.
type Source interface {
	Name() string
	Wait(ctx context.Context, timeout time.Duration) bool
	Close() error
}

// OpenSource selects an event source for the requested watch mode. A
// mode whose transport is unavailable falls back to dynamic selection;
// dynamic prefers udev, then the desktop session bus, then a device
// directory watch, then plain polling.
func OpenSource(mode, devRoot string, onSleep func(bool), logger Logger) Source {
	if logger == nil {
		logger = noopLogger{}
	}
	switch mode {
	case "poll":
		return pollSource{}
	case "udev":
		if s, err := newUdevSource(); err == nil {
			return s
		} else {
			logger.Warn("udev netlink unavailable, selecting dynamically", "error", err)
		}
	case "session":
		if s, err := newSessionSource(onSleep); err == nil {
			return s
		} else {
			logger.Warn("session bus unavailable, selecting dynamically", "error", err)
		}
	}

	// Dynamic: best available.
	if s, err := newUdevSource(); err == nil {
		logger.Info("watch source selected", "source", s.Name())
		return s
	}
	if s, err := newSessionSource(onSleep); err == nil {
		logger.Info("watch source selected", "source", s.Name())
		return s
	}
	if s, err := newDevfsSource(devRoot); err == nil {
		logger.Info("watch source selected", "source", s.Name())
		return s
	}
	logger.Info("watch source selected", "source", "poll")
	return pollSource{}
}

// pollSource never signals; the loop runs purely on its interval.
type pollSource struct{}

func (pollSource) Name() string { return "poll" }

func (pollSource) Wait(ctx context.Context, timeout time.Duration) bool {
	sleepCtx(ctx, timeout)
	return false
}

func (pollSource) Close() error { return nil }

// udevSource listens on the kernel uevent netlink socket for DRM
// subsystem events, the same feed udev itself consumes.
type udevSource struct {
	fd int
}

func newUdevSource() (*udevSource, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("opening uevent socket: %w", err)
	}
	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: 1, // kernel uevent multicast group
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd) //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("binding uevent socket: %w", err)
	}
	return &udevSource{fd: fd}, nil
}

func (u *udevSource) Name() string { return "udev" }

// Wait polls the netlink socket in short slices until a DRM event
// arrives or the timeout expires.
func (u *udevSource) Wait(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 2048)
	for {
		if ctx.Err() != nil {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		slice := remaining
		if slice > sleepSlice {
			slice = sleepSlice
		}

		fds := []unix.PollFd{{Fd: int32(u.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, int(slice.Milliseconds()))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false
		}
		if n == 0 {
			continue
		}
		nr, _, err := unix.Recvfrom(u.fd, buf, 0)
		if err != nil {
			continue
		}
		if isDRMChange(buf[:nr]) {
			return true
		}
	}
}

// isDRMChange reports whether a uevent message is a DRM subsystem
// change. Messages are NUL-separated KEY=value pairs after a header
// line.
func isDRMChange(msg []byte) bool {
	subsystem := false
	action := false
	for _, field := range bytes.Split(msg, []byte{0}) {
		switch {
		case bytes.Equal(field, []byte("SUBSYSTEM=drm")):
			subsystem = true
		case bytes.Equal(field, []byte("ACTION=change")),
			bytes.Equal(field, []byte("ACTION=add")),
			bytes.Equal(field, []byte("ACTION=remove")):
			action = true
		}
	}
	return subsystem && action
}

func (u *udevSource) Close() error {
	return unix.Close(u.fd)
}

// sessionSource listens for the desktop's display-configuration change
// signal on the session bus, and for logind's PrepareForSleep on the
// system bus so processing pauses across suspend.
type sessionSource struct {
	session *dbus.Conn
	system  *dbus.Conn
	signals chan *dbus.Signal
	onSleep func(bool)
}

func newSessionSource(onSleep func(bool)) (*sessionSource, error) {
	session, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connecting session bus: %w", err)
	}
	if err := session.AddMatchSignal(
		dbus.WithMatchInterface("org.gnome.Mutter.DisplayConfig"),
		dbus.WithMatchMember("MonitorsChanged"),
	); err != nil {
		session.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("subscribing to MonitorsChanged: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	session.Signal(signals)

	s := &sessionSource{
		session: session,
		signals: signals,
		onSleep: onSleep,
	}

	// Sleep awareness is best effort; the session source still works
	// without a system bus.
	if system, err := dbus.ConnectSystemBus(); err == nil {
		if err := system.AddMatchSignal(
			dbus.WithMatchInterface("org.freedesktop.login1.Manager"),
			dbus.WithMatchMember("PrepareForSleep"),
		); err == nil {
			system.Signal(signals)
			s.system = system
		} else {
			system.Close() //nolint:errcheck // Best effort cleanup on error path
		}
	}
	return s, nil
}

func (s *sessionSource) Name() string { return "session" }

func (s *sessionSource) Wait(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return false
		case sig, ok := <-s.signals:
			if !ok {
				return false
			}
			if strings.HasSuffix(sig.Name, ".PrepareForSleep") {
				if s.onSleep != nil && len(sig.Body) == 1 {
					if entering, ok := sig.Body[0].(bool); ok {
						s.onSleep(entering)
						if !entering {
							// Resume: scan immediately.
							return true
						}
					}
				}
				continue
			}
			return true
		}
	}
}

func (s *sessionSource) Close() error {
	err := s.session.Close()
	if s.system != nil {
		if cerr := s.system.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// devfsSource watches the device directory for i2c node create/remove,
// a low-cost wake-up when the uevent socket is not permitted.
type devfsSource struct {
	watcher *fsnotify.Watcher
}

func newDevfsSource(devRoot string) (*devfsSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating device watcher: %w", err)
	}
	if err := w.Add(devRoot); err != nil {
		w.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("watching %s: %w", devRoot, err)
	}
	return &devfsSource{watcher: w}, nil
}

func (d *devfsSource) Name() string { return "devfs" }

func (d *devfsSource) Wait(ctx context.Context, timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return false
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return false
			}
			if strings.Contains(ev.Name, "i2c-") &&
				ev.Op&(fsnotify.Create|fsnotify.Remove) != 0 {
				return true
			}
		case <-d.watcher.Errors:
		}
	}
}

func (d *devfsSource) Close() error {
	return d.watcher.Close()
}
