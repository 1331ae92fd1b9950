//go:build unix

package daemon

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func (c Command) signal() (os.Signal, bool) {
	switch c {
	case CmdStop:
		return unix.SIGTERM, true
	case CmdReload:
		return unix.SIGHUP, true
	case CmdReset:
		return unix.SIGUSR1, true
	case CmdRecover:
		return unix.SIGUSR2, true
	default:
		return nil, false
	}
}

func commandFor(sig os.Signal) (Command, bool) {
	switch sig {
	case unix.SIGTERM, unix.SIGINT:
		return CmdStop, true
	case unix.SIGHUP:
		return CmdReload, true
	case unix.SIGUSR1:
		return CmdReset, true
	case unix.SIGUSR2:
		return CmdRecover, true
	default:
		return 0, false
	}
}

func notifySignals() []os.Signal {
	return []os.Signal{unix.SIGTERM, unix.SIGINT, unix.SIGHUP, unix.SIGUSR1, unix.SIGUSR2}
}

// processAlive probes pid with signal 0. EPERM means the process exists
// but belongs to someone else.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func execProcess(path string, args, env []string) error {
	return unix.Exec(path, args, env)
}
