//go:build !unix

package daemon

import (
	"errors"
	"os"
)

func (c Command) signal() (os.Signal, bool) {
	if c == CmdStop {
		return os.Kill, true
	}
	return nil, false
}

func commandFor(sig os.Signal) (Command, bool) {
	if sig == os.Interrupt {
		return CmdStop, true
	}
	return 0, false
}

func notifySignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

func processAlive(pid int) bool {
	_, err := os.FindProcess(pid)
	return err == nil
}

func execProcess(string, []string, []string) error {
	return errors.ErrUnsupported
}
