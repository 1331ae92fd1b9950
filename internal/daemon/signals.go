package daemon

import (
	"context"
	"os"
	"os/signal"
)

// Command is a control request delivered to the running daemon.
type Command int

const (
	CmdStop Command = iota + 1
	CmdReload
	CmdReset
	CmdRecover
)

func (c Command) String() string {
	switch c {
	case CmdStop:
		return "stop"
	case CmdReload:
		return "reload"
	case CmdReset:
		return "reset"
	case CmdRecover:
		return "recover"
	default:
		return "unknown"
	}
}

// Listen translates process signals into commands until ctx is done,
// then closes the returned channel.
func Listen(ctx context.Context) <-chan Command {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, notifySignals()...)

	out := make(chan Command, 4)
	go func() {
		defer close(out)
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigs:
				cmd, ok := commandFor(sig)
				if !ok {
					continue
				}
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
