package runtime

import (
	"context"
	"os/signal"
	"syscall"
)

// SignalContext is the process root context, cancelled on SIGINT/SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
