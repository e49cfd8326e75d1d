package bootstrap

import (
	"time"

	"github.com/wolfman30/hotel-concierge-ai/internal/conversation"
	"github.com/wolfman30/hotel-concierge-ai/pkg/logging"
)

// WaitForWorker blocks until the worker drains or timeout elapses. It
// reports whether the worker stopped cleanly.
func WaitForWorker(worker *conversation.Worker, timeout time.Duration, logger *logging.Logger) bool {
	if worker == nil {
		return true
	}
	if logger == nil {
		logger = logging.Default()
	}

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("conversation worker stopped")
		return true
	case <-time.After(timeout):
		logger.Error("conversation worker shutdown timed out", "timeout", timeout)
		return false
	}
}
