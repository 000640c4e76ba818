package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalHandler cancels a command's context on SIGINT or SIGTERM and runs
// registered callbacks
type SignalHandler struct {
	signals chan os.Signal
	stopCh  chan struct{} // closed by Stop
	done    chan struct{} // closed when a signal was handled
	cancel  context.CancelFunc

	mu         sync.Mutex
	onShutdown []func()
	stopOnce   sync.Once
	notified   bool
}

// NewSignalHandler creates a signal handler with the given context cancel
func NewSignalHandler(cancel context.CancelFunc) *SignalHandler {
	return &SignalHandler{
		signals: make(chan os.Signal, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
}

// Start begins listening for signals
func (h *SignalHandler) Start() {
	h.StartWithNotify(true)
}

// StartWithNotify begins listening. With notify false no OS signals are
// registered; tests deliver through Trigger instead.
func (h *SignalHandler) StartWithNotify(notify bool) {
	if notify {
		h.mu.Lock()
		h.notified = true
		h.mu.Unlock()
		signal.Notify(h.signals, syscall.SIGINT, syscall.SIGTERM)
	}

	go func() {
		select {
		case sig := <-h.signals:
			log.Printf("Received signal: %v", sig)
			h.handle()
		case <-h.stopCh:
		}
	}()
}

// Trigger delivers sig as if the process had received it
func (h *SignalHandler) Trigger(sig os.Signal) {
	select {
	case h.signals <- sig:
	default:
	}
}

func (h *SignalHandler) handle() {
	if h.cancel != nil {
		h.cancel()
	}

	h.mu.Lock()
	callbacks := append([]func(){}, h.onShutdown...)
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	close(h.done)
}

// OnShutdown registers a callback to run, in registration order, after
// the context is cancelled
func (h *SignalHandler) OnShutdown(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onShutdown = append(h.onShutdown, fn)
}

// Done is closed once a signal has been handled
func (h *SignalHandler) Done() <-chan struct{} {
	return h.done
}

// Stop unregisters from OS signals. A signal already being handled
// finishes in the background.
func (h *SignalHandler) Stop() {
	h.mu.Lock()
	notified := h.notified
	h.mu.Unlock()
	if notified {
		signal.Stop(h.signals)
	}
	h.stopOnce.Do(func() { close(h.stopCh) })
}
