// Package shutdown turns interrupt signals into the cancellation of a
// running scan, then runs cleanup callbacks such as saving session state.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/logger"
)

// Handler manages graceful shutdown of a scan. The first signal cancels
// Context; a second one exits the process immediately.
type Handler struct {
	mu sync.Mutex

	callbacks     []Callback
	callbackNames []string

	isShuttingDown atomic.Bool
	interrupted    atomic.Bool
	done           chan struct{}
	timeout        time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	sigChan chan os.Signal
	log     *logger.Logger
	exit    func(code int)
}

// Callback is run during shutdown.
type Callback func(ctx context.Context) error

// Config holds shutdown configuration.
type Config struct {
	// Timeout bounds all callbacks together.
	Timeout time.Duration
	Signals []os.Signal
	Logger  *logger.Logger
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Second,
		Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}
}

// New creates a shutdown handler whose Context derives from parent and
// starts catching cfg.Signals. Shutdown releases them.
func New(parent context.Context, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if len(cfg.Signals) == 0 {
		cfg.Signals = DefaultConfig().Signals
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Handler{
		done:    make(chan struct{}),
		timeout: cfg.Timeout,
		ctx:     ctx,
		cancel:  cancel,
		sigChan: make(chan os.Signal, 2),
		log:     cfg.Logger.WithComponent("shutdown"),
		exit:    os.Exit,
	}
	signal.Notify(h.sigChan, cfg.Signals...)
	go h.listen()
	return h
}

func (h *Handler) listen() {
	select {
	case sig := <-h.sigChan:
		h.log.Warnf("Received %s, stopping scan (again to force exit)", sig)
		h.interrupted.Store(true)
		h.cancel()
	case <-h.done:
		return
	}

	select {
	case <-h.sigChan:
		h.log.Warn("Forced exit")
		h.exit(130)
	case <-h.done:
	}
}

// Register adds a named callback. Callbacks run in reverse order of
// registration.
func (h *Handler) Register(name string, callback Callback) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.callbacks = append(h.callbacks, callback)
	h.callbackNames = append(h.callbackNames, name)
}

// RegisterFunc registers a cleanup function that cannot fail.
func (h *Handler) RegisterFunc(name string, fn func()) {
	h.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// Context is cancelled on the first signal or on Shutdown.
func (h *Handler) Context() context.Context {
	return h.ctx
}

// Interrupted reports whether a signal or Trigger cancelled Context.
func (h *Handler) Interrupted() bool {
	return h.interrupted.Load()
}

// IsShuttingDown reports whether Shutdown has started.
func (h *Handler) IsShuttingDown() bool {
	return h.isShuttingDown.Load()
}

// Done is closed once Shutdown has finished.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// Trigger behaves like a received SIGTERM.
func (h *Handler) Trigger() {
	select {
	case h.sigChan <- syscall.SIGTERM:
	default:
	}
}

// Shutdown cancels Context, runs the callbacks and stops catching signals.
// It returns the callback errors. Calls after the first return nil.
func (h *Handler) Shutdown() []error {
	if !h.isShuttingDown.CompareAndSwap(false, true) {
		return nil
	}
	start := time.Now()
	h.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	callbacks := append([]Callback(nil), h.callbacks...)
	names := append([]string(nil), h.callbackNames...)
	h.mu.Unlock()

	var errs []error
	for i := len(callbacks) - 1; i >= 0; i-- {
		if err := h.run(ctx, names[i], callbacks[i]); err != nil {
			h.log.WithError(err).Warnf("Shutdown step %s failed", names[i])
			errs = append(errs, err)
		}
	}

	signal.Stop(h.sigChan)
	close(h.done)
	h.log.WithDuration(time.Since(start)).Debug("Shutdown complete")
	return errs
}

func (h *Handler) run(ctx context.Context, name string, callback Callback) error {
	done := make(chan error, 1)
	go func() {
		done <- callback(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return &TimeoutError{CallbackName: name}
	}
}

// TimeoutError is returned when a callback outlives the shutdown timeout.
type TimeoutError struct {
	CallbackName string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("shutdown callback %q timed out", e.CallbackName)
}
