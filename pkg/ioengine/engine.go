package ioengine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hflink/stanag5066/internal/pdu"
	"github.com/hflink/stanag5066/pkg/config"
	"github.com/hflink/stanag5066/pkg/transport"
)

// Listener hands the engine ready transports to accept (SPEC_FULL §6).
// Listening and TLS setup are out of scope (spec §1); this interface
// is deliberately the engine's only view of "a new connection arrived".
type Listener interface {
	Accept() (transport.Transport, Protocol, error)
}

// Engine is the minimal control surface SPEC_FULL §6 gives the
// otherwise out-of-scope "start/stop the engine" responsibility: it
// accepts ready transports from a Listener and hands each to a
// single-worker Dispatcher running the per-connection read/decode/
// act/write loop of spec §4.8.
type Engine struct {
	cfg    *config.Config
	logger *log.Logger
	global *pdu.GlobalPool

	newReadiness func() (transport.Readiness, error)
	newHandler   func(Protocol) Handler
	onTick       func(now time.Time)
	onAccept     func(ep *Endpoint)
	onClose      func(ep *Endpoint)

	mu      sync.Mutex
	workers []*Worker
	nextID  int
}

// SetOnAccept installs a callback run once per newly created endpoint,
// before it starts being polled for readiness. Typically wired to a
// Bridge's AddSIS/AddDTS so routing state exists before the first
// frame can arrive.
func (e *Engine) SetOnAccept(f func(ep *Endpoint)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onAccept = f
}

// SetOnClose installs a callback run once per endpoint just before it
// is closed (peer close, fatal parse error, or administrative
// disconnect). Typically wired to a Bridge's RemoveSIS/RemoveDTS.
func (e *Engine) SetOnClose(f func(ep *Endpoint)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onClose = f
}

// SetTicker installs the per-iteration timeout callback (spec §5's
// monotonic wheel) every worker spawned after this call will invoke.
// Typically wired to a Bridge's ExpireTimeouts by the caller assembling
// the engine.
func (e *Engine) SetTicker(f func(now time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = f
}

// NewEngine returns an engine configured per cfg, logging through
// logger (spec §7's structured records). newReadiness constructs one
// readiness source per accepted connection's worker (typically a
// single shared instance is reused by returning it every time);
// newHandler selects the SIS or DTS Handler for a newly accepted
// connection's protocol.
func NewEngine(cfg *config.Config, logger *log.Logger, newReadiness func() (transport.Readiness, error), newHandler func(Protocol) Handler) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{
		cfg:          cfg,
		logger:       logger,
		global:       pdu.NewGlobalPool(cfg.PDUBufferBytes),
		newReadiness: newReadiness,
		newHandler:   newHandler,
	}
}

// Serve accepts connections from listener until ctx is cancelled or
// Accept returns a non-nil error, handing each to a new single-worker
// Dispatcher (spec §5: one worker owns one readiness source and its
// endpoints exclusively).
func (e *Engine) Serve(ctx context.Context, listener Listener) error {
	for {
		t, proto, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := e.accept(ctx, t, proto); err != nil {
			e.logger.WithFields(log.Fields{"protocol": proto, "cause": err}).Warn("rejecting accepted connection")
			t.Close()
		}
	}
}

func (e *Engine) accept(ctx context.Context, t transport.Transport, proto Protocol) error {
	readiness, err := e.newReadiness()
	if err != nil {
		return err
	}
	pool := pdu.NewLocalPool(e.global, e.cfg.PDUBufferBytes)
	handler := e.newHandler(proto)

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.mu.Unlock()

	ep := NewEndpoint(id, proto, t, handler, pool)
	ep.IOVMax = e.cfg.IOVStagingMax

	e.mu.Lock()
	onAccept, onClose := e.onAccept, e.onClose
	e.mu.Unlock()
	if onAccept != nil {
		onAccept(ep)
	}

	dispatcher := NewDispatcher(readiness, e.logger)
	dispatcher.OnClose = onClose
	if err := dispatcher.Register(ep); err != nil {
		return err
	}

	worker := NewWorker(dispatcher, 100*time.Millisecond)
	e.mu.Lock()
	worker.OnTick = e.onTick
	e.workers = append(e.workers, worker)
	e.mu.Unlock()

	go worker.Run(ctx)
	return nil
}

// Shutdown waits for every worker to drain and stop, or for ctx to
// expire first.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	workers := append([]*Worker(nil), e.workers...)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, w := range workers {
			w.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
