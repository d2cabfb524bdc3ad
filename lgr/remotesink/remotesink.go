// Package remotesink streams log messages to a socket.io server.
package remotesink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
	"go.uber.org/zap"

	"github.com/abyssdigger/toolbox/internal/diag"
)

const (
	DEFAULT_EVENT           = "log"
	DEFAULT_CONNECT_TIMEOUT = 15 * time.Second
)

var (
	ErrNotConnected = errors.New("remotesink: not connected")
	ErrClosed       = errors.New("remotesink: sink is closed")
)

// Emitter sends one event with its arguments.
type Emitter func(event string, args ...any)

// Payload is the body of every emitted event.
type Payload struct {
	Time    string `json:"ts"`
	Module  string `json:"module"`
	Message string `json:"message"`
}

// Sink emits every accepted message as a socket.io event. While the
// connection is down messages are rejected with ErrNotConnected.
type Sink struct {
	emit      Emitter
	disc      func()
	event     string
	now       func() time.Time
	connected atomic.Bool
	closeMtx  sync.Mutex
	closed    bool
}

// Options of Dial.
type Options struct {
	Namespace          string
	Event              string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
	Diag               *zap.Logger
}

// New wraps an existing emitter, considered connected. disconnect may be nil.
func New(emit Emitter, event string, disconnect func()) *Sink {
	if event == "" {
		event = DEFAULT_EVENT
	}
	s := &Sink{emit: emit, disc: disconnect, event: event, now: time.Now}
	s.connected.Store(true)
	return s
}

// Dial connects to rawURL (e.g. "http://host:3000/socket.io/") over
// websocket and waits for the connection or ctx, whichever comes first.
func Dial(ctx context.Context, rawURL string, o Options) (*Sink, error) {
	logger := diag.Or(o.Diag).With(zap.String("url", rawURL))
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DEFAULT_CONNECT_TIMEOUT
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		logger.Warn("skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	s := New(func(ev string, args ...any) { io.Emit(ev, args...) }, o.Event, func() { io.Disconnect() })
	s.connected.Store(false)

	connectChan := make(chan error, 1)
	io.On(types.EventName("connect"), func(...any) {
		s.connected.Store(true)
		logger.Debug("remote log stream connected", zap.Any("sid", io.Id()))
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.On(types.EventName("disconnect"), func(reason ...any) {
		s.connected.Store(false)
		logger.Warn("remote log stream disconnected", zap.Any("reason", reason))
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return s, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(o.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", o.ConnectTimeout)
	}
}

func (s *Sink) Accept(module, message string) error {
	s.closeMtx.Lock()
	closed := s.closed
	s.closeMtx.Unlock()
	if closed {
		return ErrClosed
	}
	if !s.connected.Load() {
		return ErrNotConnected
	}
	s.emit(s.event, Payload{
		Time:    s.now().UTC().Format(time.RFC3339Nano),
		Module:  module,
		Message: message,
	})
	return nil
}

func (s *Sink) Connected() bool {
	return s.connected.Load()
}

// Cleanup disconnects once.
func (s *Sink) Cleanup() error {
	s.closeMtx.Lock()
	defer s.closeMtx.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.connected.Store(false)
	if s.disc != nil {
		s.disc()
	}
	return nil
}
