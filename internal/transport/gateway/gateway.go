package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/lenscast/lenscast/internal/server"
)

// ListenerInfo describes a single listener started by the gateway.
type ListenerInfo struct {
	Scheme  string
	Address string
	Port    int
	Binding string
}

// Info summarises the listeners exposed by the gateway.
type Info struct {
	HTTP ListenerInfo
}

// Gateway owns the TCP listener the relay REST API and websocket endpoint
// are served on. It separates listener lifecycle from the API server so the
// daemon can report the effective port before traffic arrives.
type Gateway struct {
	apiServer *server.APIServer

	mu           sync.RWMutex
	httpPrepared *server.PreparedHTTPServer
	httpListener net.Listener
	errCh        chan error
	wg           sync.WaitGroup
	info         Info
}

// New constructs a Gateway bound to the provided API server.
func New(api *server.APIServer) *Gateway {
	return &Gateway{apiServer: api}
}

// Start launches the HTTP listener. It must not be called concurrently with Shutdown.
func (g *Gateway) Start(ctx context.Context) (*Info, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.httpListener != nil {
		return nil, fmt.Errorf("gateway: already started")
	}

	prepared, err := g.apiServer.Prepare(ctx)
	if err != nil {
		return nil, fmt.Errorf("gateway: prepare http server: %w", err)
	}

	httpListener, err := net.Listen("tcp", prepared.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("gateway: listen http: %w", err)
	}

	httpPort := listenerPort(httpListener)

	g.httpPrepared = prepared
	g.httpListener = httpListener
	g.errCh = make(chan error, 1)
	g.info = Info{
		HTTP: ListenerInfo{
			Scheme:  prepared.Scheme,
			Address: httpListener.Addr().String(),
			Port:    httpPort,
			Binding: prepared.Binding,
		},
	}
	errCh := g.errCh

	g.wg.Add(1)
	go g.serveHTTP(ctx, prepared, httpListener)

	go func(ch chan error) {
		g.wg.Wait()
		if ch != nil {
			close(ch)
		}
	}(errCh)

	g.apiServer.UpdateActualPort(context.Background(), httpPort)

	infoCopy := g.info
	return &infoCopy, nil
}

func (g *Gateway) serveHTTP(ctx context.Context, prepared *server.PreparedHTTPServer, listener net.Listener) {
	defer g.wg.Done()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			g.pushError(err)
		}
	}()

	if err := prepared.Server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		g.pushError(err)
	}
}

func (g *Gateway) pushError(err error) {
	if err == nil {
		return
	}
	g.mu.RLock()
	ch := g.errCh
	g.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// Shutdown stops the listener and waits for the serve goroutine to exit.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	httpListener := g.httpListener
	prepared := g.httpPrepared
	errCh := g.errCh
	g.httpListener = nil
	g.httpPrepared = nil
	g.errCh = nil
	g.mu.Unlock()

	if httpListener == nil && prepared == nil {
		return nil
	}

	if httpListener != nil {
		_ = httpListener.Close()
	}

	if prepared != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := g.apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			cancel()
			return err
		}
		cancel()
	}

	g.wg.Wait()

	if errCh != nil {
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
		default:
		}
	}

	return nil
}

// Errors exposes the gateway error channel (closed when the gateway stops).
func (g *Gateway) Errors() <-chan error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.errCh == nil {
		ch := make(chan error)
		close(ch)
		return ch
	}
	return g.errCh
}

// Info returns the last known listener info.
func (g *Gateway) Info() Info {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.info
}

func listenerPort(l net.Listener) int {
	if tcp, ok := l.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}
