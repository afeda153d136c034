// Package daemon wires the relay services together and manages their
// lifecycle: session store, relay registry, metrics, expiry reaper and the
// HTTP gateway all run under a single service host.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lenscast/lenscast/internal/config"
	configstore "github.com/lenscast/lenscast/internal/config/store"
	"github.com/lenscast/lenscast/internal/constants"
	"github.com/lenscast/lenscast/internal/eventbus"
	"github.com/lenscast/lenscast/internal/observability"
	"github.com/lenscast/lenscast/internal/procutil"
	"github.com/lenscast/lenscast/internal/relay"
	daemonruntime "github.com/lenscast/lenscast/internal/runtime"
	"github.com/lenscast/lenscast/internal/server"
	"github.com/lenscast/lenscast/internal/session"
)

// Options groups dependencies required to construct a Daemon.
type Options struct {
	Store *configstore.Store
}

// Daemon represents the main daemon process.
type Daemon struct {
	store         *configstore.Store
	sessionStore  *session.Store
	registry      *relay.Registry
	apiServer     *server.APIServer
	serviceHost   *daemonruntime.ServiceHost
	runtimeInfo   *RuntimeInfo
	lifecycle     *daemonruntime.Lifecycle
	instancePaths config.InstancePaths
	eventBus      *eventbus.Bus
	ctx           context.Context
	cancel        context.CancelFunc
	errMu         sync.Mutex
	runErr        error
}

// New creates a new daemon instance bound to the provided configuration store.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, errors.New("daemon: configuration store is required")
	}

	instanceName := opts.Store.InstanceName()
	paths := config.GetInstancePaths(instanceName)

	bus := eventbus.New()

	sessionStore := session.NewStore(bus)
	registry := relay.NewRegistry(bus)
	runtimeInfo := &RuntimeInfo{}

	eventCounter := observability.NewEventCounter()
	bus.AddObserver(eventCounter)
	metrics := observability.NewMetrics(bus, eventCounter)

	apiServer, err := server.NewAPIServer(sessionStore, registry, opts.Store, runtimeInfo, constants.DefaultHTTPPort)
	if err != nil {
		return nil, fmt.Errorf("daemon: create API server: %w", err)
	}
	apiServer.SetMetricsHandler(metrics.Handler())

	host := daemonruntime.NewServiceHost()

	// Bus consumers register first so they are running before the gateway
	// accepts traffic.
	if err := host.Register("relay_registry", func(ctx context.Context) (daemonruntime.Service, error) {
		return registry, nil
	}); err != nil {
		return nil, err
	}

	if err := host.Register("metrics", func(ctx context.Context) (daemonruntime.Service, error) {
		return metrics, nil
	}); err != nil {
		return nil, err
	}

	if err := host.Register("session_reaper", func(ctx context.Context) (daemonruntime.Service, error) {
		return session.NewReaper(sessionStore, registry), nil
	}); err != nil {
		return nil, err
	}

	// Attached websockets can take a while to drain, so the gateway gets a
	// longer shutdown budget than the default.
	if err := host.Register("http_gateway", func(ctx context.Context) (daemonruntime.Service, error) {
		return newGatewayService(apiServer, runtimeInfo), nil
	}, daemonruntime.WithShutdownTimeout(constants.Duration10Seconds)); err != nil {
		return nil, err
	}

	return &Daemon{
		store:         opts.Store,
		sessionStore:  sessionStore,
		registry:      registry,
		apiServer:     apiServer,
		serviceHost:   host,
		runtimeInfo:   runtimeInfo,
		lifecycle:     daemonruntime.NewLifecycle(),
		instancePaths: paths,
		eventBus:      bus,
	}, nil
}

// Start starts the daemon services and blocks until Shutdown is called or a
// service fails fatally.
func (d *Daemon) Start() error {
	if err := daemonruntime.WritePIDFile(d.instancePaths.PIDFile, os.Getpid()); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}
	defer daemonruntime.RemovePIDFile(d.instancePaths.PIDFile)

	d.runtimeInfo.SetStartTime(time.Now())
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if err := d.serviceHost.Start(d.ctx); err != nil {
		if d.cancel != nil {
			d.cancel()
		}
		return fmt.Errorf("daemon: start services: %w", err)
	}
	d.watchHostErrors()

	<-d.lifecycle.Done()

	if d.cancel != nil {
		d.cancel()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), constants.ServiceShutdownTimeout)
	if err := d.serviceHost.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "daemon: service shutdown error: %v\n", err)
		d.setRunError(err)
	}
	cancel()

	if err := d.store.Close(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "daemon: store close error: %v\n", err)
	}

	return d.getRunError()
}

// Shutdown signals the daemon to stop.
func (d *Daemon) Shutdown() error {
	d.lifecycle.Shutdown()
	if d.cancel != nil {
		d.cancel()
	}
	if d.eventBus != nil {
		d.eventBus.Shutdown()
	}
	return nil
}

func (d *Daemon) watchHostErrors() {
	go func() {
		for err := range d.serviceHost.Errors() {
			if err == nil {
				continue
			}
			d.setRunError(err)
			fmt.Fprintf(os.Stderr, "%v\n", err)
			d.lifecycle.Shutdown()
			if d.cancel != nil {
				d.cancel()
			}
		}
	}()
}

func (d *Daemon) setRunError(err error) {
	if err == nil {
		return
	}

	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.runErr == nil {
		d.runErr = err
	}
}

func (d *Daemon) getRunError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// RuntimeInfo exposes runtime metadata such as the bound HTTP port.
func (d *Daemon) RuntimeInfo() *RuntimeInfo {
	return d.runtimeInfo
}

// SessionStore returns the session store.
func (d *Daemon) SessionStore() *session.Store {
	return d.sessionStore
}

// Registry returns the relay registry.
func (d *Daemon) Registry() *relay.Registry {
	return d.registry
}

// APIServer returns the API server.
func (d *Daemon) APIServer() *server.APIServer {
	return d.apiServer
}

// ServiceHost returns the runtime service host.
func (d *Daemon) ServiceHost() *daemonruntime.ServiceHost {
	return d.serviceHost
}

// IsRunning checks if a daemon is already running for the default instance.
func IsRunning() bool {
	paths := config.GetInstancePaths("")

	data, err := os.ReadFile(paths.PIDFile)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		os.Remove(paths.PIDFile)
		return false
	}

	if !procutil.IsProcessAlive(pid) {
		os.Remove(paths.PIDFile)
		return false
	}

	return true
}
