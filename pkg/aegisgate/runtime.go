package aegisgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/AegisGate/internal/adapters/directory"
	"github.com/ghalamif/AegisGate/internal/adapters/mqtt"
	"github.com/ghalamif/AegisGate/internal/adapters/natsbroker"
	"github.com/ghalamif/AegisGate/internal/adapters/observability"
	"github.com/ghalamif/AegisGate/internal/adapters/opcua"
	"github.com/ghalamif/AegisGate/internal/adapters/queue"
	"github.com/ghalamif/AegisGate/internal/app/config"
	"github.com/ghalamif/AegisGate/internal/app/gateway"
	"github.com/ghalamif/AegisGate/internal/app/pipeline"
	"github.com/ghalamif/AegisGate/internal/ports"
)

const shutdownTimeout = 5 * time.Second

// GatewayRuntimeOption customizes the dependencies used by GatewayRuntime.
type GatewayRuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	source        TagSource
	directory     NodeDirectory
	dialer        Dialer
	sink          Sink
	queue         MessageQueue
	observability Observability
	clock         func() time.Time
}

// WithTagSource injects a tag source (simulators, ExternalSource, custom protocols)
// in place of the configured OPC UA source.
func WithTagSource(src TagSource) GatewayRuntimeOption {
	return func(o *runtimeOverrides) {
		o.source = src
	}
}

// WithDirectory overrides the configured node directory.
func WithDirectory(dir NodeDirectory) GatewayRuntimeOption {
	return func(o *runtimeOverrides) {
		o.directory = dir
	}
}

// WithDialer overrides the broker transport picked from the broker URL.
func WithDialer(d Dialer) GatewayRuntimeOption {
	return func(o *runtimeOverrides) {
		o.dialer = d
	}
}

// WithSink receives a copy of every published document. Without a sink no
// forward queue is created.
func WithSink(s Sink) GatewayRuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithMessageQueue swaps the in-memory forward queue.
func WithMessageQueue(q MessageQueue) GatewayRuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) GatewayRuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithClock replaces time.Now for TagValues timestamps.
func WithClock(now func() time.Time) GatewayRuntimeOption {
	return func(o *runtimeOverrides) {
		o.clock = now
	}
}

// GatewayRuntime wires a tag source into the gateway core, publishes to the
// broker and optionally forwards every document to a sink.
type GatewayRuntime struct {
	cfg        *Config
	policy     ports.Policy
	obs        ports.Observability
	metrics    http.Handler
	source     ports.TagSource
	sink       ports.Sink
	queue      ports.MessageQueue
	forwarder  *pipeline.Forwarder
	gw         *gateway.Gateway
	db         *sql.DB
	metricsSrv *http.Server

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewGatewayRuntime bootstraps the default adapters (OPC UA source when
// configured, static or PostgreSQL directory, MQTT or NATS dialer, Prometheus
// observability). Options override any of them.
func NewGatewayRuntime(cfg *Config, opts ...GatewayRuntimeOption) (*GatewayRuntime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	rt := &GatewayRuntime{cfg: cfg, policy: cfg.Policy}
	if rt.policy.OnQueueFull == "" {
		rt.policy.OnQueueFull = "block"
	}

	rt.obs = overrides.observability
	if rt.obs == nil {
		logger, err := observability.NewLogger(cfg.Log)
		if err != nil {
			return nil, err
		}
		prom, err := observability.NewPromObs(logger, nil)
		if err != nil {
			return nil, err
		}
		rt.obs = prom
		rt.metrics = prom.Handler()
	} else if prom, ok := rt.obs.(*observability.PromObs); ok {
		rt.metrics = prom.Handler()
	} else {
		rt.metrics = promhttp.Handler()
	}

	dialer := overrides.dialer
	if dialer == nil {
		var err error
		dialer, err = newDialer(cfg.Broker)
		if err != nil {
			return nil, err
		}
	}

	dir := overrides.directory
	if dir == nil {
		var err error
		dir, err = rt.newDirectory(cfg.Directory)
		if err != nil {
			return nil, err
		}
	}

	rt.source = overrides.source
	if rt.source == nil && cfg.OPCUA != nil {
		src, err := opcua.NewSource(*cfg.OPCUA, rt.obs)
		if err != nil {
			rt.closeDB()
			return nil, err
		}
		rt.source = src
	}

	var gwOpts []gateway.Option
	if overrides.clock != nil {
		gwOpts = append(gwOpts, gateway.WithClock(overrides.clock))
	}
	if overrides.sink != nil {
		rt.sink = overrides.sink
		rt.queue = overrides.queue
		if rt.queue == nil {
			rt.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
		}
		rt.forwarder = pipeline.NewForwarder(rt.queue, rt.policy, rt.obs)
		gwOpts = append(gwOpts, gateway.WithForwarder(rt.forwarder))
	}

	gw, err := gateway.New(gateway.Config{
		SerialNumber:    cfg.Gateway.SerialNumber,
		PublishInterval: cfg.Gateway.PublishInterval,
	}, dir, dialer, rt.obs, gwOpts...)
	if err != nil {
		rt.closeDB()
		return nil, err
	}
	rt.gw = gw
	return rt, nil
}

func newDialer(cfg BrokerConfig) (ports.Dialer, error) {
	if cfg.Transport() == config.TransportNATS {
		return natsbroker.NewDialer(natsbroker.Config{
			URL:            cfg.URL,
			ClientName:     cfg.ClientID,
			Account:        cfg.Account,
			Password:       cfg.Password,
			ConnectTimeout: cfg.ConnectTimeout,
			ReconnectWait:  cfg.ConnectRetryInterval,
		})
	}
	return mqtt.NewDialer(mqtt.Config{
		URL:                  cfg.URL,
		ClientID:             cfg.ClientID,
		Account:              cfg.Account,
		Password:             cfg.Password,
		QoS:                  cfg.QoS,
		ConnectTimeout:       cfg.ConnectTimeout,
		KeepAlive:            cfg.KeepAlive,
		ConnectRetryInterval: cfg.ConnectRetryInterval,
	})
}

func (r *GatewayRuntime) newDirectory(cfg DirectoryConfig) (ports.NodeDirectory, error) {
	if cfg.Source != config.DirectoryPostgres {
		return directory.NewStatic(cfg.Devices, cfg.Collections)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := directory.OpenPostgres(ctx, cfg.Postgres.ConnString)
	if err != nil {
		return nil, err
	}
	r.db = db
	return directory.NewPostgres(db, cfg.Postgres.DeviceTable, cfg.Postgres.CollectionTable), nil
}

// Gateway exposes the core for embedding code that feeds events directly.
func (r *GatewayRuntime) Gateway() *gateway.Gateway {
	return r.gw
}

func (r *GatewayRuntime) Stats() Stats {
	return r.gw.Stats()
}

// Run starts the gateway, the event and forward pipelines and the metrics
// server, and blocks until ctx is cancelled or one of them fails. It shuts
// everything down before returning.
func (r *GatewayRuntime) Run(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("gateway runtime is nil")
	}
	if err := r.gw.Start(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// The forward pipeline outlives gctx so documents published while the
	// gateway closes still reach the sink.
	fwdCtx, fwdCancel := context.WithCancel(context.Background())
	defer fwdCancel()

	if r.source != nil {
		g.Go(func() error {
			return pipeline.RunEventPipeline(gctx, r.source, r.gw, r.policy, r.obs)
		})
	}
	if r.sink != nil {
		g.Go(func() error {
			return pipeline.RunForwardPipeline(fwdCtx, r.queue, r.sink, r.policy, r.obs)
		})
	}
	if r.cfg.Metrics.Addr != "" {
		r.metricsSrv = r.newMetricsServer(r.cfg.Metrics.Addr)
		g.Go(func() error {
			if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		r.recordResourceGauges(gctx, time.Second)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := r.Shutdown(shutdownCtx)
		fwdCancel()
		return err
	})

	return g.Wait()
}

// Shutdown stops the metrics server, closes the gateway (which closes the
// broker connection), releases the forward queue and the directory DB.
func (r *GatewayRuntime) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		var errs []error

		if r.metricsSrv != nil {
			if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}

		if err := r.gw.Close(ctx); err != nil {
			errs = append(errs, err)
		}

		if r.forwarder != nil {
			r.forwarder.Close()
		}

		if r.db != nil {
			if err := r.db.Close(); err != nil {
				errs = append(errs, err)
			}
		}

		r.shutdownErr = errors.Join(errs...)
	})
	return r.shutdownErr
}

func (r *GatewayRuntime) closeDB() {
	if r.db != nil {
		_ = r.db.Close()
	}
}

func (r *GatewayRuntime) newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.metrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (r *GatewayRuntime) recordResourceGauges(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.recordGauges()
		}
	}
}

func (r *GatewayRuntime) recordGauges() {
	stats := r.gw.Stats()
	r.obs.SetGauge("aegis_devices", float64(stats.Devices))
	r.obs.SetGauge("aegis_collections", float64(stats.Collections))
	r.obs.SetGauge("aegis_tags", float64(stats.Tags))
	r.obs.SetGauge("aegis_values", float64(stats.Values))

	connected := 0.0
	if stats.Broker == ports.StateConnected {
		connected = 1
	}
	r.obs.SetGauge("aegis_broker_connected", connected)

	if r.queue != nil {
		r.obs.SetGauge("aegis_forward_queue_length", float64(r.queue.Len()))
	}
}
