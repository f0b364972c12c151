// Package server orchestrates all components: COMMS client, settings backend, registry, dispatcher, HTTP health.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/device-facades/internal/config"
	"github.com/morezero/device-facades/pkg/bootstrap"
	"github.com/morezero/device-facades/pkg/commsutil"
	"github.com/morezero/device-facades/pkg/db"
	"github.com/morezero/device-facades/pkg/dispatcher"
	"github.com/morezero/device-facades/pkg/events"
	"github.com/morezero/device-facades/pkg/facade/settings"
	"github.com/morezero/device-facades/pkg/platform"
	"github.com/morezero/device-facades/pkg/platform/memory"
	"github.com/morezero/device-facades/pkg/registry"
	"github.com/morezero/device-facades/pkg/rpc"
	"github.com/morezero/device-facades/pkg/session"
)

const logPrefix = "server:server"

// registryForServer is the part of the registry the server exposes over COMMS and HTTP.
type registryForServer interface {
	Health() *registry.HealthOutput
	Describe(input *registry.DescribeInput) (*registry.DescribeOutput, error)
}

// Server is the device-facades orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	reg        registryForServer
	disp       *dispatcher.Dispatcher
	sessions   *session.Manager
	subs       []*comms.Subscription
}

// ReceiverTypes lists every facade served by this process.
func ReceiverTypes() []*rpc.ReceiverType {
	return []*rpc.ReceiverType{
		settings.ReceiverType,
	}
}

// BuildRegistry registers every facade and freezes the table. A duplicate
// procedure name is fatal to startup.
func BuildRegistry() (*registry.Registry, error) {
	reg, err := registry.Build(ReceiverTypes()...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to build registry: %w", logPrefix, err)
	}
	return reg, nil
}

// newServer wires the registry, session manager and dispatcher.
func newServer(cfg *config.Config, reg *registry.Registry, hosts platform.HostFactory) *Server {
	sessions := session.NewManager(session.NewManagerParams{
		Types:       reg,
		HostFactory: hosts,
	})
	return &Server{
		cfg:      cfg,
		reg:      reg,
		sessions: sessions,
		disp: dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{
			Procedures: reg,
			Sessions:   sessions,
		}),
	}
}

func configureLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	configureLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting device-facades", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Build the procedure table before touching any external system
	reg, err := BuildRegistry()
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Registered %d procedures across %d receivers",
		logPrefix, reg.Health().Procedures, len(reg.ReceiverTypes())))

	// Step 2: Load device profile and emulated platform
	profile, err := bootstrap.LoadDeviceProfile(cfg.DeviceProfile)
	if err != nil {
		return fmt.Errorf("%s - failed to load device profile: %w", logPrefix, err)
	}
	device, err := memory.NewDevice(profile)
	if err != nil {
		return fmt.Errorf("%s - failed to create device: %w", logPrefix, err)
	}

	// Step 3: Settings backend
	var store platform.SettingsStore
	var pool *pgxpool.Pool
	if cfg.UsesDatabase() {
		pool, err = openSettingsDatabase(ctx, cfg, profile)
		if err != nil {
			return err
		}
		store = db.NewSettingsRepository(pool)
		slog.Info(fmt.Sprintf("%s - Settings backend: postgres", logPrefix))
	} else {
		slog.Info(fmt.Sprintf("%s - Settings backend: memory", logPrefix))
	}

	// Step 4: Connect to COMMS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName, nil)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return fmt.Errorf("%s - failed to connect to COMMS: %w", logPrefix, err)
	}

	publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{SubjectPrefix: cfg.BroadcastPrefix})

	s := newServer(cfg, reg, device.HostFactory(store, publisher))
	s.nc = nc
	s.pool = pool

	// Step 5: Subscribe
	if err := s.subscribe(ctx, nc); err != nil {
		s.unsubscribe()
		nc.Close()
		if pool != nil {
			pool.Close()
		}
		return err
	}

	// Step 6: Start HTTP health server
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - device-facades is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	s.unsubscribe()
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	if err := s.sessions.CloseAll(); err != nil {
		slog.Error(fmt.Sprintf("%s - receiver shutdown reported errors: %v", logPrefix, err))
	}
	nc.Drain()
	if pool != nil {
		pool.Close()
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// openSettingsDatabase prepares the Postgres settings store: database, migrations and seed rows.
func openSettingsDatabase(ctx context.Context, cfg *config.Config, profile *bootstrap.DeviceProfile) (*pgxpool.Pool, error) {
	if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolOpts())
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}

	if cfg.RunMigrations {
		migrations, err := db.LoadMigrations(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if _, err := db.RunMigrations(ctx, pool, migrations); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	seeded, err := db.SeedSettings(ctx, pool, profile)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to seed settings: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Seeded %d settings", logPrefix, seeded))
	return pool, nil
}

// subscribe attaches the RPC, session and describe handlers to nc.
func (s *Server) subscribe(ctx context.Context, nc *comms.Conn) error {
	rpcSubject := s.cfg.RPCSubject
	if rpcSubject == "" {
		rpcSubject = commsutil.SubjectRPC
	}

	handlers := []struct {
		subject string
		handle  func(data []byte) []byte
	}{
		{rpcSubject, func(data []byte) []byte { return s.handleRPC(ctx, data) }},
		{commsutil.SubjectSessionOpen, s.handleSessionOpen},
		{commsutil.SubjectSessionClose, s.handleSessionClose},
		{commsutil.SubjectDescribe, s.handleDescribe},
	}

	for _, h := range handlers {
		handle := h.handle
		sub, err := nc.Subscribe(h.subject, func(msg *comms.Msg) {
			if err := msg.Respond(handle(msg.Data)); err != nil {
				slog.Error(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, msg.Subject, err))
			}
		})
		if err != nil {
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, h.subject, err)
		}
		s.subs = append(s.subs, sub)
		slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, h.subject))
	}
	return nil
}

func (s *Server) unsubscribe() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - unsubscribe %s: %v", logPrefix, sub.Subject, err))
		}
	}
	s.subs = nil
}

// requestContext bounds a request by the server timeout, or by the caller's
// timeout when that is shorter.
func requestContext(parent context.Context, req *dispatcher.Request, limit time.Duration) (context.Context, context.CancelFunc) {
	if req.Ctx != nil && req.Ctx.TimeoutMs > 0 {
		if d := time.Duration(req.Ctx.TimeoutMs) * time.Millisecond; d < limit {
			limit = d
		}
	}
	return context.WithTimeout(parent, limit)
}

// handleRPC decodes a request envelope, dispatches it and encodes the response.
func (s *Server) handleRPC(ctx context.Context, data []byte) []byte {
	var req dispatcher.Request
	if err := commsutil.DecodePayload(data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		return encode(&dispatcher.Response{
			Ok:    false,
			Error: &dispatcher.ErrorDetail{Code: rpc.CodeInvalidRequest, Message: "Failed to decode request"},
		})
	}

	reqCtx, cancel := requestContext(ctx, &req, s.cfg.RequestTimeout)
	defer cancel()

	return encode(s.disp.Dispatch(reqCtx, &req))
}

func (s *Server) handleSessionOpen(_ []byte) []byte {
	id, err := s.sessions.Open()
	if err != nil {
		return encode(&dispatcher.SessionOpenResponse{Ok: false, Error: dispatcher.ErrorDetailFor(err)})
	}
	return encode(&dispatcher.SessionOpenResponse{Ok: true, Session: id})
}

func (s *Server) handleSessionClose(data []byte) []byte {
	var req dispatcher.SessionCloseRequest
	if err := commsutil.DecodePayload(data, &req); err != nil {
		return encode(&dispatcher.SessionCloseResponse{
			Error: &dispatcher.ErrorDetail{Code: rpc.CodeInvalidRequest, Message: "Failed to decode request"},
		})
	}
	closed, err := s.sessions.Close(req.Session)
	if err != nil {
		// Teardown always completes; failures are reported to the log only.
		slog.Error(fmt.Sprintf("%s - session %s shutdown errors: %v", logPrefix, req.Session, err))
	}
	return encode(&dispatcher.SessionCloseResponse{Ok: true, Closed: closed})
}

// describeResponse answers a describe request.
type describeResponse struct {
	Ok     bool                     `json:"ok"`
	Result *registry.DescribeOutput `json:"result,omitempty"`
	Error  *dispatcher.ErrorDetail  `json:"error,omitempty"`
}

func (s *Server) handleDescribe(data []byte) []byte {
	var input registry.DescribeInput
	if len(data) > 0 {
		if err := commsutil.DecodePayload(data, &input); err != nil {
			return encode(&describeResponse{
				Error: &dispatcher.ErrorDetail{Code: rpc.CodeInvalidRequest, Message: "Failed to decode request"},
			})
		}
	}
	out, err := s.reg.Describe(&input)
	if err != nil {
		return encode(&describeResponse{Error: dispatcher.ErrorDetailFor(err)})
	}
	return encode(&describeResponse{Ok: true, Result: out})
}

func encode(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		return []byte(`{"ok":false,"error":{"code":"INTERNAL_ERROR","message":"Failed to encode response","retryable":true}}`)
	}
	return data
}
