package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cfsck/internal/configdb"
	"cfsck/internal/consistency"
	"cfsck/internal/metrics"
	"cfsck/internal/models"
)

const (
	allowRemoteEnvKey      = "CFSCK_ALLOW_REMOTE"
	readHeaderTimeout      = 5 * time.Second
	readTimeout            = 30 * time.Second
	writeTimeout           = 30 * time.Minute
	idleTimeout            = 60 * time.Second
	shutdownTimeout        = 10 * time.Second
	repairConcurrencyLimit = 1
)

// Registry is the part of the context directory the HTTP API exposes.
type Registry interface {
	consistency.Directory
	consistency.UsageRecorder
	RegisterFilestore(ctx context.Context, fs *models.Filestore) error
	ListFilestores(ctx context.Context) ([]models.Filestore, error)
	RegisterDatabase(ctx context.Context, db *models.Database) error
	ListDatabases(ctx context.Context) ([]models.Database, error)
	RegisterContext(ctx context.Context, c *models.Context) error
	ListContexts(ctx context.Context, filter configdb.ContextFilter) ([]models.Context, error)
}

// Options wires a Server.
type Options struct {
	Registry    Registry
	// Deps.Directory and Deps.Usage default to Registry.
	Deps        consistency.Deps
	FailureMode consistency.FailureMode
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Server wraps HTTP handlers for the cfsck API.
type Server struct {
	addr          string
	registry      Registry
	deps          consistency.Deps
	failureMode   consistency.FailureMode
	service       *consistency.Service
	metrics       *metrics.Metrics
	logger        *slog.Logger
	repairLimiter chan struct{}
}

// New creates a new server instance.
func New(addr string, opts Options) (*Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("server: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	deps := opts.Deps
	if deps.Directory == nil {
		deps.Directory = opts.Registry
	}
	if deps.Usage == nil {
		deps.Usage = opts.Registry
	}

	s := &Server{
		addr:          addr,
		registry:      opts.Registry,
		deps:          deps,
		failureMode:   opts.FailureMode,
		metrics:       m,
		logger:        logger,
		repairLimiter: make(chan struct{}, repairConcurrencyLimit),
	}
	service, err := s.serviceFor("")
	if err != nil {
		return nil, err
	}
	s.service = service
	return s, nil
}

// serviceFor returns a consistency service using mode, or the server's
// default failure mode when mode is empty.
func (s *Server) serviceFor(mode consistency.FailureMode) (*consistency.Service, error) {
	if mode == "" {
		if s.service != nil {
			return s.service, nil
		}
		mode = s.failureMode
	}
	return consistency.NewService(s.deps, consistency.Options{
		FailureMode: mode,
		Logger:      s.logger,
		Observer:    s.metrics,
	})
}

// Handler returns the routed handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.routes())
}

// ListenAndServe starts the HTTP server and shuts it down gracefully once
// ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
