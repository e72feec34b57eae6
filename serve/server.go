package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	domainerrors "github.com/hayride-dev/hayride-go/domain/errors"
	"github.com/hayride-dev/hayride-go/host"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Request is the JSON a server component's handler receives.
type Request struct {
	Method  string      `json:"method"`
	Path    string      `json:"path"`
	Query   string      `json:"query,omitempty"`
	Host    string      `json:"host,omitempty"`
	Headers http.Header `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`
}

// Response is the JSON a server component's handler returns. A zero Status
// means 200. Error and Message carry an in-band handler failure.
type Response struct {
	Status  int         `json:"status"`
	Headers http.Header `json:"headers,omitempty"`
	Body    []byte      `json:"body,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// addressConfig is the answer of a component's config export.
type addressConfig struct {
	Address string `json:"address"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Server forwards network traffic into one component.
type Server struct {
	kind     host.ComponentKind
	entry    string
	target   host.Target
	config   serverConfig
	upgrader websocket.Upgrader
}

// New builds a Server for a component of kind whose handler export is
// entry. Calls reach the component through target.
func New(kind host.ComponentKind, entry string, target host.Target, opts ...Option) (*Server, error) {
	if kind != host.KindServer && kind != host.KindWebsocket {
		return nil, fmt.Errorf("%w: cannot serve a %s component", domainerrors.ErrUnsupported, kind)
	}
	if entry == "" {
		return nil, &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "entry", Err: errors.New("handler export is empty")}
	}
	cfg := defaultServerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		kind:   kind,
		entry:  entry,
		target: target,
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Handler returns the http.Handler for the component's protocol. Every
// HTTP method and path reaches the component's handler export.
func (s *Server) Handler() http.Handler {
	if s.kind == host.KindWebsocket {
		return http.HandlerFunc(s.serveWebsocket)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.NoRoute(func(c *gin.Context) {
		s.serveHTTP(c.Writer, c.Request)
	})
	return router
}

// Address resolves the listen address: WithAddress first, then the
// component's config export, then the default for its protocol.
func (s *Server) Address(ctx context.Context) (string, error) {
	switch {
	case s.config.address != "":
		return NormalizeAddress(s.config.address)
	case s.config.configFunc != "":
		out, err := s.target.Call(ctx, s.config.configFunc, nil)
		if err != nil {
			return "", fmt.Errorf("read server config: %w", err)
		}
		var cfg addressConfig
		if err := json.Unmarshal(out, &cfg); err != nil {
			return "", fmt.Errorf("decode server config: %w", err)
		}
		if cfg.Error != "" {
			return "", fmt.Errorf("read server config: %s: %s", cfg.Error, cfg.Message)
		}
		return NormalizeAddress(cfg.Address)
	case s.kind == host.KindWebsocket:
		return DefaultWebsocketAddress, nil
	default:
		return DefaultHTTPAddress, nil
	}
}

// NormalizeAddress turns a configured address into host:port. A missing
// scheme means http, a missing host 127.0.0.1 and a missing port the
// scheme's well-known port.
func NormalizeAddress(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &domainerrors.ConfigError{Kind: domainerrors.KindInvalid, Field: "address", Err: err}
	}
	hostname := u.Hostname()
	if hostname == "" {
		hostname = "127.0.0.1"
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "wss":
			port = "443"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(hostname, port), nil
}

// ListenAndServe binds the resolved address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr, err := s.Address(ctx)
	if err != nil {
		return err
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then drains in-flight
// requests for up to the shutdown timeout. It returns nil after a clean
// shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.config.logger.InfoContext(ctx, "serve: listening", "kind", s.kind, "address", ln.Addr().String(), "entry", s.entry)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	s.config.logger.InfoContext(shutdownCtx, "serve: stopped", "kind", s.kind, "address", ln.Addr().String())
	return err
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.maxBodySize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	payload, err := json.Marshal(Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Host:    r.Host,
		Headers: r.Header,
		Body:    body,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out, err := s.target.Call(r.Context(), s.entry, payload)
	if err != nil {
		s.config.logger.ErrorContext(r.Context(), "serve: handler call failed", "entry", s.entry, "path", r.URL.Path, "error", err)
		http.Error(w, "component handler failed", http.StatusBadGateway)
		return
	}
	var resp Response
	if len(out) > 0 {
		if err := json.Unmarshal(out, &resp); err != nil {
			s.config.logger.ErrorContext(r.Context(), "serve: malformed handler response", "entry", s.entry, "error", err)
			http.Error(w, "malformed component response", http.StatusBadGateway)
			return
		}
	}
	if resp.Error != "" {
		http.Error(w, resp.Error+": "+resp.Message, http.StatusInternalServerError)
		return
	}

	for k, vs := range resp.Headers {
		if http.CanonicalHeaderKey(k) == "Content-Length" {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		s.config.logger.DebugContext(r.Context(), "serve: websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	// Hijacked connections outlive http.Server.Shutdown.
	stop := context.AfterFunc(r.Context(), func() { _ = conn.Close() })
	defer stop()

	logger := s.config.logger.With("connection", uuid.NewString(), "remote", r.RemoteAddr)
	logger.DebugContext(r.Context(), "serve: websocket connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && r.Context().Err() == nil {
				logger.WarnContext(r.Context(), "serve: websocket read failed", "error", err)
			}
			return
		}
		out, err := s.target.Call(r.Context(), s.entry, data)
		if err != nil {
			logger.ErrorContext(r.Context(), "serve: handler call failed", "entry", s.entry, "error", err)
			msg := websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "component handler failed")
			_ = conn.WriteMessage(websocket.CloseMessage, msg)
			return
		}
		if len(out) == 0 {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			logger.DebugContext(r.Context(), "serve: websocket write failed", "error", err)
			return
		}
	}
}
