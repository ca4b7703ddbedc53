package services

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"DistroApp/app/config"
	"DistroApp/app/models"
	"DistroApp/app/websocket"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	mdnsService  = "_distroapp._tcp"
	mdnsInstance = "DistroApp Status"

	// TokenHeader carries the pairing token; websocket clients use the token query parameter instead
	TokenHeader = "X-API-Key"
	tokenParam  = "token"
)

// StatusResponse is the body of /api/v1/status
type StatusResponse struct {
	State        StoreState     `json:"state"`
	Connected    bool           `json:"connected"`
	LastSyncTime *time.Time     `json:"last_sync_time,omitempty"`
	Counts       map[string]int `json:"counts"`
	Clients      int            `json:"clients"`
}

// StatusAPIServer exposes read-only store status to devices on the LAN
type StatusAPIServer struct {
	store     *StoreService
	hub       *websocket.Hub
	cfg       config.StatusServerConfig
	logger    *zap.Logger
	token     string
	echo      *echo.Echo
	mdns      *zeroconf.Server
	stopHub   context.CancelFunc
	stopWatch func()
}

// NewStatusAPIServer builds the routes and a fresh pairing token. Nothing listens until Start.
func NewStatusAPIServer(store *StoreService, hub *websocket.Hub, gatherer prometheus.Gatherer, cfg config.StatusServerConfig, logger *zap.Logger) *StatusAPIServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StatusAPIServer{
		store:  store,
		hub:    hub,
		cfg:    cfg,
		token:  uuid.NewString(),
		logger: logger.Named("status-api"),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	e.Use(requestLogger(s.logger))

	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	e.GET("/ws", echo.WrapHandler(hub), s.requireToken)

	api := e.Group("/api/v1", s.requireToken)
	api.GET("/status", s.handleStatus)
	api.GET("/export", s.handleExport)

	s.echo = e
	return s
}

// Handler returns the HTTP handler, used directly by tests
func (s *StatusAPIServer) Handler() http.Handler {
	return s.echo
}

// Start runs the hub, forwards store events to it and starts listening
func (s *StatusAPIServer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopHub = cancel
	go s.hub.Run(ctx)

	s.stopWatch = s.store.Subscribe(func(event ChangeEvent) {
		msgType := websocket.TypeStoreChanged
		if event.Type == EventSyncCompleted {
			msgType = websocket.TypeSyncCompleted
		}
		if err := s.hub.Broadcast(msgType, event); err != nil {
			s.logger.Debug("event not broadcast", zap.Error(err))
		}
	})

	addr := fmt.Sprintf(":%d", s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.Stop(context.Background())
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.echo.Listener = listener

	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", zap.Error(err))
		}
	}()

	if s.cfg.Advertise {
		server, err := zeroconf.Register(mdnsInstance, mdnsService, "local.", s.cfg.Port, []string{"version=" + models.ExportVersion}, nil)
		if err != nil {
			s.logger.Warn("mDNS registration failed", zap.Error(err))
		} else {
			s.mdns = server
			s.logger.Info("status server announced", zap.String("service", mdnsService))
		}
	}

	s.logger.Info("status server listening", zap.String("addr", addr))
	return nil
}

// Stop withdraws the mDNS announcement, shuts the listener down and closes websocket clients
func (s *StatusAPIServer) Stop(ctx context.Context) error {
	if s.stopWatch != nil {
		s.stopWatch()
	}
	if s.mdns != nil {
		s.mdns.Shutdown()
		s.mdns = nil
	}
	err := s.echo.Shutdown(ctx)
	if s.stopHub != nil {
		s.stopHub()
	}
	return err
}

// StatusURL is the address other devices use to reach this machine
func (s *StatusAPIServer) StatusURL() string {
	host := "localhost"
	if ip := lanAddress(); ip != "" {
		host = ip
	}
	return fmt.Sprintf("http://%s:%d", host, s.cfg.Port)
}

func lanAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ip4 := ipNet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	return ""
}

// Token is the pairing token required by /api/v1 and /ws
func (s *StatusAPIServer) Token() string {
	return s.token
}

// PairingURL is the status endpoint with the pairing token attached
func (s *StatusAPIServer) PairingURL() string {
	return fmt.Sprintf("%s/api/v1/status?%s=%s", s.StatusURL(), tokenParam, s.token)
}

// PairingQRCode returns the pairing URL as a PNG data URL for scanning with a phone
func (s *StatusAPIServer) PairingQRCode() (string, error) {
	png, err := qrcode.Encode(s.PairingURL(), qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to generate QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

func (s *StatusAPIServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"state":  s.store.State(),
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *StatusAPIServer) handleStatus(c echo.Context) error {
	data := s.store.dataSet()
	resp := StatusResponse{
		State:     s.store.State(),
		Connected: s.store.IsConnected(),
		Counts: map[string]int{
			models.CollectionProducts.String():     len(data.Products),
			models.CollectionRoutes.String():       len(data.Routes),
			models.CollectionCustomers.String():    len(data.Customers),
			models.CollectionEmployees.String():    len(data.Employees),
			models.CollectionSalesRecords.String(): len(data.SalesRecords),
		},
		Clients: s.hub.ClientCount(),
	}
	if last := s.store.LastSyncTime(); !last.IsZero() {
		resp.LastSyncTime = &last
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *StatusAPIServer) handleExport(c echo.Context) error {
	if s.store.State() != StateReady {
		return echo.NewHTTPError(http.StatusServiceUnavailable, ErrStoreNotReady.Error())
	}
	return c.JSON(http.StatusOK, s.store.ExportData(c.Request().Context()))
}

// requireToken rejects requests that do not carry the pairing token
func (s *StatusAPIServer) requireToken(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := c.Request().Header.Get(TokenHeader)
		if token == "" {
			token = c.QueryParam(tokenParam)
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing or invalid pairing token")
		}
		return next(c)
	}
}

// requestLogger logs each request with its status and latency
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			fields := []zap.Field{
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
				logger.Warn("request failed", fields...)
			} else {
				logger.Debug("request completed", fields...)
			}
			return err
		}
	}
}
