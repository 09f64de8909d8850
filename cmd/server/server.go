package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/truenas-collector/pkg/config"
	"github.com/truenas-collector/pkg/link"
	"github.com/truenas-collector/pkg/metrics"
)

// goroutineThreshold 超过即判定 liveness 失败
const goroutineThreshold = 1000

// LinkProbe 只读取连接状态，用于 readiness
type LinkProbe interface {
	CurrentLink() link.State
}

// Server HTTP服务实例，封装核心依赖和配置
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	server   *http.Server
	registry metrics.Registers
	probe    LinkProbe
	health   healthcheck.Handler
	mux      *customMux

	listener net.Listener
	served   chan struct{}
}

// statusWriter 包装ResponseWriter，捕获状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader 捕获状态码
func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// customMux 自定义Mux，兼容原生用法并记录路由
type customMux struct {
	http.ServeMux
	routes []string
	mu     sync.Mutex
}

// Handle 重写Handle，注册路由时记录路径
func (m *customMux) Handle(pattern string, handler http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, pattern)
	m.ServeMux.Handle(pattern, handler)
}

// HandleFunc 重写HandleFunc
func (m *customMux) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	m.Handle(pattern, http.HandlerFunc(handler))
}

// NewHTTPServer 创建HTTP服务实例
func NewHTTPServer(cfg *config.Config, logger *zap.Logger, registry metrics.Registers, probe LinkProbe) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		probe:    probe,
		health:   healthcheck.NewMetricsHandler(registry, metrics.Namespace),
		mux:      &customMux{},
		served:   make(chan struct{}),
	}

	srv.registerChecks()
	srv.registerEndpoints()

	srv.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.logMiddleware(srv.mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     zap.NewStdLog(logger),
	}
	return srv
}

// Handler returns the routed handler, without the listener.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// logMiddleware 统一日志记录
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.logger.Debug(
			"HTTP request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) registerChecks() {
	s.health.AddReadinessCheck("truenas-link", func() error {
		if state := s.probe.CurrentLink(); state != link.Ready {
			return fmt.Errorf("link is %s", state)
		}
		return nil
	})
	s.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))
}

var landing = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="zh-CN">
<head>
	<meta charset="UTF-8">
	<title>TrueNAS Collector</title>
	<style>
		body { font-family: Arial, sans-serif; margin: 40px; }
		h1 { color: #333; }
		a { display: block; margin: 8px 0; font-size: 18px; }
		code { background-color: #f0f0f0; padding: 2px 4px; }
	</style>
</head>
<body>
	<h1>TrueNAS Collector</h1>
	<p>Target: <code>{{.Target}}</code></p>
	<p>Link: <code>{{.Link}}</code></p>
	<h2>Available Endpoints:</h2>
	<a href="/metrics">/metrics - Prometheus 指标暴露</a>
	<a href="/health">/health - 连接就绪检查</a>
	<a href="/ready">/ready - readiness</a>
	<a href="/live">/live - liveness</a>
</body>
</html>
`))

// registerEndpoints 注册核心路由
func (s *Server) registerEndpoints() {
	target := link.DialConfig{Host: s.cfg.TrueNAS.Host, Path: s.cfg.TrueNAS.Path, UseTLS: s.cfg.TrueNAS.UseTLS}.URL()

	// 根路径 / 显示 HTML 页面，包含可点击的链接
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = landing.Execute(w, struct{ Target, Link string }{target, s.probe.CurrentLink().String()})
	})

	// /metrics 端点，scrape 只读快照，不会触发任何 RPC
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger),
	}))

	s.mux.HandleFunc("/health", s.health.ReadyEndpoint)
	s.mux.HandleFunc("/ready", s.health.ReadyEndpoint)
	s.mux.HandleFunc("/live", s.health.LiveEndpoint)
}

// Start 绑定端口后异步服务；端口占用等错误同步返回
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	s.listener = ln

	s.logger.Info(
		"starting HTTP server",
		zap.String("listen_addr", ln.Addr().String()),
		zap.Strings("handle_funcs", s.mux.routes),
	)
	go func() {
		defer close(s.served)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once Start succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Server.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown 优雅关闭HTTP服务
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Warn("HTTP shutdown timeout exceeded")
			return nil
		}
		s.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	if s.listener != nil {
		<-s.served
	}
	s.logger.Info("HTTP server shutdown successfully")
	return nil
}
