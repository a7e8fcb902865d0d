// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"matclass/monitoring"
	"matclass/predict"
)

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	log    *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port              int           `yaml:"port"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	RateLimit         int           `yaml:"rate_limit"` // 每客户端每秒请求数，0 表示不限流
	RateLimitClients  int           `yaml:"rate_limit_clients"`
	ExposeErrorDetail bool          `yaml:"expose_error_detail"`
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:              5000,
		Timeout:           30 * time.Second,
		MaxBodyBytes:      1 << 20,
		AllowedOrigins:    []string{"*"},
		RateLimitClients:  10000,
		ExposeErrorDetail: true,
	}
}

// WithDefaults 用默认值填充零值字段
func (c ServerConfig) WithDefaults() ServerConfig {
	def := DefaultServerConfig()
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = def.AllowedOrigins
	}
	if c.RateLimitClients <= 0 {
		c.RateLimitClients = def.RateLimitClients
	}
	return c
}

// Deps 处理器依赖
type Deps struct {
	Service    *predict.Service
	Metrics    *monitoring.PredictionMetrics
	Provenance ProvenanceSource // 可为 nil
	Logger     *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Deps) *Server {
	config = config.WithDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewPredictionMetrics()
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      NewHandler(config, deps),
			ReadTimeout:  config.Timeout,
			WriteTimeout: config.Timeout,
			IdleTimeout:  120 * time.Second,
		},
		config: config,
		log:    deps.Logger,
	}
}

// NewHandler 构建带中间件链的路由
func NewHandler(config ServerConfig, deps Deps) http.Handler {
	config = config.WithDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewPredictionMetrics()
	}

	mux := http.NewServeMux()
	api := &API{
		service:     deps.Service,
		metrics:     deps.Metrics,
		provenance:  deps.Provenance,
		log:         deps.Logger,
		exposeError: config.ExposeErrorDetail,
	}
	api.Register(mux)

	// 创建中间件链
	chain := Chain(
		LoggerMiddleware(deps.Logger),                                  // 1. 日志中间件（分配请求ID，panic请求也记录访问日志）
		RecoveryMiddleware(deps.Logger),                                // 2. 恢复中间件（捕获panic）
		SecurityHeadersMiddleware,                                      // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins),                          // 4. CORS中间件
		RateLimitMiddleware(config.RateLimit, config.RateLimitClients), // 5. 限流中间件
		RequestSizeMiddleware(config.MaxBodyBytes),                     // 6. 请求大小限制
	)
	return chain(mux)
}

// Start 启动服务器
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.log.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
