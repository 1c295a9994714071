package http

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	mw "github.com/labstack/echo/v4/middleware"
	echolog "github.com/labstack/gommon/log"
	"github.com/msgdeck/msgdeck/internal/server/http/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/ziflex/lecho/v3"
)

type Config struct {
	Address string `yaml:"address" env:"SERVER_ADDRESS" env-default:"0.0.0.0" env-description:"Server host"`
	Port    string `yaml:"port" env:"SERVER_PORT" env-default:"8080" env-description:"Server port"`
}

type Server struct {
	echo   *echo.Echo
	config Config
	logger *zerolog.Logger
}

type Opt func(s *Server)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 30 * time.Second
	bodyLimit    = "1M"
)

func New(cfg Config, debug bool, logger *zerolog.Logger, opts ...Opt) *Server {
	log := logger.With().Str("channel", "http_server").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = debug

	level := logLevel(debug)
	echoLogger := lecho.From(log, lecho.WithLevel(level))
	e.Logger = echoLogger
	e.HTTPErrorHandler = common.ErrorHandler(&log)

	e.Server.ReadTimeout = readTimeout
	e.Server.WriteTimeout = writeTimeout

	e.Use(
		mw.RequestID(),
		lecho.Middleware(lecho.Config{Logger: echoLogger, RequestIDKey: "request_id"}),
		mw.RecoverWithConfig(mw.RecoverConfig{LogLevel: level}),
		mw.BodyLimit(bodyLimit),
	)

	s := &Server{echo: e, config: cfg, logger: &log}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) Address() string {
	return net.JoinHostPort(s.config.Address, s.config.Port)
}

// Run blocks until the server stops. A graceful shutdown is not reported as an error.
func (s *Server) Run() error {
	s.logger.Info().Str("address", s.Address()).Msg("starting http server")

	if err := s.echo.Start(s.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "unable to start http server")
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func logLevel(debug bool) echolog.Lvl {
	if debug {
		return echolog.DEBUG
	}

	return echolog.INFO
}
