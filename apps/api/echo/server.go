package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/time/rate"

	"github.com/trezcool/mashauri/core"
	"github.com/trezcool/mashauri/core/attachment"
	"github.com/trezcool/mashauri/core/cases"
	"github.com/trezcool/mashauri/core/notification"
	"github.com/trezcool/mashauri/core/user"
)

type (
	ServerDeps struct {
		Logger        core.Logger
		UserSvc       user.Service
		CaseSvc       cases.Service
		NotifSvc      notification.Service
		AttachmentSvc attachment.Service

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Shutdown(context.Context) error
		Close() error
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errs     chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(metricsMiddleware)

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, translator, s.signalShutdown)
	s.app.Debug = core.Conf.Debug
	s.app.HideBanner = true

	s.app.GET("/", home)
	s.app.GET("/metrics", metricsHandler())

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	registerUserAPI(v1, jwt, s.deps.UserSvc, validate)
	registerCaseAPI(v1, jwt, s.deps.CaseSvc, s.deps.UserSvc, s.deps.AttachmentSvc, validate)
	registerNotificationAPI(v1, jwt, s.deps.NotifSvc, s.deps.UserSvc)
}

func (s *server) Start() {
	s.errs <- s.app.Start(core.Conf.Server.Address())
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) Errors() <-chan error { return s.errs }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// signalShutdown requests a graceful stop; called when an unrecoverable error
// is caught by the error handler.
func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+core.Conf.AppName+" API!")
}

// login and password reset are throttled; other routes run unthrottled.
var (
	authRateLimit = rate.Limit(1) // per second
	authRateBurst = 10
)
