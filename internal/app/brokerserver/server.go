package brokerserver

import (
	"context"
	"net"
	"net/http"
	"sync"

	"github.com/form3tech-oss/pactkit/internal/app/brokerstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Server exposes a broker store over the broker HTTP API.
type Server struct {
	store     brokerstore.Store
	echo      *echo.Echo
	server    *http.Server
	url       string
	closeOnce sync.Once
}

func New(store brokerstore.Store) *Server {
	s := &Server{store: store}
	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.BodyLimit("10M"))
	s.routes(s.echo)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on address in the background. Port 0 picks a free port.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "unable to listen on %s", address)
	}
	s.url = "http://" + listener.Addr().String()
	s.server = &http.Server{Handler: s.echo}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithField("address", s.url).Error(err)
		}
	}()
	log.WithField("address", s.url).Info("broker started")
	return nil
}

func (s *Server) URL() string {
	return s.url
}

func (s *Server) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		if s.server != nil {
			err = s.server.Shutdown(ctx)
		}
	})
	return err
}
