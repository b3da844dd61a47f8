package configuration

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/httpresponse"
	"github.com/form3tech-oss/pactkit/internal/app/mockservice"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// MockService is the admin API view of a running mock service.
type MockService struct {
	URL      string `json:"url"`
	Consumer string `json:"consumer"`
	Provider string `json:"provider"`
}

// NewAdminAPI builds the control plane that creates and removes mock
// services.
func NewAdminAPI() *echo.Echo {
	adminServer := echo.New()
	adminServer.HideBanner = true
	adminServer.HidePort = true

	adminServer.GET("/mocks", getMocksHandler)
	adminServer.POST("/mocks", postMocksHandler)
	adminServer.DELETE("/mocks", deleteMocksHandler)
	adminServer.DELETE("/mocks/:host", deleteMockHandler)
	return adminServer
}

func ServeAdminAPI(port int) *echo.Echo {
	adminServer := NewAdminAPI()

	go func() {
		address := fmt.Sprintf(":%d", port)
		log.WithField("address", address).Info("admin api listening")
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func getMocksHandler(c echo.Context) error {
	mocks := []MockService{}
	for _, h := range Servers() {
		mocks = append(mocks, describe(h))
	}
	return c.JSON(http.StatusOK, mocks)
}

func deleteMocksHandler(c echo.Context) error {
	log.Infof("closing all mock services")
	ctx, cancel := context.WithTimeout(c.Request().Context(), shutdownTimeout)
	defer cancel()
	ShutdownAllServers(ctx)
	return c.NoContent(http.StatusNoContent)
}

func deleteMockHandler(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), shutdownTimeout)
	defer cancel()
	if err := ShutdownServer(ctx, c.Param("host")); err != nil {
		return c.JSON(http.StatusNotFound, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

func postMocksHandler(c echo.Context) error {
	config := mockservice.Config{}
	err := c.Bind(&config)
	if err != nil {
		return c.JSON(
			http.StatusBadRequest,
			httpresponse.Errorf("unable to parse mock service configuration. %s", err.Error()),
		)
	}

	log.Infof("setting up mock service for %s -> %s on %s", config.Consumer, config.Provider, config.ServerAddress.String())

	handle, err := StartServer(config)
	if err != nil {
		return c.JSON(
			http.StatusInternalServerError,
			httpresponse.Errorf("unable to create mock service from configuration. %s", err.Error()),
		)
	}

	return c.JSON(http.StatusCreated, describe(handle))
}

func describe(h *mockservice.Handle) MockService {
	config := h.Config()
	return MockService{URL: h.URL(), Consumer: config.Consumer, Provider: config.Provider}
}
