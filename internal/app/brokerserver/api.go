package brokerserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/form3tech-oss/pactkit/internal/app/brokerapi"
	"github.com/form3tech-oss/pactkit/internal/app/brokerstore"
	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/httpresponse"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func (s *Server) routes(e *echo.Echo) {
	pacts := e.Group("/pacts/provider/:provider")
	pacts.PUT("/consumer/:consumer/version/:version", s.publishHandler)
	pacts.GET("/latest", s.latestHandler)
	pacts.GET("/latest/:tag", s.latestHandler)
	pacts.GET("/consumer/:consumer/pact-version/:pactVersion", s.pactHandler)
	pacts.POST("/consumer/:consumer/pact-version/:pactVersion/verification-results", s.verificationHandler)

	e.PUT("/pacticipants/:pacticipant/versions/:version/deployments/:environment", s.deploymentHandler)
	e.GET("/can-i-deploy", s.canIDeployHandler)
}

func (s *Server) publishHandler(c echo.Context) error {
	provider, consumer, version := c.Param("provider"), c.Param("consumer"), c.Param("version")

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read pact. %s", err.Error()))
	}
	parsed, err := contract.Parse(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse pact. %s", err.Error()))
	}
	if err := parsed.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Error(err.Error()))
	}
	if parsed.Consumer.Name != consumer || parsed.Provider.Name != provider {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf(
			"pact is between %s and %s, not %s and %s", parsed.Consumer.Name, parsed.Provider.Name, consumer, provider))
	}

	stored, created, err := s.store.PublishPact(c.Request().Context(), brokerstore.Pact{
		Consumer:        consumer,
		Provider:        provider,
		ConsumerVersion: version,
		Tags:            c.QueryParams()["tag"],
		Content:         data,
	})
	if errors.Is(err, brokerstore.ErrConflict) {
		return c.JSON(http.StatusConflict, httpresponse.Errorf(
			"%s version %s already published a different pact for %s", consumer, version, provider))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to store pact. %s", err.Error()))
	}

	log.WithFields(log.Fields{
		"consumer":     consumer,
		"provider":     provider,
		"version":      version,
		"pact_version": stored.PactVersion,
		"created":      created,
	}).Info("pact published")

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, brokerapi.Publication{
		Consumer:        consumer,
		Provider:        provider,
		ConsumerVersion: version,
		PactVersion:     stored.PactVersion,
		Created:         created,
	})
}

func (s *Server) latestHandler(c echo.Context) error {
	pacts, err := s.store.LatestPacts(c.Request().Context(), c.Param("provider"), c.Param("tag"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to load pacts. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, brokerapi.PactList{Pacts: toAPIPacts(pacts)})
}

func (s *Server) pactHandler(c echo.Context) error {
	p, err := s.store.PactByVersion(c.Request().Context(), c.Param("provider"), c.Param("consumer"), c.Param("pactVersion"))
	if errors.Is(err, brokerstore.ErrNotFound) {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("pact version %s not found", c.Param("pactVersion")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to load pact. %s", err.Error()))
	}
	return c.JSONBlob(http.StatusOK, p.Content)
}

func (s *Server) verificationHandler(c echo.Context) error {
	var req brokerapi.VerificationRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to parse verification result. %s", err.Error()))
	}
	if req.ProviderVersion == "" {
		return c.JSON(http.StatusBadRequest, httpresponse.Error("provider_version is required"))
	}

	v, err := s.store.RecordVerification(c.Request().Context(), brokerstore.Verification{
		Consumer:        c.Param("consumer"),
		Provider:        c.Param("provider"),
		PactVersion:     c.Param("pactVersion"),
		ProviderVersion: req.ProviderVersion,
		Success:         req.Success,
		Result:          req.Result,
	})
	if errors.Is(err, brokerstore.ErrNotFound) {
		return c.JSON(http.StatusNotFound, httpresponse.Errorf("pact version %s not found", c.Param("pactVersion")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to record verification. %s", err.Error()))
	}

	log.WithFields(log.Fields{
		"provider":         v.Provider,
		"provider_version": v.ProviderVersion,
		"pact_version":     v.PactVersion,
		"success":          v.Success,
	}).Info("verification recorded")
	return c.JSON(http.StatusCreated, toAPIVerification(v))
}

func (s *Server) deploymentHandler(c echo.Context) error {
	d := brokerstore.Deployment{
		Pacticipant: c.Param("pacticipant"),
		Version:     c.Param("version"),
		Environment: c.Param("environment"),
	}
	if err := s.store.RecordDeployment(c.Request().Context(), d); err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to record deployment. %s", err.Error()))
	}
	log.WithFields(log.Fields{
		"pacticipant": d.Pacticipant,
		"version":     d.Version,
		"environment": d.Environment,
	}).Info("deployment recorded")
	return c.JSON(http.StatusCreated, toAPIDeployment(d))
}

func (s *Server) canIDeployHandler(c echo.Context) error {
	pacticipant, version, environment := c.QueryParam("pacticipant"), c.QueryParam("version"), c.QueryParam("environment")
	if pacticipant == "" || version == "" || environment == "" {
		return c.JSON(http.StatusBadRequest, httpresponse.Error("pacticipant, version and environment are required"))
	}
	result, err := s.store.CanIDeploy(c.Request().Context(), pacticipant, version, environment)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to evaluate can-i-deploy. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, toAPICanIDeploy(result))
}
