package mockservice

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/form3tech-oss/pactkit/internal/app/contract"
	"github.com/form3tech-oss/pactkit/internal/app/httpresponse"
	"github.com/form3tech-oss/pactkit/internal/app/matching"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// AdminPrefix is where the mock service control endpoints live. Everything
// else is consumer traffic.
const AdminPrefix = "/_pact"

func (h *Handle) routes(e *echo.Echo) {
	admin := e.Group(AdminPrefix)
	admin.GET("/ready", h.readinessHandler)
	admin.GET("/interactions", h.getInteractionsHandler)
	admin.POST("/interactions", h.postInteractionsHandler)
	admin.DELETE("/interactions", h.deleteInteractionsHandler)
	admin.GET("/interactions/verification", h.verificationHandler)
	admin.GET("/interactions/wait", h.interactionsWaitHandler)
	admin.POST("/interactions/modifiers", h.interactionsModifiersHandler)
	admin.POST("/pact", h.pactHandler)

	e.Any("/*", h.indexHandler)
}

func (h *Handle) readinessHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (h *Handle) getInteractionsHandler(c echo.Context) error {
	all := h.interactions.All()
	statuses := make([]interactionStatus, 0, len(all))
	for _, i := range all {
		statuses = append(statuses, i.status())
	}
	return c.JSON(http.StatusOK, statuses)
}

func (h *Handle) postInteractionsHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read interaction. %s", err.Error()))
	}

	interaction, err := LoadInteraction(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load interaction. %s", err.Error()))
	}

	if err := h.AddInteraction(interaction); err != nil {
		return c.JSON(http.StatusConflict, httpresponse.Errorf("unable to store interaction. %s", err.Error()))
	}
	return c.NoContent(http.StatusCreated)
}

func (h *Handle) deleteInteractionsHandler(c echo.Context) error {
	h.Reset()
	return c.NoContent(http.StatusNoContent)
}

func (h *Handle) verificationHandler(c echo.Context) error {
	err := h.Verify()
	var mismatch *VerificationMismatchError
	if errors.As(err, &mismatch) {
		return c.JSON(http.StatusInternalServerError,
			httpresponse.Errorf("interactions do not match").WithDetails(mismatch))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handle) pactHandler(c echo.Context) error {
	path, err := h.WritePact(c.QueryParam("dir"))
	var mismatch *VerificationMismatchError
	var invalid *contract.ValidationError
	switch {
	case errors.As(err, &mismatch):
		return c.JSON(http.StatusInternalServerError,
			httpresponse.Errorf("interactions do not match, pact not written").WithDetails(mismatch))
	case errors.As(err, &invalid):
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("invalid pact. %s", err.Error()))
	case err != nil:
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to write pact. %s", err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]string{"path": path})
}

func (h *Handle) interactionsWaitHandler(c echo.Context) error {
	waitForCount, err := strconv.Atoi(c.QueryParam("count"))
	if err != nil {
		waitForCount = 1
	}
	timeout := h.config.WaitDuration
	if d, err := time.ParseDuration(c.QueryParam("timeout")); err == nil {
		timeout = d
	}

	if waitFor := c.QueryParam("interaction"); waitFor != "" {
		if _, ok := h.interactions.Load(waitFor); !ok {
			return c.JSON(http.StatusBadRequest,
				httpresponse.Errorf("cannot wait for interaction '%s', interaction not found.", waitFor))
		}
		if err := h.WaitForInteraction(waitFor, waitForCount, timeout); err != nil {
			return c.JSON(http.StatusRequestTimeout, httpresponse.Error(err.Error()))
		}
		return c.NoContent(http.StatusOK)
	}

	if err := h.WaitForAll(timeout); err != nil {
		return c.JSON(http.StatusRequestTimeout, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handle) interactionsModifiersHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read modifier. %s", err.Error()))
	}

	modifier, err := loadModifier(data)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to load modifier. %s", err.Error()))
	}

	if err := h.addModifier(modifier); err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Error(err.Error()))
	}
	return c.NoContent(http.StatusNoContent)
}

// indexHandler serves consumer traffic: the first configured interaction
// whose request matches answers with its response.
func (h *Handle) indexHandler(c echo.Context) error {
	req := c.Request()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, httpresponse.Errorf("unable to read request body. %s", err.Error()))
	}

	interaction, attempt, unexpected := h.interactions.Match(req, body)
	h.notify.Notify()
	if unexpected != nil {
		return c.JSON(http.StatusInternalServerError,
			httpresponse.Errorf("no interaction found for %s", unexpected.Request).WithDetails(unexpected))
	}

	log.WithFields(log.Fields{
		"interaction": interaction.Description,
		"attempt":     attempt,
	}).Infof("matched %s %s", req.Method, req.URL.Path)

	response, err := h.modifiedResponse(interaction, attempt)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, httpresponse.Errorf("unable to modify response. %s", err.Error()))
	}
	return response.WriteTo(c.Response())
}

func (h *Handle) modifiedResponse(interaction *Interaction, attempt int) (contract.Response, error) {
	response := interaction.definition.Response
	if ok, code := interaction.modifiers.modifyStatusCode(attempt); ok {
		response.Status = code
	}
	if !response.Body.IsContainer() {
		return response, nil
	}

	body, _, err := response.BodyBytes()
	if err != nil {
		return contract.Response{}, err
	}
	modified, err := interaction.modifiers.modifyBody(body, attempt)
	if err != nil {
		return contract.Response{}, err
	}
	if response.Body, err = matching.Parse(modified); err != nil {
		return contract.Response{}, errors.Wrap(err, "modified body is not valid json")
	}
	return response, nil
}
