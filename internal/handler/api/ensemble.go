package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	models "OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	xhttp "OrgTrader/pkg/http"
	xlogger "OrgTrader/pkg/logger"
)

// EnsembleHandler serves the latest published ensemble report. It never touches the live
// ensemble.
type EnsembleHandler struct {
	logger *xlogger.Logger
	store  domrepo.ReportStore
	checks []healthCheck
}

type healthCheck struct {
	name string
	fn   func(context.Context) error
}

const healthTimeout = 2 * time.Second

func NewEnsembleHandler(logger *xlogger.Logger, store domrepo.ReportStore) *EnsembleHandler {
	return &EnsembleHandler{logger: logger, store: store}
}

// AddHealthCheck registers a dependency probed by /healthz.
func (h *EnsembleHandler) AddHealthCheck(name string, fn func(context.Context) error) {
	if fn != nil {
		h.checks = append(h.checks, healthCheck{name: name, fn: fn})
	}
}

func (h *EnsembleHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/ensemble", h.Ensemble)
	g.GET("/ensemble/weights", h.Weights)
	g.GET("/analysts/:name", h.Analyst)
}

// Health answers 200 when every registered dependency responds and 503 otherwise.
func (h *EnsembleHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, chk := range h.checks {
		if err := chk.fn(ctx); err != nil {
			deps[chk.name] = err.Error()
			status, code = "degraded", http.StatusServiceUnavailable
			if h.logger != nil {
				h.logger.Warn("health check failed", xlogger.String("dependency", chk.name), xlogger.Error(err))
			}
			continue
		}
		deps[chk.name] = "ok"
	}
	return c.JSON(code, map[string]interface{}{"status": status, "dependencies": deps})
}

func (h *EnsembleHandler) Ensemble(c echo.Context) error {
	r, err := h.latest(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return xhttp.SuccessResponse(c, r)
}

func (h *EnsembleHandler) Weights(c echo.Context) error {
	req := &models.WeightsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	r, err := h.latest(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	res := models.WeightsResponse{Epoch: r.Epoch, Weights: make([]models.InstrumentWeight, 0, len(r.Blended))}
	total := 0.0
	for instr, w := range r.Blended {
		res.Weights = append(res.Weights, models.InstrumentWeight{Instrument: instr, Weight: w})
		total += w
	}
	sort.Slice(res.Weights, func(i, j int) bool {
		if res.Weights[i].Weight != res.Weights[j].Weight {
			return res.Weights[i].Weight > res.Weights[j].Weight
		}
		return res.Weights[i].Instrument < res.Weights[j].Instrument
	})
	if req.Top > 0 && req.Top < len(res.Weights) {
		res.Weights = res.Weights[:req.Top]
	}
	res.Unassigned = math.Max(0, 1-total)
	return xhttp.SuccessResponse(c, res)
}

func (h *EnsembleHandler) Analyst(c echo.Context) error {
	req := &models.AnalystRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	r, err := h.latest(c)
	if err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	a, ok := r.Analyst(req.Name)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("analyst %q is not a member", req.Name).WithParam("name", req.Name))
	}
	return xhttp.SuccessResponse(c, a)
}

func (h *EnsembleHandler) latest(c echo.Context) (*models.EnsembleReport, error) {
	r, err := h.store.Latest(c.Request().Context())
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return nil, xhttp.NotFoundError("no report published yet").WithError(err)
		}
		if h.logger != nil {
			h.logger.Error("load latest report failed", xlogger.Error(err))
		}
		return nil, xhttp.InternalError("report store unavailable").WithError(err)
	}
	return r, nil
}
