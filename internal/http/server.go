package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ignatij/exectrack/internal/log"
	"github.com/ignatij/exectrack/pkg/models"
	"github.com/ignatij/exectrack/pkg/service"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
)

const shutdownTimeout = 10 * time.Second

// Handler exposes a Controller over JSON.
type Handler struct {
	ctrl *service.Controller
}

func NewHandler(ctrl *service.Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/executions", h.ListExecutions)
	e.POST("/executions/reload", h.ReloadExecutions)
	e.GET("/tracking", h.GetTracking)
	e.POST("/tracking", h.StartTracking)
	e.DELETE("/tracking", h.StopTracking)
}

// NewServer builds the echo instance with every route registered.
func NewServer(ctrl *service.Controller) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	NewHandler(ctrl).RegisterRoutes(e)
	return e
}

// StartServer serves on port until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, port string, ctrl *service.Controller) error {
	e := NewServer(ctrl)
	errCh := make(chan error, 1)
	go func() {
		log.GetLogger().Infof("Starting exectrack server on :%s", port)
		errCh <- e.Start(":" + port)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.GetLogger().Info("Shutting down exectrack server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type startTrackingRequest struct {
	ExecutionID string `json:"executionId"`
}

// recordResponse adds the display form of the status.
type recordResponse struct {
	models.ExecutionLogRecord
	StatusLabel string `json:"statusLabel"`
}

type trackingResponse struct {
	SessionID       string            `json:"sessionId,omitempty"`
	ExecutionID     string            `json:"executionId,omitempty"`
	State           service.PollState `json:"state"`
	IsPolling       bool              `json:"isPolling"`
	RetryCount      int               `json:"retryCount"`
	Records         []recordResponse  `json:"records"`
	NotFoundMessage *string           `json:"notFoundMessage"`
	Error           string            `json:"error,omitempty"`
	Link            string            `json:"link,omitempty"`
}

type groupResponse struct {
	ExecutionID string           `json:"executionId"`
	Parent      *recordResponse  `json:"parent"`
	Children    []recordResponse `json:"children"`
}

type executionsResponse struct {
	Executions []groupResponse `json:"executions"`
	Records    int             `json:"records"`
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "exectrack server is running")
}

// ListExecutions returns the all-time listing grouped by execution, newest
// first, narrowed by the optional search parameter.
func (h *Handler) ListExecutions(c echo.Context) error {
	records := h.ctrl.Search(c.QueryParam("search"))
	return c.JSON(http.StatusOK, toExecutionsResponse(service.GroupExecutions(records)))
}

func (h *Handler) ReloadExecutions(c echo.Context) error {
	if err := h.ctrl.LoadAllExecutions(c.Request().Context()); err != nil {
		log.GetLogger().Errorf("Failed to reload executions: %v", err)
		return c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, toExecutionsResponse(h.ctrl.AllExecutionGroups()))
}

// GetTracking returns the tracking snapshot. An executionId parameter that
// differs from the last tracked execution starts tracking it, so a shared
// link resumes the same view.
func (h *Handler) GetTracking(c echo.Context) error {
	id := strings.TrimSpace(c.QueryParam("executionId"))
	if id != "" && id != h.ctrl.Snapshot().LastExecutionID {
		if err := h.ctrl.StartTracking(id); err != nil {
			return h.trackingError(c, err)
		}
	}
	return c.JSON(http.StatusOK, toTrackingResponse(h.ctrl.Snapshot()))
}

func (h *Handler) StartTracking(c echo.Context) error {
	var req startTrackingRequest
	if err := c.Bind(&req); err != nil {
		log.GetLogger().Errorf("Invalid body in POST /tracking: %v", err)
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := h.ctrl.StartTracking(req.ExecutionID); err != nil {
		return h.trackingError(c, err)
	}
	return c.JSON(http.StatusAccepted, toTrackingResponse(h.ctrl.Snapshot()))
}

func (h *Handler) StopTracking(c echo.Context) error {
	h.ctrl.StopTracking()
	return c.JSON(http.StatusOK, toTrackingResponse(h.ctrl.Snapshot()))
}

func (h *Handler) trackingError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrEmptyExecutionID) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	log.GetLogger().Errorf("Failed to start tracking: %v", err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func toRecordResponse(r models.ExecutionLogRecord) recordResponse {
	return recordResponse{ExecutionLogRecord: r, StatusLabel: r.Status.Display()}
}

func toRecordResponses(records []models.ExecutionLogRecord) []recordResponse {
	out := make([]recordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordResponse(r))
	}
	return out
}

func toTrackingResponse(snap service.Snapshot) trackingResponse {
	resp := trackingResponse{
		SessionID:   snap.SessionID,
		ExecutionID: snap.TrackedExecutionID,
		State:       snap.State,
		IsPolling:   snap.IsPolling,
		RetryCount:  snap.RetryCount,
		Records:     toRecordResponses(snap.Records),
	}
	if snap.NotFoundMessage != "" {
		msg := snap.NotFoundMessage
		resp.NotFoundMessage = &msg
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	if snap.LastExecutionID != "" {
		resp.Link = "/tracking?executionId=" + url.QueryEscape(snap.LastExecutionID)
	}
	return resp
}

func toExecutionsResponse(groups map[string]*models.ExecutionGroup) executionsResponse {
	resp := executionsResponse{Executions: []groupResponse{}}
	for _, id := range service.SortedExecutionIDs(groups) {
		g := groups[id]
		group := groupResponse{ExecutionID: id, Children: toRecordResponses(g.Children)}
		if g.Parent != nil {
			parent := toRecordResponse(*g.Parent)
			group.Parent = &parent
		}
		resp.Executions = append(resp.Executions, group)
		resp.Records += len(g.Children)
		if g.Parent != nil {
			resp.Records++
		}
	}
	return resp
}
