// Package handler exposes the order service's small ops surface: a health
// check and a read-only saga status lookup. It never triggers a saga --
// that stays a direct function call (see cmd/worker) per this repo's
// Non-goal on HTTP-triggered sagas.
package handler

import (
	"net/http"
	"strconv"

	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/labstack/echo/v4"
)

type StatusHandler struct {
	repo saga.Repository
}

func NewStatusHandler(repo saga.Repository) *StatusHandler {
	return &StatusHandler{repo: repo}
}

func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
	e.GET("/sagas/:id", h.getSaga)
}

func (h *StatusHandler) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatusHandler) getSaga(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid saga id"})
	}

	state, err := h.repo.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, state)
}
