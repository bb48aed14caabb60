package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sumire/notifysettings/internal/domain"
)

// FineTuningService reads and writes per-entity notification preferences.
type FineTuningService interface {
	Get(ctx context.Context, userID int64, notificationType string) (map[string]any, error)
	Update(ctx context.Context, userID int64, notificationType string, updates map[string]any) error
}

// NotificationHandler serves the notification fine-tuning endpoints.
type NotificationHandler struct {
	svc FineTuningService
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(svc FineTuningService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

// Register mounts the handler's routes on g.
func (h *NotificationHandler) Register(g *echo.Group) {
	g.GET("/users/:user_id/notifications/:notification_type", h.Get)
	g.PUT("/users/:user_id/notifications/:notification_type", h.Update)
}

type fineTuningPath struct {
	UserID           string `param:"user_id" validate:"required,user_ref"`
	NotificationType string `param:"notification_type" validate:"required"`
}

// Get returns the caller's preferences for one notification type.
func (h *NotificationHandler) Get(c echo.Context) error {
	userID, notificationType, err := h.bindPath(c)
	if err != nil {
		return err
	}

	values, err := h.svc.Get(c.Request().Context(), userID, notificationType)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, values)
}

// Update applies an id to value map for one notification type.
func (h *NotificationHandler) Update(c echo.Context) error {
	userID, notificationType, err := h.bindPath(c)
	if err != nil {
		return err
	}

	var body map[string]any
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidInput)
	}

	if err := h.svc.Update(c.Request().Context(), userID, notificationType, body); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// bindPath resolves the path to the caller's user id. Addressing another
// user is forbidden.
func (h *NotificationHandler) bindPath(c echo.Context) (int64, string, error) {
	var p fineTuningPath
	if err := (&echo.DefaultBinder{}).BindPathParams(c, &p); err != nil {
		return 0, "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := c.Validate(&p); err != nil {
		return 0, "", err
	}

	callerID, ok := GetUserID(c)
	if !ok {
		return 0, "", domain.ErrUnauthorized
	}

	if p.UserID != "me" {
		id, err := strconv.ParseInt(p.UserID, 10, 64)
		if err != nil || id != callerID {
			return 0, "", domain.ErrForbidden
		}
	}
	return callerID, p.NotificationType, nil
}
