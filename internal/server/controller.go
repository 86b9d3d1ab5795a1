package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixelhotel/messenger/internal/models"
	pkgmdw "github.com/pixelhotel/messenger/internal/server/middleware"
	"github.com/pixelhotel/messenger/internal/session"
	"github.com/pixelhotel/messenger/internal/usecase"
)

type Controller struct {
	messenger usecase.MessengerUsecase
	sessions  *session.Manager
}

func NewController(messenger usecase.MessengerUsecase, sessions *session.Manager) *Controller {
	return &Controller{
		messenger: messenger,
		sessions:  sessions,
	}
}

func (ct *Controller) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Body       string `json:"body" validate:"required"`
}

func (ct *Controller) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID := pkgmdw.GetUserID(c)
	msg, err := ct.messenger.SendMessage(c.Request().Context(), userID, req.ReceiverID, req.Body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, msg)
}

// AttachSession starts the user's delivery session: push routing plus
// the poll fallbacks.
func (ct *Controller) AttachSession(c echo.Context) error {
	// Sessions outlive the request; they run until detach or server
	// shutdown.
	ct.sessions.Attach(pkgmdw.GetUserID(c))
	return c.NoContent(http.StatusNoContent)
}

func (ct *Controller) DetachSession(c echo.Context) error {
	ct.sessions.Detach(pkgmdw.GetUserID(c))
	return c.NoContent(http.StatusNoContent)
}

func (ct *Controller) ListConversations(c echo.Context) error {
	userID := pkgmdw.GetUserID(c)
	if s, ok := ct.sessions.Get(userID); ok {
		return c.JSON(http.StatusOK, s.Conversations(c.Request().Context()))
	}
	conversations, err := ct.messenger.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conversations)
}

func (ct *Controller) OpenConversation(c echo.Context) error {
	userID := pkgmdw.GetUserID(c)
	otherID := c.Param("counterpart")

	if s, ok := ct.sessions.Get(userID); ok {
		timeline, err := s.Open(c.Request().Context(), otherID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, timeline)
	}
	timeline, err := ct.messenger.OpenConversation(c.Request().Context(), userID, otherID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, timeline)
}

func (ct *Controller) CloseConversation(c echo.Context) error {
	if s, ok := ct.sessions.Get(pkgmdw.GetUserID(c)); ok {
		s.Close(c.Request().Context())
	}
	return c.NoContent(http.StatusNoContent)
}

func (ct *Controller) DeleteMessage(c echo.Context) error {
	userID := pkgmdw.GetUserID(c)
	messageID := models.ObjectID(c.Param("id"))
	if err := ct.messenger.DeleteMessage(c.Request().Context(), userID, messageID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type reportMessageRequest struct {
	Reason string `json:"reason" validate:"required"`
}

func (ct *Controller) ReportMessage(c echo.Context) error {
	var req reportMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	userID := pkgmdw.GetUserID(c)
	messageID := models.ObjectID(c.Param("id"))
	if err := ct.messenger.ReportMessage(c.Request().Context(), userID, messageID, req.Reason); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type blockUserRequest struct {
	BlockedID string `json:"blocked_id" validate:"required"`
}

func (ct *Controller) BlockUser(c echo.Context) error {
	var req blockUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := ct.messenger.BlockUser(c.Request().Context(), pkgmdw.GetUserID(c), req.BlockedID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (ct *Controller) UnblockUser(c echo.Context) error {
	if err := ct.messenger.UnblockUser(c.Request().Context(), pkgmdw.GetUserID(c), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (ct *Controller) ListBlocked(c echo.Context) error {
	relations, err := ct.messenger.ListBlocked(c.Request().Context(), pkgmdw.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, relations)
}

type postCommentRequest struct {
	TargetID string `json:"target_id" validate:"required"`
}

// PostComment gates a profile or photo comment. The layered policy may
// answer with an escalating Retry-After.
func (ct *Controller) PostComment(c echo.Context) error {
	var req postCommentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := ct.messenger.PostComment(c.Request().Context(), pkgmdw.GetUserID(c), req.TargetID); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

type presencePreferenceRequest struct {
	AppearOnline bool `json:"appear_online"`
}

func (ct *Controller) SetPresencePreference(c echo.Context) error {
	var req presencePreferenceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := ct.messenger.SetAppearOnline(c.Request().Context(), pkgmdw.GetUserID(c), req.AppearOnline); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// EraseConversation is admin-only; routing guards it with the admin
// token middleware.
func (ct *Controller) EraseConversation(c echo.Context) error {
	userID := c.QueryParam("user_id")
	otherID := c.QueryParam("other_id")
	if userID == "" || otherID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and other_id are required")
	}
	if err := ct.messenger.EraseConversation(c.Request().Context(), userID, otherID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
