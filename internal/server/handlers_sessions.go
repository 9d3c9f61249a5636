package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/app"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/auth"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	apperrors "github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/errors"
	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/proxy"
)

// sessionCookie is shared with the streaming client library, which sends
// it back on the signaling connection.
const sessionCookie = "nvcf-request-id"

type sessionResponse struct {
	ID                string        `json:"id"`
	FunctionID        uuid.UUID     `json:"function_id"`
	FunctionVersionID uuid.UUID     `json:"function_version_id"`
	AppID             *string       `json:"app_id"`
	UserID            string        `json:"user_id"`
	UserName          string        `json:"user_name"`
	Status            domain.Status `json:"status"`
	StartDate         time.Time     `json:"start_date"`
	EndDate           *time.Time    `json:"end_date"`
}

func toSessionResponse(session *domain.Session) sessionResponse {
	return sessionResponse{
		ID:                session.ID,
		FunctionID:        session.Function.FunctionID,
		FunctionVersionID: session.Function.FunctionVersionID,
		AppID:             session.AppID,
		UserID:            session.UserID,
		UserName:          session.UserName,
		Status:            session.Status,
		StartDate:         session.StartDate,
		EndDate:           session.EndDate,
	}
}

func parseFunctionRef(c echo.Context) (domain.FunctionRef, error) {
	functionID, err := uuid.Parse(c.Param("function_id"))
	if err != nil {
		return domain.FunctionRef{}, apperrors.ValidationError("function_id must be a valid UUID")
	}
	versionID, err := uuid.Parse(c.Param("function_version_id"))
	if err != nil {
		return domain.FunctionRef{}, apperrors.ValidationError("function_version_id must be a valid UUID")
	}
	return domain.FunctionRef{FunctionID: functionID, FunctionVersionID: versionID}, nil
}

// parseFunctionRefQuery reads an optional function pair filter from the
// query string. Both parameters must be given together.
func parseFunctionRefQuery(c echo.Context) (*domain.FunctionRef, error) {
	if c.QueryParam("function_id") == "" && c.QueryParam("function_version_id") == "" {
		return nil, nil
	}
	functionID, err := uuid.Parse(c.QueryParam("function_id"))
	if err != nil {
		return nil, apperrors.ValidationError("function_id must be a valid UUID")
	}
	versionID, err := uuid.Parse(c.QueryParam("function_version_id"))
	if err != nil {
		return nil, apperrors.ValidationError("function_version_id must be a valid UUID")
	}
	return &domain.FunctionRef{FunctionID: functionID, FunctionVersionID: versionID}, nil
}

func currentIdentity(c echo.Context) app.Identity {
	user := auth.CurrentUser(c)
	if user == nil {
		return app.Identity{}
	}
	return app.Identity{Sub: user.Sub, Username: user.Username, Token: user.Token}
}

// streamPath is the cookie scope the streaming client library reads the
// session ID from.
func streamPath(ref domain.FunctionRef) string {
	return fmt.Sprintf("/stream/%s/%s", ref.FunctionID, ref.FunctionVersionID)
}

// setSessionCookies stamps the session ID for both the API path and the
// streaming library path.
func (s *Server) setSessionCookies(c echo.Context, ref domain.FunctionRef, sessionID string) {
	maxAge := s.settings.Current().SessionTTL
	c.SetCookie(&http.Cookie{
		Name:   sessionCookie,
		Value:  sessionID,
		MaxAge: maxAge,
		Path:   c.Request().URL.Path,
	})
	c.SetCookie(&http.Cookie{
		Name:   sessionCookie,
		Value:  sessionID,
		MaxAge: maxAge,
		Path:   streamPath(ref),
	})
}

// expireSessionCookies removes the session cookies on both paths.
func expireSessionCookies(c echo.Context, ref domain.FunctionRef) {
	expired := time.Unix(0, 0)
	c.SetCookie(&http.Cookie{Name: sessionCookie, Value: "", Expires: expired, Path: c.Request().URL.Path})
	c.SetCookie(&http.Cookie{Name: sessionCookie, Value: "", Expires: expired, Path: streamPath(ref)})
}

// handleStartSession admits and provisions a new streaming session. The
// session ID is returned in a header and in cookies because the streaming
// client library picks it up from either, depending on its transport mode.
func (s *Server) handleStartSession(c echo.Context) error {
	ref, err := parseFunctionRef(c)
	if err != nil {
		return err
	}

	session, err := s.service.Start(c.Request().Context(), ref, currentIdentity(c))
	if err != nil {
		return err
	}

	s.setSessionCookies(c, ref, session.ID)
	c.Response().Header().Set(sessionCookie, session.ID)
	return c.JSON(http.StatusOK, toSessionResponse(session))
}

// handleStopSession ends the caller's own session addressed by the session
// cookie. The cookies are expired in every outcome so a stale ID never
// sticks in the browser.
func (s *Server) handleStopSession(c echo.Context) error {
	ref, err := parseFunctionRef(c)
	if err != nil {
		return err
	}
	expireSessionCookies(c, ref)

	cookie, err := c.Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		return apperrors.ValidationError(sessionCookie + " must be specified in cookies.")
	}

	if err := s.service.Stop(c.Request().Context(), cookie.Value, ref, currentIdentity(c)); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// handleConnectSession upgrades the signaling connection and hands it to
// the application layer for its whole lifetime. All failures after the
// upgrade are delivered as WebSocket close codes, not HTTP statuses.
func (s *Server) handleConnectSession(c echo.Context) error {
	ref, err := parseFunctionRef(c)
	if err != nil {
		return err
	}
	user := currentIdentity(c)

	// The streaming client library requires its subprotocol echoed back,
	// otherwise it drops the connection.
	var responseHeader http.Header
	if protocol := c.Request().Header.Get("Sec-WebSocket-Protocol"); protocol != "" {
		responseHeader = http.Header{"Sec-WebSocket-Protocol": {protocol}}
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), responseHeader)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		return nil
	}
	defer conn.Close() //nolint:errcheck

	cookie, err := c.Request().Cookie(sessionCookie)
	if err != nil || cookie.Value == "" {
		proxy.CloseWithCode(conn, proxy.CodeMissingSession,
			"Session ID is not specified (missing "+sessionCookie+" cookie).")
		return nil
	}

	nucleusToken := ""
	if nucleusCookie, err := c.Request().Cookie("nucleus_token"); err == nil {
		nucleusToken = nucleusCookie.Value
	}

	status := s.service.Attach(c.Request().Context(), app.AttachParams{
		SessionID:    cookie.Value,
		Ref:          ref,
		User:         user,
		Client:       conn,
		Query:        c.Request().URL.Query(),
		UserAgent:    c.Request().UserAgent(),
		NucleusToken: nucleusToken,
	})

	proxy.CloseWithCode(conn, status.Code, status.Reason)
	return nil
}

// handleListSessions returns a page of sessions for administrators,
// narrowed by status, function pair, and owner. The virtual ALIVE status
// expands to every non-stopped status.
func (s *Server) handleListSessions(c echo.Context) error {
	filter := domain.SessionFilter{UserID: c.QueryParam("user_id")}
	if status := c.QueryParam("status"); status != "" {
		filter.Status = domain.Status(status)
		if !filter.Status.Valid() {
			return apperrors.ValidationError("unknown session status: " + status)
		}
	}
	ref, err := parseFunctionRefQuery(c)
	if err != nil {
		return err
	}
	filter.Function = ref

	page := 1
	if raw := c.QueryParam("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return apperrors.ValidationError("page must be a positive number")
		}
	}
	pageSize := 10
	if raw := c.QueryParam("page_size"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 5 {
			return apperrors.ValidationError("page_size must be at least 5")
		}
	}

	result, err := s.service.List(c.Request().Context(), filter, page, pageSize)
	if err != nil {
		return err
	}

	items := make([]sessionResponse, 0, len(result.Items))
	for _, session := range result.Items {
		items = append(items, toSessionResponse(session))
	}
	return c.JSON(http.StatusOK, domain.Page[sessionResponse]{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalSize:  result.TotalSize,
		TotalPages: result.TotalPages,
	})
}

// handleTerminateSession force-ends any session, administrators only.
func (s *Server) handleTerminateSession(c echo.Context) error {
	if err := s.service.Terminate(c.Request().Context(), c.Param("session_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
