package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	apperrors "github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/errors"
)

// appResponse is a catalog entry enriched with the live deployment status
// from the function inventory.
type appResponse struct {
	*domain.PublishedApp
	FunctionID        uuid.UUID             `json:"function_id"`
	FunctionVersionID uuid.UUID             `json:"function_version_id"`
	Status            domain.FunctionStatus `json:"status"`
}

func (s *Server) toAppResponse(c echo.Context, app *domain.PublishedApp) appResponse {
	return appResponse{
		PublishedApp:      app,
		FunctionID:        app.Function.FunctionID,
		FunctionVersionID: app.Function.FunctionVersionID,
		Status:            s.inventory.StatusFor(c.Request().Context(), app.Function),
	}
}

// handleListApps returns the published applications, each stamped with its
// deployment status. An optional status filter narrows the result, and a
// function pair filter addresses a single catalog entry.
func (s *Server) handleListApps(c echo.Context) error {
	statusFilter := domain.FunctionStatusAll
	if raw := c.QueryParam("status"); raw != "" {
		statusFilter = domain.FunctionStatus(raw)
	}

	refFilter, err := parseFunctionRefQuery(c)
	if err != nil {
		return err
	}

	apps, err := s.apps.List(c.Request().Context(), refFilter)
	if err != nil {
		return err
	}

	result := make([]appResponse, 0, len(apps))
	for _, app := range apps {
		response := s.toAppResponse(c, app)
		if statusFilter == domain.FunctionStatusAll || statusFilter == response.Status {
			result = append(result, response)
		}
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetApp(c echo.Context) error {
	app, err := s.apps.Get(c.Request().Context(), c.Param("app_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.toAppResponse(c, app))
}

type publishAppRequest struct {
	Slug               string                    `json:"slug"`
	FunctionID         uuid.UUID                 `json:"function_id"`
	FunctionVersionID  uuid.UUID                 `json:"function_version_id"`
	Title              string                    `json:"title"`
	Description        string                    `json:"description"`
	Version            string                    `json:"version"`
	Image              string                    `json:"image"`
	Icon               string                    `json:"icon"`
	Category           string                    `json:"category"`
	ProductArea        string                    `json:"product_area"`
	AuthenticationType domain.AuthenticationType `json:"authentication_type"`
}

// handlePublishApp creates or updates a catalog entry, administrators
// only. Answers 201 on create and 200 on update.
func (s *Server) handlePublishApp(c echo.Context) error {
	appID := c.Param("app_id")
	if appID == "" {
		return apperrors.ValidationError("app_id must be specified in the URL.")
	}

	var request publishAppRequest
	if err := c.Bind(&request); err != nil {
		return apperrors.ValidationError("invalid application payload")
	}
	if request.FunctionID == uuid.Nil || request.FunctionVersionID == uuid.Nil {
		return apperrors.ValidationError("function_id and function_version_id are required")
	}
	if request.AuthenticationType == "" {
		request.AuthenticationType = domain.AuthNone
	}

	status := http.StatusOK
	if _, err := s.apps.Get(c.Request().Context(), appID); errors.Is(err, domain.ErrAppNotFound) {
		status = http.StatusCreated
	} else if err != nil {
		return err
	}

	stored, err := s.apps.Upsert(c.Request().Context(), &domain.PublishedApp{
		ID:   appID,
		Slug: request.Slug,
		Function: domain.FunctionRef{
			FunctionID:        request.FunctionID,
			FunctionVersionID: request.FunctionVersionID,
		},
		Title:              request.Title,
		Description:        request.Description,
		Version:            request.Version,
		Image:              request.Image,
		Icon:               request.Icon,
		Category:           request.Category,
		ProductArea:        request.ProductArea,
		AuthenticationType: request.AuthenticationType,
	})
	if err != nil {
		return err
	}
	return c.JSON(status, s.toAppResponse(c, stored))
}

func (s *Server) handleDeleteApp(c echo.Context) error {
	if err := s.apps.Delete(c.Request().Context(), c.Param("app_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
