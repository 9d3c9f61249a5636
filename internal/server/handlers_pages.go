package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/domain"
	apperrors "github.com/NVIDIA-Omniverse/ov-dgxc-portal-sample/internal/errors"
)

// handleListPages returns the sidebar menu entries in display order.
func (s *Server) handleListPages(c echo.Context) error {
	pages, err := s.pages.List(c.Request().Context())
	if err != nil {
		return err
	}
	if pages == nil {
		pages = []*domain.PortalPage{}
	}
	return c.JSON(http.StatusOK, pages)
}

// handleSetPages replaces the whole sidebar menu, administrators only.
func (s *Server) handleSetPages(c echo.Context) error {
	var pages []*domain.PortalPage
	if err := c.Bind(&pages); err != nil {
		return apperrors.ValidationError("invalid pages payload")
	}
	for _, page := range pages {
		if page.Name == "" || page.URL == "" {
			return apperrors.ValidationError("every page needs a name and a url")
		}
	}

	stored, err := s.pages.Replace(c.Request().Context(), pages)
	if err != nil {
		return err
	}
	if stored == nil {
		stored = []*domain.PortalPage{}
	}
	return c.JSON(http.StatusOK, stored)
}
