package records

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medadmin/medadmin/internal/platform/auth"
)

// Access lists the roles allowed to read and to change a collection.
type Access struct {
	Read  []string
	Write []string
}

type Handler struct {
	svc    *Service
	prefix string
	access Access
}

// NewHandler serves svc under /{prefix}/... .
func NewHandler(svc *Service, prefix string, access Access) *Handler {
	return &Handler{svc: svc, prefix: prefix, access: access}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/" + h.prefix)

	readGroup := g.Group("", auth.RequireRole(h.access.Read...))
	readGroup.GET("/get_all", h.List)

	writeGroup := g.Group("", auth.RequireRole(h.access.Write...))
	writeGroup.POST("/add", h.Add)
	writeGroup.PUT("/update/:id", h.Update)
	writeGroup.DELETE("/delete/:id", h.Delete)
}

var success = map[string]string{"status": "success"}

func (h *Handler) List(c echo.Context) error {
	recs, err := h.svc.ListAll(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list records").SetInternal(err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) Add(c echo.Context) error {
	fields, err := bindObject(c)
	if err != nil {
		return err
	}
	if _, err := h.svc.Add(c.Request().Context(), fields); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to add record").SetInternal(err)
	}
	return c.JSON(http.StatusOK, success)
}

func (h *Handler) Update(c echo.Context) error {
	fields, err := bindObject(c)
	if err != nil {
		return err
	}
	err = h.svc.Update(c.Request().Context(), c.Param("id"), fields)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to update record").SetInternal(err)
	}
	return c.JSON(http.StatusOK, success)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete record").SetInternal(err)
	}
	return c.JSON(http.StatusOK, success)
}

// bindObject decodes the request body, which must be a single JSON object.
func bindObject(c echo.Context) (map[string]any, error) {
	dec := json.NewDecoder(c.Request().Body)

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		if errors.Is(err, io.EOF) {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
		}
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object").SetInternal(err)
	}
	if fields == nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}
	if dec.More() {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "request body must contain a single JSON object")
	}
	return fields, nil
}
