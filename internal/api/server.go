// Package api serves read and write access to a cell group's mechanism
// instances over HTTP.
package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mechpack/internal/cellgroup"
	"github.com/samcharles93/mechpack/internal/checkpoint"
	"github.com/samcharles93/mechpack/internal/mechanism"
	"github.com/samcharles93/mechpack/internal/version"
)

type Server struct {
	group *cellgroup.Group
	store *checkpoint.Store
}

// NewServer serves g. store may be nil, which disables the checkpoint
// routes.
func NewServer(g *cellgroup.Group, store *checkpoint.Store) *Server {
	return &Server{group: g, store: store}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	if m := s.group.Metrics(); m != nil {
		h := m.Handler()
		e.GET("/metrics", func(c *echo.Context) error {
			h.ServeHTTP(c.Response(), c.Request())
			return nil
		})
	}

	e.GET("/v1/catalogue", s.handleCatalogue)
	e.GET("/v1/mechanisms", s.handleListMechanisms)
	e.GET("/v1/mechanisms/:id", s.handleGetMechanism)
	e.GET("/v1/mechanisms/:id/fields", s.handleFieldTable)
	e.GET("/v1/mechanisms/:id/fields/:name", s.handleGetField)
	e.PUT("/v1/mechanisms/:id/fields/:name", s.handleSetField)
	e.GET("/v1/mechanisms/:id/state", s.handleStateTable)
	e.GET("/v1/mechanisms/:id/globals", s.handleGlobalTable)
	e.GET("/v1/mechanisms/:id/ions", s.handleIonTable)
	e.GET("/v1/mechanisms/:id/layout", s.handleLayout)
	e.POST("/v1/initialize", s.handleInitialize)
	e.POST("/v1/reset", s.handleReset)

	if s.store != nil {
		e.GET("/v1/checkpoints", s.handleListCheckpoints)
		e.POST("/v1/checkpoints", s.handleCreateCheckpoint)
		e.POST("/v1/checkpoints/:id/restore", s.handleRestoreCheckpoint)
		e.DELETE("/v1/checkpoints/:id", s.handleDeleteCheckpoint)
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ok",
		"device":    s.group.State().Device().Name(),
		"instances": len(s.group.Instances()),
		"version":   version.String(),
	})
}

func (s *Server) handleCatalogue(c *echo.Context) error {
	return c.JSON(http.StatusOK, list(s.group.Catalogue().Schemas()))
}

func (s *Server) instance(c *echo.Context) (*mechanism.Instance, error) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return nil, err
	}
	return s.group.Instance(id)
}

func summary(m *mechanism.Instance) MechanismSummary {
	return MechanismSummary{
		ID:          m.ID(),
		Name:        m.Name(),
		Kind:        m.Kind(),
		Width:       m.Width(),
		WidthPadded: m.WidthPadded(),
	}
}

func (s *Server) handleListMechanisms(c *echo.Context) error {
	insts := s.group.Instances()
	out := make([]MechanismSummary, len(insts))
	for i, m := range insts {
		out[i] = summary(m)
	}
	return c.JSON(http.StatusOK, list(out))
}

func (s *Server) handleGetMechanism(c *echo.Context) error {
	m, err := s.instance(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	names := func(fs []mechanism.FieldEntry) []string {
		out := make([]string, len(fs))
		for i, f := range fs {
			out[i] = f.Name
		}
		return out
	}
	detail := MechanismDetail{MechanismSummary: summary(m), Globals: []string{}, Ions: []string{}}
	fields := m.FieldTable()
	nState := len(m.StateTable())
	detail.Parameters = names(fields[:len(fields)-nState])
	detail.State = names(fields[len(fields)-nState:])
	for _, g := range m.GlobalTable() {
		detail.Globals = append(detail.Globals, g.Name)
	}
	for _, ion := range m.IonTable() {
		detail.Ions = append(detail.Ions, ion.Name)
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *Server) handleFieldTable(c *echo.Context) error {
	m, err := s.instance(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, list(fieldViews(m.FieldTable())))
}

func (s *Server) handleStateTable(c *echo.Context) error {
	m, err := s.instance(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, list(fieldViews(m.StateTable())))
}

func (s *Server) handleGetField(c *echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	name := c.Param("name")
	vals, err := s.group.FieldValues(id, name)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, FieldValues{Name: name, Values: vals})
}

func (s *Server) handleSetField(c *echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	req, err := decodeJSON[SetFieldRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := s.group.SetField(id, c.Param("name"), req.Values); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleGlobalTable(c *echo.Context) error {
	m, err := s.instance(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	globals := m.GlobalTable()
	out := make([]GlobalView, len(globals))
	for i, g := range globals {
		out[i] = GlobalView{Name: g.Name, Value: g.Value}
	}
	return c.JSON(http.StatusOK, list(out))
}

func (s *Server) handleIonTable(c *echo.Context) error {
	m, err := s.instance(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	ions := m.IonTable()
	out := make([]IonView, len(ions))
	for i, ion := range ions {
		out[i] = IonView{
			Name:              ion.Name,
			Ion:               ion.View.Ion,
			CurrentDensity:    ion.View.CurrentDensity.String(),
			ReversalPotential: ion.View.ReversalPotential.String(),
			InternalConc:      ion.View.InternalConc.String(),
			ExternalConc:      ion.View.ExternalConc.String(),
			Charge:            ion.View.Charge.String(),
			Index:             ion.Index.String(),
		}
	}
	return c.JSON(http.StatusOK, list(out))
}

func (s *Server) handleLayout(c *echo.Context) error {
	m, err := s.instance(c)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, m.Layout())
}

func (s *Server) handleInitialize(c *echo.Context) error {
	if err := s.group.Initialize(c.Request().Context()); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleReset(c *echo.Context) error {
	if err := s.group.Reset(c.Request().Context()); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListCheckpoints(c *echo.Context) error {
	sums, err := s.store.List(c.Request().Context())
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, list(sums))
}

func (s *Server) handleCreateCheckpoint(c *echo.Context) error {
	req, err := decodeJSON[CheckpointRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	snap, err := checkpoint.Capture(s.group, req.Label)
	if err != nil {
		return writeServiceError(c, err)
	}
	if err := s.store.Save(c.Request().Context(), snap); err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, checkpoint.Summary{
		ID:         snap.ID,
		Label:      snap.Label,
		CreatedAt:  snap.CreatedAt,
		Mechanisms: len(snap.Mechanisms),
	})
}

func (s *Server) handleRestoreCheckpoint(c *echo.Context) error {
	snap, err := s.store.Load(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	if err := snap.Restore(s.group); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleDeleteCheckpoint(c *echo.Context) error {
	if err := s.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
