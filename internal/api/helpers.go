package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/mechpack/internal/mechanism"
)

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, "", "")
}

func writeServiceError(c *echo.Context, err error) error {
	status, errType := statusFor(err)
	return writeError(c, status, errType, err.Error(), "", "")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest(fmt.Sprintf("decode body: %v", err))
	}
	return out, nil
}

func parseID(raw string) (uint32, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, newInvalidRequest(fmt.Sprintf("invalid mechanism id %q", raw))
	}
	return uint32(id), nil
}

func fieldViews(entries []mechanism.FieldEntry) []FieldView {
	out := make([]FieldView, len(entries))
	for i, f := range entries {
		out[i] = FieldView{Name: f.Name, Default: f.Default, Addr: f.Data.String()}
	}
	return out
}
