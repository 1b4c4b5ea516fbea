package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/nimasrn/cash-ledger/internal/services"
	xhttp "github.com/nimasrn/cash-ledger/pkg/http"
	"github.com/nimasrn/cash-ledger/pkg/logger"
)

type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       any         `json:"data,omitempty"`
	Errors     any         `json:"errors,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

func newPagination(page, limit int, total int64) *pagination {
	p := &pagination{Page: page, Limit: limit, Total: total}
	if limit > 0 {
		p.TotalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return p
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeSuccess(ctx *xhttp.RequestCtx, status int, message string, data any) {
	writeJSON(ctx, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, envelope{Success: false, Message: msg})
}

// respondError turns a service error into a response. Domain errors carry
// their own message; anything else is logged and hidden behind a 500.
func respondError(ctx *xhttp.RequestCtx, err error) {
	var de *services.DomainError
	if errors.As(err, &de) {
		resp := envelope{Success: false, Message: de.Msg}
		if len(de.Fields) > 0 {
			resp.Errors = de.Fields
		}
		writeJSON(ctx, statusOf(de.Kind), resp)
		return
	}

	logger.Error("request failed",
		"method", string(ctx.Method()),
		"path", string(ctx.Path()),
		"error", err)
	writeError(ctx, xhttp.StatusInternalServerError, "internal server error")
}

func statusOf(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return xhttp.StatusBadRequest
	case services.KindNotFound:
		return xhttp.StatusNotFound
	case services.KindConflict:
		return xhttp.StatusConflict
	}
	return xhttp.StatusInternalServerError
}

func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	v, _ := ctx.UserValue(name).(string)
	return strconv.ParseInt(v, 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
