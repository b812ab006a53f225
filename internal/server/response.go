package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/nightsched/pkg/model"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.NewString()[:8]
}

// httpStatus maps an API error code to its HTTP status.
func httpStatus(code model.ErrorCode) int {
	switch code {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) ok(w http.ResponseWriter, r *http.Request, data any) {
	s.write(w, r, http.StatusOK, model.Response{Status: statusOK, Data: data})
}

// page writes one page of a listing. items must be a non-nil slice so an
// empty page encodes as [].
func (s *Server) page(w http.ResponseWriter, r *http.Request, items any, opts model.ListOptions, total int) {
	s.write(w, r, http.StatusOK, model.Response{
		Status:     statusOK,
		Data:       items,
		Pagination: opts.Page(total),
	})
}

// fail writes err as an error envelope. Anything that is not an
// *model.APIError is logged and reported as INTERNAL_ERROR without its text.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		apiErr = &model.APIError{Code: model.ErrInternal, Message: "internal error"}
	}
	s.write(w, r, httpStatus(apiErr.Code), model.Response{Status: statusError, Error: apiErr})
}

// write stamps the envelope and encodes it before touching the response, so
// an unencodable payload still yields a well-formed 500.
func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, resp model.Response) {
	resp.RequestID = RequestIDFromContext(r.Context())
	resp.Timestamp = time.Now().UTC()

	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("encode response", "path", r.URL.Path, "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(model.Response{
			Status:    statusError,
			RequestID: resp.RequestID,
			Timestamp: resp.Timestamp,
			Error:     &model.APIError{Code: model.ErrInternal, Message: "internal error"},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
