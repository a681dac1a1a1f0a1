package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is an error that knows its HTTP status.
type APIError interface {
	Error() string
	StatusCode() int
}

type BadRequestError struct {
	Msg string
}

func (e BadRequestError) Error() string { return e.Msg }

func (BadRequestError) StatusCode() int { return http.StatusBadRequest }

type UnauthorizedError struct {
	Msg string
}

func (e UnauthorizedError) Error() string { return e.Msg }

func (UnauthorizedError) StatusCode() int { return http.StatusUnauthorized }

type ForbiddenError struct {
	Msg string
}

func (e ForbiddenError) Error() string { return e.Msg }

func (ForbiddenError) StatusCode() int { return http.StatusForbidden }

type NotFoundError struct {
	Msg string
}

func (e NotFoundError) Error() string { return e.Msg }

func (NotFoundError) StatusCode() int { return http.StatusNotFound }

type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

func (ConflictError) StatusCode() int { return http.StatusConflict }

type TooManyRequestsError struct {
	Msg string
}

func (e TooManyRequestsError) Error() string { return e.Msg }

func (TooManyRequestsError) StatusCode() int { return http.StatusTooManyRequests }

type InternalServerError struct {
	Msg string
}

func (e InternalServerError) Error() string { return e.Msg }

func (InternalServerError) StatusCode() int { return http.StatusInternalServerError }

// APIResponse is the body of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   interface{} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, APIResponse{Success: true, Data: data})
}

// writeError maps err to a status. Errors that are not an APIError are
// reported as a generic 500 so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "Internal Server Error"
	var apiErr APIError
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode()
		msg = apiErr.Error()
	}
	writeJSON(w, status, APIResponse{Success: false, Error: msg})
}

func decodeJSON(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return BadRequestError{Msg: fmt.Sprintf("invalid request body: %v", err)}
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, APIResponse{Success: false, Error: http.StatusText(http.StatusMethodNotAllowed)})
}
