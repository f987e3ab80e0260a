package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// Response is the result of a Handler. It's written to the connection by the router.
type Response interface {
	Write(http.ResponseWriter)
}

type responseFunc func(http.ResponseWriter)

func (f responseFunc) Write(w http.ResponseWriter) { f(w) }

// JSON responds with the given value serialized as JSON.
func JSON(val any) Response { return JSONStatus(http.StatusOK, val) }

// JSONStatus is JSON with a non-200 status code.
func JSONStatus(status int, val any) Response {
	return responseFunc(func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(val); err != nil {
			slog.Error("encoding json response", "error", err)
		}
	})
}

// Empty responds with 204 and no body.
func Empty() Response {
	return responseFunc(func(w http.ResponseWriter) { w.WriteHeader(http.StatusNoContent) })
}

// PNG responds with an image.
func PNG(img []byte) Response {
	return responseFunc(func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(img)
	})
}

// Redirect responds with a redirect to the given location.
func Redirect(location string, status int) Response {
	return responseFunc(func(w http.ResponseWriter) {
		w.Header().Set("Location", location)
		w.WriteHeader(status)
	})
}

// WithHeader sets a response header before the wrapped response is written.
func WithHeader(key, value string, resp Response) Response {
	return responseFunc(func(w http.ResponseWriter) {
		w.Header().Set(key, value)
		resp.Write(w)
	})
}

// WithCookie sets a cookie before the wrapped response is written.
func WithCookie(cookie *http.Cookie, resp Response) Response {
	return responseFunc(func(w http.ResponseWriter) {
		http.SetCookie(w, cookie)
		resp.Write(w)
	})
}

// Error renders the given error: APIErrors keep their status and code,
// anything else is logged and reported as a generic 500.
func Error(err error) Response {
	if apiErr := AsAPIError(err); apiErr != nil {
		return JSONStatus(apiErr.Status, &errorBody{Error: apiErr})
	}
	return Errorf("%s", err)
}

// Errorf logs the given message+args while returning a generic 500 error.
func Errorf(format string, args ...any) Response {
	slog.Error(fmt.Sprintf(format, args...))
	body := &errorBody{Error: &APIError{Status: 500, Code: CodeInternal, Message: "internal error - please try again later"}}
	return JSONStatus(http.StatusInternalServerError, body)
}

// ClientErrorf reports a fault in the request itself.
func ClientErrorf(status int, format string, args ...any) Response {
	return Error(&APIError{Status: status, Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)})
}

// NotFoundf is a 404 with a message.
func NotFoundf(format string, args ...any) Response {
	return Error(&APIError{Status: 404, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)})
}

// Unauthorized is a 401. The error is logged but not exposed to the client.
func Unauthorized(err error) Response {
	if err != nil {
		slog.Info("unauthorized request", "error", err)
	}
	return Error(&APIError{Status: 401, Code: CodeUnauthorized, Message: "authentication required"})
}

type errorBody struct {
	Error *APIError `json:"error"`
}
