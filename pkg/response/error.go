package response

import (
	"encoding/json"
	"errors"
	"net/http"

	pkgErrors "github.com/vogiaan1904/ticketbottle-lineup/pkg/errors"
)

type Resp struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Errors    any    `json:"errors,omitempty"`
}

func parseHttpError(err error) (int, Resp) {
	var httpErr *pkgErrors.HTTPError
	if errors.As(err, &httpErr) {
		statusCode := httpErr.StatusCode
		if statusCode == 0 {
			statusCode = http.StatusBadRequest
		}

		return statusCode, Resp{
			ErrorCode: httpErr.Code,
			Message:   httpErr.Message,
		}
	}

	return http.StatusInternalServerError, Resp{
		ErrorCode: "500",
		Message:   "Internal server error",
	}
}

// Error writes err as the error envelope. Anything that is not an
// *errors.HTTPError is reported as a 500 without details.
func Error(w http.ResponseWriter, err error) {
	statusCode, resp := parseHttpError(err)
	write(w, statusCode, resp)
}

// ValidationError writes a 400 carrying per-field details.
func ValidationError(w http.ResponseWriter, err *pkgErrors.HTTPError, details any) {
	_, resp := parseHttpError(err)
	resp.Errors = details
	write(w, http.StatusBadRequest, resp)
}

func OK(w http.ResponseWriter, statusCode int, data any) {
	write(w, statusCode, Resp{
		ErrorCode: "0",
		Message:   "Success",
		Data:      data,
	})
}

func write(w http.ResponseWriter, statusCode int, resp Resp) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
