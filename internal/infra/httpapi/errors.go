package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"subscription_billing/internal/app"
	idb "subscription_billing/internal/infra/database"

	"github.com/go-playground/validator/v10"
)

var ErrUnauthorized = errors.New("missing or invalid API key")

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// badRequest marks malformed input that never reached a service.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func badRequestf(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

var (
	validationErrors = []error{
		app.ErrInvalidSubscriptionID,
		app.ErrInvalidBillingCycle,
		app.ErrInvalidSubscriptionKind,
		app.ErrInvalidMonthlyAmount,
		app.ErrInvalidDateRange,
		app.ErrNextPaymentOffSchedule,
		app.ErrClientNameRequired,
		app.ErrReminderMessageRequired,
		app.ErrInvalidReminderChannel,
	}
	notFoundErrors = []error{
		idb.ErrClientNotFound,
		idb.ErrSubscriptionNotFound,
		idb.ErrPaymentNotFound,
		idb.ErrReminderNotFound,
	}
	conflictErrors = []error{
		app.ErrSubscriptionAlreadyStopped,
		app.ErrSubscriptionNotStopped,
	}
)

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var br *badRequest
	var ve validator.ValidationErrors
	switch {
	case errors.As(err, &br), errors.As(err, &ve), isAny(err, validationErrors):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case isAny(err, notFoundErrors):
		return http.StatusNotFound
	case isAny(err, conflictErrors):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) int {
	code := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		resp.Error = "invalid request"
		resp.Details = make(map[string]string, len(ve))
		for _, fe := range ve {
			resp.Details[fe.Field()] = describeFieldError(fe)
		}
	}
	if code == http.StatusInternalServerError {
		resp.Error = "internal server error"
	}

	respondWithJSON(w, code, resp)
	return code
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid e-mail address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

func respondWithError(w http.ResponseWriter, code int, msg string) {
	respondWithJSON(w, code, errorResponse{Error: msg})
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
