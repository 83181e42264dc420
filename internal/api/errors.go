package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/quiz"
	"github.com/p-n-ai/pai-course/internal/remediation"
)

var (
	errUnknownQuizSession = errors.New("unknown quiz session")
	errNoQuizAttempt      = errors.New("no finished quiz for this step")
	errBadJSON            = errors.New("request body is not valid JSON")
)

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadJSON),
		errors.Is(err, course.ErrInvalidResult),
		errors.Is(err, course.ErrLearnerRequired),
		errors.Is(err, quiz.ErrUnknownQuestion),
		errors.Is(err, remediation.ErrEmptyMessage),
		errors.Is(err, remediation.ErrLearnerRequired):
		return http.StatusBadRequest
	case errors.Is(err, course.ErrStepLocked):
		return http.StatusForbidden
	case errors.Is(err, course.ErrUnknownModule),
		errors.Is(err, course.ErrUnknownStep),
		errors.Is(err, course.ErrUnknownQuiz),
		errors.Is(err, errUnknownQuizSession),
		errors.Is(err, errNoQuizAttempt),
		errors.Is(err, remediation.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, course.ErrQuizRequired),
		errors.Is(err, course.ErrNotQuizStep),
		errors.Is(err, course.ErrQuizMismatch),
		errors.Is(err, quiz.ErrSessionClosed),
		errors.Is(err, course.ErrModuleComplete),
		errors.Is(err, remediation.ErrConversationEnded):
		return http.StatusConflict
	case errors.Is(err, remediation.ErrBudgetExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, len(verrs))
		for i, fe := range verrs {
			fields[i] = fe.Field() + ": " + fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Fields: fields})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeMessage(w, status, "internal error")
		return
	}
	writeMessage(w, status, err.Error())
}
