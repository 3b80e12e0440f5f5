package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	applog "reportbatch/internal/log"
)

// AdminTokenHeader carries the shared admin secret.
const AdminTokenHeader = "X-Admin-Token"

// BatchRunner launches the batch jobs. Errors are opaque to HTTP callers.
type BatchRunner interface {
	RunReportJob(ctx context.Context) error
	RunDeadLetterJob(ctx context.Context) error
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RequireAdminToken rejects requests whose X-Admin-Token does not match
// expectedToken. An empty expectedToken rejects everything.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(AdminTokenHeader)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "Admin token mismatch",
					applog.FieldComponent, applog.ComponentHTTP,
					applog.FieldPath, r.URL.Path,
					applog.FieldClientIP, extractClientIP(r))
				writeJSON(w, http.StatusUnauthorized, errorResponse{
					Error:            "unauthorized",
					ErrorDescription: "admin token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// runJob runs a job synchronously. The job keeps its own context so that a
// client disconnect does not abort a run in progress.
func (s *Server) runJob(job string, run func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithoutCancel(r.Context())
		s.logger.InfoContext(ctx, "Batch run triggered",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldOperation, applog.OpTrigger,
			applog.FieldJob, job)

		if err := run(ctx); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:            "batch_run_failed",
				ErrorDescription: "batch run failed",
			})
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "completed"})
	}
}
