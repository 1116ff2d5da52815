// ABOUTME: Panic recovery middleware that answers with a JSON 500
// ABOUTME: Logs the panic value and stack with the chi request ID

package httpapi

import (
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) recoverJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			h.logger.Error("panic in handler",
				"panic", rec,
				"path", r.URL.Path,
				"request_id", middleware.GetReqID(r.Context()),
				"stack", string(debug.Stack()),
			)
			sendJSONError(w, http.StatusInternalServerError, "Unexpected error")
		}()
		next.ServeHTTP(w, r)
	})
}
