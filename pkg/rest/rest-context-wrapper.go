package rest

import (
	"context"
	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
	"net/http"
)

type contextKey int

const requestContextKey contextKey = iota

// wrap adds a RequestContext instance related to the request.
func (e *Engine) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqUUID, err := uuid.NewV4()
		if err != nil {
			e.baseLogger.WithError(err).Error("can't generate a request UUID")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var ctx = RequestContext{
			ReqUUID: reqUUID,
		}

		// Create a request-specific logger
		ctx.Logger = e.baseLogger.WithFields(logrus.Fields{
			"reqid":     ctx.ReqUUID.String(),
			"remote-ip": r.RemoteAddr,
		})
		ctx.Logger.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("request")

		// Call the next handler in chain (usually, the handler function for the path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestContextKey, ctx)))
	})
}

// RequestContext is the context of the request, for request-dependent parameters
type RequestContext struct {
	// ReqUUID is the request unique ID
	ReqUUID uuid.UUID

	// Logger is a custom field logger for the request
	Logger logrus.FieldLogger
}

// Logger returns the request-specific logger, falling back on the standard logrus logger for requests that didn't
// pass through the engine, as in handler tests.
func Logger(request *http.Request) logrus.FieldLogger {
	if ctx, ok := request.Context().Value(requestContextKey).(RequestContext); ok {
		return ctx.Logger
	}
	return logrus.StandardLogger()
}

// MustGetNewUUID returns a random UUID string and panics when the system's entropy source fails.
func MustGetNewUUID() string {
	return uuid.Must(uuid.NewV4()).String()
}
