package realtime

import (
	"fmt"
	"net/http"
	"time"

	"github.com/silktrader/deadpoets/pkg/auth"
	JSON "github.com/silktrader/deadpoets/pkg/json-utilities"
	"github.com/silktrader/deadpoets/pkg/rest"
)

// keepAlive is the interval between comment lines that stop proxies from closing idle streams.
const keepAlive = 25 * time.Second

func RegisterHandlers(engine *rest.Engine, broker Broker, authenticator *auth.Authenticator) {
	engine.Get("/realtime/profiles/:id", streamProfile(broker), authenticator.Auth)
}

// streamProfile handles the GET "/realtime/profiles/:id" route: a server-sent events stream of the caller's own
// profile row
func streamProfile(broker Broker) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var id = rest.GetParam(request, "id")
		if auth.MustGetUser(request).Id != id {
			JSON.Forbidden(writer)
			return
		}

		subscription, err := broker.Subscribe(request.Context(), "profiles", id)
		if err != nil {
			JSON.InternalServerError(writer, request, err)
			return
		}
		defer subscription.Close()

		// streams outlive the server's write timeout
		var controller = http.NewResponseController(writer)
		_ = controller.SetWriteDeadline(time.Time{})

		writer.Header().Set("Content-Type", "text/event-stream")
		writer.Header().Set("Cache-Control", "no-cache")
		writer.Header().Set("Connection", "keep-alive")
		writer.WriteHeader(http.StatusOK)
		if err = controller.Flush(); err != nil {
			rest.Logger(request).WithError(err).Warn("streaming unsupported")
			return
		}

		var logger = rest.Logger(request).WithField("profile", id)
		logger.Debug("realtime stream opened")
		defer logger.Debug("realtime stream closed")

		var ticker = time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-request.Context().Done():
				return
			case <-ticker.C:
				if _, err = fmt.Fprint(writer, ": keep-alive\n\n"); err != nil {
					return
				}
			case event, ok := <-subscription.Events:
				if !ok {
					return
				}
				if err = writeEvent(writer, event); err != nil {
					return
				}
			}
			if err = controller.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(writer http.ResponseWriter, event Event) error {
	var data = event.Row
	if len(data) == 0 {
		data = []byte(fmt.Sprintf(`{"id":%q}`, event.RowId))
	}
	_, err := fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
