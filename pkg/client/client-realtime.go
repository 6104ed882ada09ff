package client

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/silktrader/deadpoets/pkg/realtime"
)

// Feed streams the events of one row until closed or until the platform ends the stream.
type Feed struct {
	Events <-chan realtime.Event
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close ends the stream and waits for its reader to stop.
func (f *Feed) Close() {
	f.once.Do(func() {
		f.cancel()
		<-f.done
	})
}

// SubscribeProfile follows the caller's own profile row through the platform's event stream.
func (c *Client) SubscribeProfile(ctx context.Context, id string) (*Feed, error) {
	ctx, cancel := context.WithCancel(ctx)
	request, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint("/realtime/profiles/"+url.PathEscape(id), nil), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	request.Header.Set("Accept", "text/event-stream")
	if token := c.Token(); token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.stream.Do(request)
	if err != nil {
		cancel()
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		cancel()
		return nil, readError(response)
	}

	var events = make(chan realtime.Event, 16)
	var feed = &Feed{Events: events, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(feed.done)
		defer close(events)
		defer response.Body.Close()
		c.readEvents(ctx, response, "profiles", id, events)
	}()
	return feed, nil
}

// readEvents parses a server-sent events stream: "event:" and "data:" lines, terminated by a blank line.
func (c *Client) readEvents(ctx context.Context, response *http.Response, table, rowId string, events chan<- realtime.Event) {
	var scanner = bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var kind string
	var data strings.Builder
	for scanner.Scan() {
		var line = scanner.Text()
		switch {
		case line == "":
			if kind != "" || data.Len() > 0 {
				var event = realtime.Event{Table: table, Type: kind, RowId: rowId}
				if data.Len() > 0 {
					event.Row = []byte(data.String())
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
			kind = ""
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment, used as keep-alive
		case strings.HasPrefix(line, "event:"):
			kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.WithError(err).WithField("row", rowId).Warn("realtime stream interrupted")
	}
}
