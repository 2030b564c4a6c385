package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/snappic/server/internal/models"
	"github.com/snappic/server/internal/observability"
)

// NotifyPath is the server's gallery change feed
const NotifyPath = "/ws"

// Notifier listens to the server's change feed and calls onChange for every
// gallery_changed message. It only nudges the poll loop; the listing is still
// fetched in full.
type Notifier struct {
	url        string
	dialer     *websocket.Dialer
	onChange   func()
	retryDelay time.Duration
	logger     *observability.Logger
}

// NewNotifier creates a Notifier for the server at baseURL (http or https)
func NewNotifier(baseURL string, onChange func()) (*Notifier, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += NotifyPath

	return &Notifier{
		url:        u.String(),
		dialer:     websocket.DefaultDialer,
		onChange:   onChange,
		retryDelay: 5 * time.Second,
		logger:     observability.WithField("component", "gallery-notifier"),
	}, nil
}

// URL returns the websocket endpoint the notifier dials
func (n *Notifier) URL() string {
	return n.url
}

// Run keeps a connection open until ctx is cancelled, redialing after
// failures.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		if err := n.listen(ctx); err != nil && ctx.Err() == nil {
			n.logger.Warnf("Change feed unavailable: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryDelay):
		}
	}
}

func (n *Notifier) listen(ctx context.Context) error {
	conn, _, err := n.dialer.DialContext(ctx, n.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	n.logger.Debugf("Subscribed to change feed at %s", n.url)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg models.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			n.logger.Debugf("Ignoring malformed feed message: %v", err)
			continue
		}
		if msg.Type == models.WSTypeGalleryChanged {
			n.onChange()
		}
	}
}
