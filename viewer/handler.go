package viewer

import (
	"context"
	"io"
	"net"
	"net/http"

	"github.com/aukilabs/ehwaz/models"
	"github.com/aukilabs/ehwaz/octree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// NewServer returns a websocket server streaming the octree of a space.
func NewServer(ctx context.Context, space *models.Space, hub *Hub) websocket.Server {
	return websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			logs.WithTag("space_id", space.ID).
				WithTag("remote_addr", conn.Request().RemoteAddr).
				Info("viewer connected")

			err := Serve(ctx, conn, space, hub)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logs.WithTag("space_id", space.ID).Warn(err)
			}

			logs.WithTag("space_id", space.ID).
				WithTag("remote_addr", conn.Request().RemoteAddr).
				Info("viewer disconnected")
		},
	}
}

// Serve sends a snapshot of the space octree followed by its changes until
// the context is canceled or the connection is closed.
func Serve(ctx context.Context, conn *websocket.Conn, space *models.Space, hub *Hub) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var snapshot *octree.NodeSnapshot
	var events <-chan Event
	var unsubscribe func()

	space.View(func(t *octree.Tree) {
		snapshot = t.Snapshot()
		events, unsubscribe = hub.Subscribe()
	})
	defer unsubscribe()

	go func() {
		defer cancel()

		var msg []byte
		for {
			if err := websocket.Message.Receive(conn, &msg); err != nil {
				return
			}
		}
	}()

	if err := send(conn, Event{Op: OpSnapshot, Tree: snapshot}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case e, ok := <-events:
			if !ok {
				return errors.New("viewer is too slow to consume events").
					WithTag("space_id", space.ID)
			}

			if err := send(conn, e); err != nil {
				return err
			}
		}
	}
}

func send(conn *websocket.Conn, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.New("encoding viewer event failed").
			WithTag("op", e.Op).
			Wrap(err)
	}

	if err := websocket.Message.Send(conn, string(b)); err != nil {
		return errors.New("sending viewer event failed").
			WithTag("op", e.Op).
			Wrap(err)
	}
	return nil
}
