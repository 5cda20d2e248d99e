package viewer

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/ehwaz/models"
	"github.com/aukilabs/ehwaz/octree"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func newTestingEnv(t *testing.T) (*models.Space, *Hub, *websocket.Conn) {
	hub := &Hub{}

	conf := octree.DefaultConfig()
	conf.Visualizer = hub

	space, err := models.NewSpace(1, octree.Region{
		HalfExtent: octree.NewVector3f(8, 8, 8),
	}, conf, time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(NewServer(ctx, space, hub))

	config, err := websocket.NewConfig(
		strings.ReplaceAll(server.URL, "http://", "ws://"),
		"http://localhost",
	)
	require.NoError(t, err)

	conn, err := websocket.DialConfig(config)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		server.Close()
		space.Close()
	})
	return space, hub, conn
}

func receiveEvent(t *testing.T, conn *websocket.Conn) Event {
	conn.SetReadDeadline(time.Now().Add(time.Second))

	var msg string
	err := websocket.Message.Receive(conn, &msg)
	require.NoError(t, err)

	var e Event
	err = json.Unmarshal([]byte(msg), &e)
	require.NoError(t, err)
	return e
}

func TestServe(t *testing.T) {
	space, hub, conn := newTestingEnv(t)

	snapshot := receiveEvent(t, conn)
	require.Equal(t, OpSnapshot, snapshot.Op)
	require.NotNil(t, snapshot.Tree)
	require.EqualValues(t, 1, snapshot.Tree.Handle)
	require.Empty(t, snapshot.Tree.Children)
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, time.Millisecond)

	_, err := space.AddEntity(models.NewPoseAt(octree.NewVector3f(1, 1, 1)))
	require.NoError(t, err)
	require.Equal(t, Event{Op: OpShow, Node: 1}, receiveEvent(t, conn))

	_, err = space.AddEntity(models.NewPoseAt(octree.NewVector3f(-1, -1, -1)))
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		create := receiveEvent(t, conn)
		require.Equal(t, OpCreate, create.Op)
		require.Equal(t, uint32(i+2), create.Node)
		require.Equal(t, 1, create.Depth)
		require.Equal(t, space.Region().Octant(i), *create.Region)

		attach := receiveEvent(t, conn)
		require.Equal(t, Event{Op: OpAttach, Node: uint32(i + 2), Parent: 1}, attach)
	}

	require.Equal(t, Event{Op: OpHide, Node: 1}, receiveEvent(t, conn))
	require.Equal(t, Event{Op: OpShow, Node: 3}, receiveEvent(t, conn))
	require.Equal(t, Event{Op: OpShow, Node: 8}, receiveEvent(t, conn))
}

func TestServeDisconnect(t *testing.T) {
	_, hub, conn := newTestingEnv(t)

	receiveEvent(t, conn)
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 0
	}, time.Second, time.Millisecond)
}
