package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/domain"
	"github.com/wynnblevins/kanban/session"
	"github.com/wynnblevins/kanban/stream"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second

	replyAck   = "ack"
	replyError = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// boardSocket upgrades to a WebSocket that accepts command batches and
// pushes board updates, the same frames the SSE stream carries.
func boardSocket(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, status := ownedSession(c, d.Boards)
		if status != http.StatusOK {
			return c.String(status, http.StatusText(status))
		}
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			d.Log.Warnf("ws upgrade: %v", err)
			return nil
		}
		newSocketClient(conn, s, d).run()
		return nil
	}
}

type socketClient struct {
	conn    *websocket.Conn
	session *session.Session
	updates Updates
	metrics *Metrics
	log     *log.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newSocketClient(conn *websocket.Conn, s *session.Session, d Deps) *socketClient {
	return &socketClient{
		conn:    conn,
		session: s,
		updates: d.Updates,
		metrics: d.Metrics,
		log:     d.Log,
		send:    make(chan []byte, streamBuffer),
		done:    make(chan struct{}),
	}
}

// run blocks until the connection ends.
func (c *socketClient) run() {
	boardID := c.session.ID()
	updates := c.updates.Subscribe(boardID, streamBuffer)
	defer c.updates.Unsubscribe(boardID, updates)

	view := c.session.View()
	first, err := stream.EncodeUpdate(stream.Update{
		BoardID: boardID,
		Change:  domain.Change{Version: view.Version, Event: eventSnapshot, Snapshot: view.Snapshot},
	})
	if err != nil {
		c.log.Errorf("encode snapshot: %v", err)
		_ = c.conn.Close()
		return
	}
	c.send <- first

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(updates)
	}()
	c.readPump()
	<-writerDone
}

func (c *socketClient) stop() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *socketClient) readPump() {
	defer c.stop()

	c.conn.SetReadLimit(postCommandMaxSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debugf("ws read: %v", err)
			}
			return
		}
		reply := c.handle(msg)
		data, err := sonic.Marshal(reply)
		if err != nil {
			c.log.Errorf("encode ws reply: %v", err)
			continue
		}
		select {
		case c.send <- data:
		case <-c.done:
			return
		}
	}
}

func (c *socketClient) handle(msg []byte) wsReply {
	var cmds []domain.Command
	if err := strictJSON.Unmarshal(msg, &cmds); err != nil {
		return wsReply{Type: replyError, Error: "invalid body", Version: c.session.View().Version}
	}
	if len(cmds) == 0 {
		return wsReply{Type: replyError, Error: "empty command batch", Version: c.session.View().Version}
	}
	if c.metrics != nil {
		c.metrics.ObserveBatch(cmds)
	}
	c.session.Touch()
	view, err := c.session.Apply(cmds)
	if err == nil {
		return wsReply{Type: replyAck, Version: view.Version}
	}
	reply := wsReply{Type: replyError, Error: err.Error(), Version: view.Version}
	var cmdErr *session.CommandError
	if errors.As(err, &cmdErr) {
		idx := cmdErr.Index
		reply.FailedCommand = &idx
	}
	return reply
}

func (c *socketClient) writePump(updates <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.stop()
				return
			}
		case msg := <-updates:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.stop()
				return
			}
			if isBoardClosed(msg) {
				_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "board closed"))
				c.stop()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		case <-c.done:
			_ = c.write(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *socketClient) write(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}
