package server

import (
	"context"
	"net/http"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
)

// wsChannel adapts a coder/websocket.Conn to the jrpc2 Channel
// interface, bridging message frames to JSON-RPC payloads.
type wsChannel struct {
	conn *cws.Conn
	ctx  context.Context
}

// Send writes one JSON-RPC message as a text frame.
func (c *wsChannel) Send(data []byte) error {
	return c.conn.Write(c.ctx, cws.MessageText, data)
}

// Recv reads one JSON-RPC message.
func (c *wsChannel) Recv() ([]byte, error) {
	_, data, err := c.conn.Read(c.ctx)
	return data, err
}

// Close shuts the connection down with a normal closure status.
func (c *wsChannel) Close() error {
	return c.conn.Close(cws.StatusNormalClosure, "")
}

// handleWS upgrades the request, serves the full queue method set over
// the socket and registers the connection for push notifications until
// it closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := cws.Accept(w, r, &cws.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warning("websocket accept: %s", err.Error())
		return
	}

	ch := &wsChannel{conn: conn, ctx: r.Context()}
	srv := jrpc2.NewServer(s.rpc.methods, &jrpc2.ServerOptions{
		AllowPush: true,
	})
	key := s.notifier.Register(srv)
	defer s.notifier.Unregister(key)

	srv.Start(ch)
	if stat := srv.WaitStatus(); stat.Err != nil {
		s.log.Info("websocket session ended: %s", stat.Err.Error())
	}
}
