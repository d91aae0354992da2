package registry

import (
	"encoding/json"
	"net/http"
	"time"

	"agenthub/internal/protocol"

	"github.com/gorilla/websocket"
)

// helloWait bounds how long a fresh connection may sit silent before
// sending its hello frame
const helloWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// workers authenticate with a shared token, not an Origin check
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a worker connection and runs its
// read loop until the socket drops. The first frame must be a hello;
// anything else closes the connection.
func (r *Registry) ServeWS(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warnf("Upgrade failed from %s: %v", req.RemoteAddr, err)
		return
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(helloWait))

	hello, err := readHello(ws)
	if err != nil {
		r.logger.Warnf("Rejecting connection from %s: %v", req.RemoteAddr, err)
		ws.Close()
		return
	}

	connLogger := r.logger.WithField("worker_id", hello.WorkerID)
	conn := newWSConn(ws, connLogger)
	worker, err := r.Register(conn, hello)
	if err != nil {
		connLogger.Warnf("Registration failed: %v", err)
		conn.Close()
		return
	}

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	defer func() {
		r.Unregister(worker.ID, conn)
		conn.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				connLogger.Warnf("Read failed: %v", err)
			}
			return
		}
		// any inbound frame proves liveness
		ws.SetReadDeadline(time.Now().Add(pongWait))

		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			connLogger.Warnf("Discarding unparseable frame: %v", err)
			continue
		}
		r.HandleMessage(worker.ID, msg)
	}
}

func readHello(ws *websocket.Conn) (protocol.Hello, error) {
	_, data, err := ws.ReadMessage()
	if err != nil {
		return protocol.Hello{}, err
	}

	var msg protocol.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return protocol.Hello{}, err
	}
	if msg.Type != protocol.TypeHello {
		return protocol.Hello{}, errNotHello(msg.Type)
	}

	payload, err := msg.DecodePayload()
	if err != nil {
		return protocol.Hello{}, err
	}
	hello, ok := payload.(protocol.Hello)
	if !ok || hello.WorkerID == "" {
		return protocol.Hello{}, errNotHello(msg.Type)
	}
	return hello, nil
}

type errNotHello string

func (e errNotHello) Error() string {
	return "first frame must be a hello, got " + string(e)
}
