package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/arena-escrow/pkg/contracts/events"
)

// DefaultWriteWait limita quanto um cliente lento segura um Broadcast
const DefaultWriteWait = 5 * time.Second

// client serializa as escritas; gorilla aceita um único writer por conexão
type client struct {
	conn *websocket.Conn
	wait time.Duration
	mu   sync.Mutex
}

func (c *client) write(v []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.wait))
	return c.conn.WriteMessage(websocket.TextMessage, v)
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.wait))
	return c.conn.WriteJSON(v)
}

// Hub gerencia conexões WebSocket e assinaturas por tópico de rodada
// subs: mapeia topic para o conjunto de clientes inscritos
// latest: maior versão de snapshot já enviada por tópico
type Hub struct {
	upgrader  websocket.Upgrader
	log       *zap.Logger
	writeWait time.Duration
	mu        sync.RWMutex
	subs      map[string]map[*client]struct{}
	latest    map[string]uint64
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: allowOrigin},
		log:       log,
		writeWait: DefaultWriteWait,
		subs:      make(map[string]map[*client]struct{}),
		latest:    make(map[string]uint64),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Cada cliente pode se inscrever em múltiplos tópicos
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	c := &client{conn: conn, wait: h.writeWait}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.Topic == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.Topic]; !ok {
				h.subs[msg.Topic] = make(map[*client]struct{})
			}
			h.subs[msg.Topic][c] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe":
			h.remove(msg.Topic, c)
		case "ping":
			_ = c.writeJSON(map[string]string{"type": "pong"})
		}
	}
	// Remove o cliente de todas as assinaturas ao desconectar
	h.drop(c)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, topic)
		}
	}
}

func (h *Hub) remove(topic string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[topic]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, topic)
		}
	}
}

// Subscribers devolve quantos clientes acompanham o tópico
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Broadcast envia o snapshot para todos os clientes inscritos no tópico da rodada.
// Snapshots com versão menor que a última enviada no tópico são descartados.
// Um cliente que não aceita a escrita dentro de writeWait é desconectado.
func (h *Hub) Broadcast(update events.RoundUpdate) {
	topic := update.Round.Topic
	h.mu.Lock()
	if v := update.Round.Version; v > 0 {
		if v < h.latest[topic] {
			h.mu.Unlock()
			h.log.Debug("ws stale update dropped", zap.String("topic", topic), zap.Uint64("version", v))
			return
		}
		h.latest[topic] = v
	}
	set := h.subs[topic]
	conns := make([]*client, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	if len(conns) == 0 {
		return
	}

	b, err := json.Marshal(update)
	if err != nil {
		h.log.Error("ws marshal update", zap.Error(err))
		return
	}
	for _, c := range conns {
		if err := c.write(b); err != nil {
			h.log.Debug("ws write failed, dropping client", zap.String("topic", topic), zap.Error(err))
			h.drop(c)
			_ = c.conn.Close()
		}
	}
}
