package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/akinalp/ulak/pkg/logging"
)

// WebSocket bağlantı sabitleri — server tarafıyla uyumlu.
const (
	// writeWait: bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// heartbeatInterval: client'ın "hâlâ bağlıyım" sinyali aralığı.
	heartbeatInterval = 30 * time.Second

	// pongWait: server'dan herhangi bir frame beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3.
	pongWait = 90 * time.Second

	maxMessageSize = 4096
	sendBufferSize = 256
)

// Conn, backend'e açılan tek WebSocket bağlantısıdır ve Channel'ı
// implement eder. Process genelinde BİR Conn paylaşılır — açık her
// konuşma ve unread aggregator aynı bağlantıya abone olur, hiçbir
// component bağlantı yaşam döngüsünün sahibi değildir (sahibi main'dir).
//
// İki goroutine pattern'ı: ReadPump gelen event'leri okuyup dispatch
// eder, WritePump send channel'ını ve heartbeat ticker'ını boşaltır.
// gorilla/websocket aynı anda tek okuma + tek yazma destekler, bu yüzden
// okuma ve yazma ayrı goroutine'lerdedir.
type Conn struct {
	conn *websocket.Conn
	*dispatcher

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	lastSeq int64 // sadece ReadPump goroutine'i dokunur
}

var log = logging.Component("realtime")

// Dial, WebSocket bağlantısını açar ve pump goroutine'lerini başlatır.
// Token query yerine Authorization header ile taşınır.
func Dial(ctx context.Context, wsURL, token string) (*Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	wsConn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}

	c := &Conn{
		conn:       wsConn,
		dispatcher: newDispatcher(),
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
	}

	go c.readPump()
	go c.writePump()

	log.Info().Str("url", wsURL).Msg("websocket connected")
	return c, nil
}

// On, Channel interface'i — dispatcher'a delege eder.
func (c *Conn) On(op string, h Handler) (off func()) {
	return c.on(op, h)
}

// Emit, event'i yazma kuyruğuna koyar. Kuyruk doluysa veya bağlantı
// kapandıysa hata döner — caller'lar emit'i best-effort kullanır.
func (c *Conn) Emit(op string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
		raw = data
	}

	data, err := json.Marshal(Event{Op: op, Data: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("websocket closed")
	default:
		return fmt.Errorf("websocket send buffer full")
	}
}

// Join, konuşma odasına abone olur.
func (c *Conn) Join(room string) error {
	return c.Emit(OpRoomJoin, RoomPayload{Room: room})
}

// Leave, odadan ayrılır.
func (c *Conn) Leave(room string) error {
	return c.Emit(OpRoomLeave, RoomPayload{Room: room})
}

// Close, bağlantıyı kapatır. Pump goroutine'leri kendiliğinden sonlanır.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// readPump, gelen event'leri okur ve handler'lara dispatch eder.
// Bağlantı kapanana kadar döngüde kalır.
func (c *Conn) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		// Her frame deadline'ı yeniler — heartbeat ack'i dahil.
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Error().Err(err).Msg("failed to reset read deadline")
			return
		}

		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			log.Warn().Err(err).Msg("invalid event frame, dropped")
			continue
		}

		// Seq gap tespiti — eksik event'i telafi ETMEZ, sadece loglar.
		// Telafi mekanizması periyodik authoritative refetch'tir.
		if ev.Seq > 0 {
			if c.lastSeq > 0 && ev.Seq > c.lastSeq+1 {
				log.Warn().
					Int64("expected", c.lastSeq+1).
					Int64("got", ev.Seq).
					Msg("event sequence gap detected")
			}
			c.lastSeq = ev.Seq
		}

		c.dispatch(ev)
	}
}

// writePump, send kuyruğunu boşaltır ve periyodik heartbeat gönderir.
func (c *Conn) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	heartbeat, _ := json.Marshal(Event{Op: OpHeartbeat})

	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				log.Warn().Err(err).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.write(heartbeat); err != nil {
				log.Warn().Err(err).Msg("heartbeat write failed")
				return
			}

		case <-c.done:
			deadline := time.Now().Add(writeWait)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		}
	}
}

func (c *Conn) write(data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
