package pubsub

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/core/ports"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	subscriberSize = 64
)

type subscriber struct {
	sub  *Subscription
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// Service is an event hub broadcasting published events to websocket
// subscribers. Publish never blocks: events for a subscriber that can't keep
// up are dropped.
type Service struct {
	lock        sync.RWMutex
	subscribers map[string]*subscriber
	upgrader    websocket.Upgrader
}

// NewService returns a new event hub. checkOrigin decides which origins can
// open a websocket, nil allows the same host only.
func NewService(checkOrigin func(r *http.Request) bool) *Service {
	return &Service{
		subscribers: make(map[string]*subscriber),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

func (s *Service) Publish(topic string, payload interface{}) {
	msg, err := json.Marshal(ports.Event{Topic: topic, Payload: payload})
	if err != nil {
		log.WithError(err).Warnf("pubsub: failed to serialize event %s", topic)
		return
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	for _, sub := range s.subscribers {
		if !sub.sub.IsSubscribedTo(topic) {
			continue
		}
		select {
		case sub.send <- msg:
		default:
			log.Warnf("pubsub: subscriber %s is too slow, dropping event %s", sub.sub.ID, topic)
		}
	}
}

// ListSubscriptions returns the active subscriptions sorted by id.
func (s *Service) ListSubscriptions() []Subscription {
	s.lock.RLock()
	defer s.lock.RUnlock()

	subs := make([]Subscription, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, *sub.sub)
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].ID < subs[j].ID
	})
	return subs
}

// ServeHTTP upgrades the request to a websocket and streams the events of the
// topics listed in the "topics" query param.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("pubsub: failed to upgrade connection")
		return
	}

	sub := &subscriber{
		sub:  NewSubscription(r.URL.Query().Get("topics")),
		conn: conn,
		send: make(chan []byte, subscriberSize),
	}
	s.addSubscriber(sub)
	log.Debugf("pubsub: added subscriber %s", sub.sub.ID)

	go s.writeLoop(sub)
	go s.readLoop(sub)
}

// Close disconnects all subscribers.
func (s *Service) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	for id, sub := range s.subscribers {
		sub.close()
		delete(s.subscribers, id)
	}
}

func (s *Service) addSubscriber(sub *subscriber) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.subscribers[sub.sub.ID] = sub
}

func (s *Service) removeSubscriber(sub *subscriber) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.subscribers[sub.sub.ID]; ok {
		delete(s.subscribers, sub.sub.ID)
		sub.close()
		log.Debugf("pubsub: removed subscriber %s", sub.sub.ID)
	}
}

// readLoop only handles control messages and notices when the peer goes away.
func (s *Service) readLoop(sub *subscriber) {
	defer s.removeSubscriber(sub)

	sub.conn.SetReadLimit(512)
	// nolint
	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Service) writeLoop(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			// nolint
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// nolint
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			// nolint
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
