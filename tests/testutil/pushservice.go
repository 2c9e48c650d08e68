package testutil

import (
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/ufcrashout/iTrax/internal/pushsvc"
)

// FakePushService is an in-process autopush-style service. It accepts one
// user-agent websocket at a time and relays POSTs on push endpoints to it.
type FakePushService struct {
	Server *httptest.Server

	upgrader websocket.Upgrader

	mu         sync.Mutex
	writeMu    sync.Mutex
	conn       *websocket.Conn
	uaid       string
	channels   map[string]string
	acks       []pushsvc.Update
	registered []string
	connected  chan struct{}
	acked      chan pushsvc.Update
}

// NewFakePushService starts the service and closes it with the test.
func NewFakePushService(t *testing.T) *FakePushService {
	t.Helper()

	f := &FakePushService{
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		channels:  make(map[string]string),
		connected: make(chan struct{}, 1),
		acked:     make(chan pushsvc.Update, 16),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", f.handleSocket)
	r.HandleFunc("/wpush/v2/{channelID}", f.handlePush).Methods(http.MethodPost)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)

	return f
}

// URL returns the websocket URL clients dial.
func (f *FakePushService) URL() string {
	return "ws" + strings.TrimPrefix(f.Server.URL, "http") + "/ws"
}

// Registered lists channel ids in registration order.
func (f *FakePushService) Registered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.registered...)
}

// Channels reports how many channels are currently registered.
func (f *FakePushService) Channels() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.channels)
}

// Acked delivers every ack update as it arrives.
func (f *FakePushService) Acked() <-chan pushsvc.Update {
	return f.acked
}

// Connected fires once per accepted handshake.
func (f *FakePushService) Connected() <-chan struct{} {
	return f.connected
}

// Deliver sends a notification frame for channelID carrying body verbatim.
func (f *FakePushService) Deliver(channelID string, body []byte) error {
	msg := pushsvc.Message{
		MessageType: pushsvc.MessageNotification,
		ChannelID:   channelID,
		Version:     uuid.NewString(),
	}
	if len(body) > 0 {
		msg.Data = base64.RawURLEncoding.EncodeToString(body)
		msg.Headers = map[string]string{"encoding": "aes128gcm"}
	}
	return f.writeJSON(msg)
}

// Disconnect drops the current user-agent connection.
func (f *FakePushService) Disconnect() {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (f *FakePushService) writeJSON(msg pushsvc.Message) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return websocket.ErrCloseSent
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (f *FakePushService) handlePush(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channelID"]

	f.mu.Lock()
	_, ok := f.channels[channelID]
	f.mu.Unlock()
	if !ok {
		http.Error(w, "unknown channel", http.StatusGone)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := f.Deliver(channelID, body); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (f *FakePushService) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var msg pushsvc.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.MessageType {
		case pushsvc.MessageHello:
			f.mu.Lock()
			if msg.UAID == "" || msg.UAID != f.uaid {
				f.uaid = uuid.NewString()
				f.channels = make(map[string]string)
			}
			f.conn = conn
			uaid := f.uaid
			f.mu.Unlock()

			f.reply(pushsvc.Message{MessageType: pushsvc.MessageHello, UAID: uaid, Status: http.StatusOK})
			select {
			case f.connected <- struct{}{}:
			default:
			}

		case pushsvc.MessageRegister:
			f.mu.Lock()
			f.channels[msg.ChannelID] = msg.Key
			f.registered = append(f.registered, msg.ChannelID)
			f.mu.Unlock()

			f.reply(pushsvc.Message{
				MessageType:  pushsvc.MessageRegister,
				ChannelID:    msg.ChannelID,
				Status:       http.StatusOK,
				PushEndpoint: f.Server.URL + "/wpush/v2/" + msg.ChannelID,
			})

		case pushsvc.MessageUnregister:
			f.mu.Lock()
			delete(f.channels, msg.ChannelID)
			f.mu.Unlock()

			f.reply(pushsvc.Message{
				MessageType: pushsvc.MessageUnregister,
				ChannelID:   msg.ChannelID,
				Status:      http.StatusOK,
			})

		case pushsvc.MessageAck:
			f.mu.Lock()
			f.acks = append(f.acks, msg.Updates...)
			f.mu.Unlock()
			for _, u := range msg.Updates {
				select {
				case f.acked <- u:
				default:
				}
			}
		}
	}
}

func (f *FakePushService) reply(msg pushsvc.Message) {
	_ = f.writeJSON(msg)
}
