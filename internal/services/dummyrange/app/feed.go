package app

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Feed frame types beyond the entity event types.
const (
	FrameHello         = "hello"
	FramePong          = "pong"
	FrameStatusRetry   = "status.retrying"
	FrameStatusError   = "status.error"
	FrameToolSelected  = "tool.selected"
	FrameCacheCleared  = "cache.cleared"
	maxFeedFrameBytes  = 4 * 1024
	maxFeedDecodeError = 3

	defaultFeedWriteTimeout = 2 * time.Second
)

// Frame is one websocket message.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// feedConn is the part of a websocket connection a peer writes through.
type feedConn interface {
	io.Writer
	SetWriteDeadline(t time.Time) error
}

type feedPeer struct {
	mu           sync.Mutex
	conn         feedConn
	encoder      *json.Encoder
	writeTimeout time.Duration
}

func newFeedPeer(conn feedConn, writeTimeout time.Duration) *feedPeer {
	return &feedPeer{conn: conn, encoder: json.NewEncoder(conn), writeTimeout: writeTimeout}
}

// writeFrame fails once the peer stops reading for longer than its write
// timeout, so a stalled client cannot hold up publishers.
func (p *feedPeer) writeFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}
	return p.encoder.Encode(frame)
}

// Feed fans range events out to websocket subscribers.
type Feed struct {
	mu    sync.Mutex
	peers map[*feedPeer]struct{}

	writeTimeout time.Duration
}

// NewFeed builds an empty feed.
func NewFeed() *Feed {
	return &Feed{peers: make(map[*feedPeer]struct{}), writeTimeout: defaultFeedWriteTimeout}
}

// Publish sends a frame to every subscriber. Peers that fail to receive it
// are dropped.
func (f *Feed) Publish(frameType string, payload any) {
	frame := Frame{Type: frameType}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Printf("feed: encode %s payload: %v", frameType, err)
			return
		}
		frame.Payload = raw
	}

	f.mu.Lock()
	peers := make([]*feedPeer, 0, len(f.peers))
	for peer := range f.peers {
		peers = append(peers, peer)
	}
	f.mu.Unlock()

	for _, peer := range peers {
		if err := peer.writeFrame(frame); err != nil {
			log.Printf("feed: write %s: %v", frameType, err)
			f.leave(peer)
		}
	}
}

// Len reports the number of connected subscribers.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}

func (f *Feed) join(peer *feedPeer) {
	f.mu.Lock()
	f.peers[peer] = struct{}{}
	f.mu.Unlock()
}

func (f *Feed) leave(peer *feedPeer) {
	f.mu.Lock()
	delete(f.peers, peer)
	f.mu.Unlock()
}

// Handler serves the websocket endpoint. Clients only listen; a "ping"
// frame is answered with "pong" and anything else is ignored.
func (f *Feed) Handler(hello func() any) http.Handler {
	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		defer func() {
			_ = conn.Close()
		}()
		conn.MaxPayloadBytes = maxFeedFrameBytes

		peer := newFeedPeer(conn, f.writeTimeout)
		var greeting any
		if hello != nil {
			greeting = hello()
		}
		helloFrame := Frame{Type: FrameHello}
		if greeting != nil {
			raw, err := json.Marshal(greeting)
			if err == nil {
				helloFrame.Payload = raw
			}
		}
		if err := peer.writeFrame(helloFrame); err != nil {
			return
		}
		f.join(peer)
		defer f.leave(peer)

		decoder := json.NewDecoder(conn)
		decodeErrors := 0
		for {
			var frame Frame
			if err := decoder.Decode(&frame); err != nil {
				if errors.Is(err, io.EOF) {
					return
				}
				decodeErrors++
				if decodeErrors >= maxFeedDecodeError {
					return
				}
				continue
			}
			decodeErrors = 0
			if frame.Type == "ping" {
				_ = peer.writeFrame(Frame{Type: FramePong})
			}
		}
	})

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
}
