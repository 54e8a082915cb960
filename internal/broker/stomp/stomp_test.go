package stomp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"

	"github.com/vovakirdan/stompdebug/internal/broker"
)

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{name: "sockjs http endpoint", endpoint: "http://localhost:8080/tim-websocket", want: "ws://localhost:8080/tim-websocket/websocket"},
		{name: "trailing slash", endpoint: "http://localhost:8080/tim-websocket/", want: "ws://localhost:8080/tim-websocket/websocket"},
		{name: "https", endpoint: "https://example.com/ws", want: "wss://example.com/ws/websocket"},
		{name: "already raw", endpoint: "ws://localhost:8080/tim-websocket/websocket", want: "ws://localhost:8080/tim-websocket/websocket"},
		{name: "bad scheme", endpoint: "ftp://localhost/x", wantErr: true},
		{name: "no host", endpoint: "http:///x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WebSocketURL(tt.endpoint)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("WebSocketURL(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

// fakeServer is a minimal STOMP peer behind a websocket: it answers CONNECT,
// relays SEND on /app/x to subscribers of /topic/x and acknowledges
// UNSUBSCRIBE and DISCONNECT receipts.
type fakeServer struct {
	mu         sync.Mutex
	authHeader string
	connect    *frame.Frame
	sends      []*frame.Frame
}

func (s *fakeServer) sent() []*frame.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*frame.Frame, len(s.sends))
	copy(out, s.sends)
	return out
}

func (s *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.authHeader = r.Header.Get("Authorization")
	s.mu.Unlock()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{Subprotocols: []string{"v12.stomp"}})
	if err != nil {
		return
	}
	nc := websocket.NetConn(r.Context(), c, websocket.MessageText)
	defer nc.Close()

	rd := frame.NewReader(nc)
	wr := frame.NewWriter(nc)
	subs := make(map[string]string)
	seq := 0

	for {
		f, err := rd.Read()
		if err != nil {
			return
		}
		if f == nil {
			continue // heart-beat
		}

		switch f.Command {
		case "CONNECT", "STOMP":
			s.mu.Lock()
			s.connect = f
			s.mu.Unlock()
			if err := wr.Write(frame.New("CONNECTED", "version", "1.2", "heart-beat", "0,0")); err != nil {
				return
			}
		case "SUBSCRIBE":
			subs[f.Header.Get("destination")] = f.Header.Get("id")
		case "UNSUBSCRIBE":
			for dest, id := range subs {
				if id == f.Header.Get("id") {
					delete(subs, dest)
				}
			}
			if receipt := f.Header.Get("receipt"); receipt != "" {
				if err := wr.Write(frame.New("RECEIPT", "receipt-id", receipt)); err != nil {
					return
				}
			}
		case "SEND":
			s.mu.Lock()
			s.sends = append(s.sends, f)
			s.mu.Unlock()

			topic := "/topic/" + strings.TrimPrefix(f.Header.Get("destination"), "/app/")
			id, ok := subs[topic]
			if !ok {
				continue
			}
			seq++
			msg := frame.New("MESSAGE",
				"destination", topic,
				"subscription", id,
				"message-id", strconv.Itoa(seq),
				"content-type", "application/json",
			)
			msg.Body = f.Body
			if err := wr.Write(msg); err != nil {
				return
			}
		case "DISCONNECT":
			if receipt := f.Header.Get("receipt"); receipt != "" {
				_ = wr.Write(frame.New("RECEIPT", "receipt-id", receipt))
			}
			return
		}
	}
}

func startFakeServer(t *testing.T) (*httptest.Server, *fakeServer) {
	t.Helper()

	fs := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/tim-websocket/websocket", fs.handle)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, fs
}

func TestDialSubscribeSendRoundTrip(t *testing.T) {
	ts, fs := startFakeServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := NewDialer(ts.URL+"/tim-websocket", 0, nil)
	c, err := d.Dial(ctx, broker.Credentials{Login: "alice", Token: "tok", ConnID: "conn-1"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	sub, err := c.Subscribe(ctx, "/topic/private.message.alice")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	body := `{"from":"alice","to":"alice","content":"echo"}`
	if err := c.Send(ctx, "/app/private.message.alice", []byte(body)); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case f, ok := <-sub.C():
		if !ok {
			t.Fatalf("subscription closed early: %v", sub.Err())
		}
		if f.Destination != "/topic/private.message.alice" || string(f.Body) != body {
			t.Fatalf("unexpected frame: %s %s", f.Destination, f.Body)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for relayed message")
	}

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected subscription stream to be closed")
	}
	if sub.Err() != nil {
		t.Fatalf("expected no error after local close, got %v", sub.Err())
	}
	if err := c.Send(ctx, "/app/status", nil); err != broker.ErrClosed {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.authHeader != "Bearer tok" {
		t.Fatalf("expected bearer token on handshake, got %q", fs.authHeader)
	}
	if fs.connect == nil {
		t.Fatal("server never saw CONNECT")
	}
	if got := fs.connect.Header.Get("login"); got != "alice" {
		t.Fatalf("expected login alice, got %q", got)
	}
	if got := fs.connect.Header.Get("client-id"); got != "conn-1" {
		t.Fatalf("expected client-id header, got %q", got)
	}
	if len(fs.sends) != 1 || fs.sends[0].Header.Get("content-type") != "application/json" {
		t.Fatalf("unexpected sends: %d", len(fs.sends))
	}
}

func TestDialFailsWithoutServer(t *testing.T) {
	ts, _ := startFakeServer(t)
	url := ts.URL
	ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := NewDialer(url+"/tim-websocket", 0, nil).Dial(ctx, broker.Credentials{Login: "alice"}); err == nil {
		t.Fatal("expected dial error")
	}
}
