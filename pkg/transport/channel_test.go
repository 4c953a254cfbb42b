package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestChannelSplitsAudioAndControl(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		ctx := r.Context()
		conn.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3, 4})
		conn.Write(ctx, websocket.MessageText, []byte(`{"type":"latency_update","latency_ms":450}`))
		conn.Write(ctx, websocket.MessageBinary, []byte{5, 6})
	}))
	defer server.Close()

	var mu sync.Mutex
	var audio []byte
	var control [][]byte

	ch, err := Dial(context.Background(), Config{URL: wsURL(server)}, Callbacks{
		OnAudio: func(chunk []byte) {
			mu.Lock()
			audio = append(audio, chunk...)
			mu.Unlock()
		},
		OnControl: func(raw []byte) {
			mu.Lock()
			control = append(control, append([]byte(nil), raw...))
			mu.Unlock()
		},
	}, nil)
	require.NoError(t, err)
	defer ch.Close()

	err = ch.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, audio)
	require.Len(t, control, 1)
	assert.JSONEq(t, `{"type":"latency_update","latency_ms":450}`, string(control[0]))
}

func TestChannelTokenRidesAsQuery(t *testing.T) {
	gotToken := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken <- r.URL.Query().Get("token")
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	ch, err := Dial(context.Background(), Config{URL: wsURL(server), Token: "secret-123"}, Callbacks{}, nil)
	require.NoError(t, err)
	defer ch.Close()

	assert.Equal(t, "secret-123", <-gotToken)
}

func TestChannelQualityFromPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		// Keep the connection open so pings can round-trip; the
		// client's reader answers them.
		<-r.Context().Done()
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	labels := make(chan string, 8)
	ch, err := Dial(context.Background(), Config{
		URL:          wsURL(server),
		PingInterval: 20 * time.Millisecond,
	}, Callbacks{
		OnQuality: func(label string) { labels <- label },
	}, nil)
	require.NoError(t, err)
	defer ch.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx)

	select {
	case label := <-labels:
		assert.Contains(t, []string{QualityGood, QualityFair, QualityPoor}, label)
	case <-time.After(2 * time.Second):
		t.Fatal("no quality update received")
	}
	assert.NotEqual(t, QualityUnknown, ch.Quality())
}

func TestChannelCloseUnblocksRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		<-r.Context().Done()
		conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer server.Close()

	ch, err := Dial(context.Background(), Config{URL: wsURL(server)}, Callbacks{}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- ch.Run(context.Background()) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, ch.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestDialRejectsBadURL(t *testing.T) {
	_, err := Dial(context.Background(), Config{URL: "://not-a-url"}, Callbacks{}, nil)
	require.Error(t, err)
}
