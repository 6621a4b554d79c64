package responder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTTSServer поднимает тестовый WebSocket TTS сервер: принимает JSON
// запрос, отдает указанные фрагменты и завершает поток сообщением "end"
func newTTSServer(t *testing.T, chunks [][]float32) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsSynthesisRequest
		if err := json.Unmarshal(data, &req); err != nil {
			t.Errorf("некорректный запрос: %v", err)
			return
		}
		if req.Text == "" {
			t.Error("пустой текст в запросе")
			return
		}

		for _, chunk := range chunks {
			payload := make([]byte, len(chunk)*4)
			for i, s := range chunk {
				binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(s))
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte("end"))
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSEngineSynthesize(t *testing.T) {
	chunks := [][]float32{
		{0.1, 0.2, 0.3},
		{-0.5, 0.5},
	}
	server := newTTSServer(t, chunks)
	defer server.Close()

	engine := NewWSEngine(DefaultWSEngineConfig(wsURL(server)))
	stream, err := engine.Synthesize(context.Background(), SynthesisRequest{
		Text:      "привет",
		SpeakerID: "anna",
		Speed:     1.1,
	})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, uint32(16000), stream.SampleRate())

	var received [][]float32
	for {
		chunk, err := stream.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		received = append(received, chunk.Samples)
	}

	require.Len(t, received, 2)
	assert.InDelta(t, 0.1, received[0][0], 1e-6)
	assert.InDelta(t, 0.5, received[1][1], 1e-6)
}

func TestWSEngineEmptyStream(t *testing.T) {
	server := newTTSServer(t, nil)
	defer server.Close()

	engine := NewWSEngine(DefaultWSEngineConfig(wsURL(server)))
	stream, err := engine.Synthesize(context.Background(), SynthesisRequest{Text: "тишина"})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Next(context.Background())
	assert.Equal(t, io.EOF, err, "пустой поток должен сразу завершаться EOF")
}

func TestWSEngineDialFailure(t *testing.T) {
	engine := NewWSEngine(DefaultWSEngineConfig("ws://127.0.0.1:1/tts"))
	_, err := engine.Synthesize(context.Background(), SynthesisRequest{Text: "нет сервера"})
	assert.Error(t, err)
}

func TestWSEngineCancellation(t *testing.T) {
	// Сервер, который держит соединение открытым, не отправляя данных
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage() // запрос
		_, _, _ = conn.ReadMessage() // блокируемся до закрытия клиентом
	}))
	defer server.Close()

	engine := NewWSEngine(DefaultWSEngineConfig(wsURL(server)))
	stream, err := engine.Synthesize(context.Background(), SynthesisRequest{Text: "висим"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = stream.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, stream.Close())
}
