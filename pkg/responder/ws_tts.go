package responder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/gorilla/websocket"
)

// WSEngineConfig конфигурация WebSocket TTS движка
type WSEngineConfig struct {
	// URL адрес TTS сервера (ws:// или wss://)
	URL string

	// SampleRate частота дискретизации потока сервера
	SampleRate uint32

	// HandshakeTimeout таймаут установки соединения
	HandshakeTimeout time.Duration

	// ReadTimeout максимальное ожидание очередного фрагмента
	ReadTimeout time.Duration
}

// DefaultWSEngineConfig возвращает конфигурацию по умолчанию
func DefaultWSEngineConfig(url string) WSEngineConfig {
	return WSEngineConfig{
		URL:              url,
		SampleRate:       16000,
		HandshakeTimeout: 5 * time.Second,
		ReadTimeout:      10 * time.Second,
	}
}

// WSEngine - TTS движок поверх WebSocket.
//
// Протокол: после установки соединения клиент отправляет один JSON запрос
// {"text", "speaker_id", "speed"}; сервер стримит бинарные сообщения с
// float32 little-endian PCM и закрывает поток текстовым сообщением "end"
// либо закрытием соединения.
//
// Synthesize открывает отдельное соединение на каждый запрос: сессия
// звонка короче, чем выгода от переиспользования, а изоляция ошибок проще.
type WSEngine struct {
	config WSEngineConfig
	dialer *websocket.Dialer
}

var _ Engine = (*WSEngine)(nil)

// NewWSEngine создает WebSocket TTS движок
func NewWSEngine(config WSEngineConfig) *WSEngine {
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 5 * time.Second
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	return &WSEngine{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
	}
}

type wsSynthesisRequest struct {
	Text      string  `json:"text"`
	SpeakerID string  `json:"speaker_id,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
}

// Synthesize открывает соединение, отправляет запрос и возвращает поток
// фрагментов. Чтение из сокета идет в фоновой горутине, чтобы медленный
// потребитель не копил сообщения в буферах соединения.
func (e *WSEngine) Synthesize(ctx context.Context, req SynthesisRequest) (Stream, error) {
	conn, _, err := e.dialer.DialContext(ctx, e.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("responder: подключение к TTS %s: %w", e.config.URL, err)
	}

	payload := wsSynthesisRequest{
		Text:      req.Text,
		SpeakerID: req.SpeakerID,
		Speed:     req.Speed,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("responder: сериализация TTS запроса: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("responder: отправка TTS запроса: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Chunk, 8)

	go e.readLoop(streamCtx, conn, ch)

	return NewChunkStream(ch, e.config.SampleRate, func() {
		cancel()
		_ = conn.Close()
	}), nil
}

// readLoop читает сообщения сокета и переводит их в фрагменты
func (e *WSEngine) readLoop(ctx context.Context, conn *websocket.Conn, ch chan<- Chunk) {
	defer close(ch)

	slog.Debug("responder.wsReadLoop Started", "url", e.config.URL)
	defer slog.Debug("responder.wsReadLoop Stopped", "url", e.config.URL)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(e.config.ReadTimeout))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !isExpectedClose(err) {
				slog.Warn("responder.wsReadLoop чтение прервано",
					"url", e.config.URL, "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			samples := decodeFloat32LE(data)
			if len(samples) == 0 {
				continue
			}
			select {
			case ch <- Chunk{Samples: samples}:
			case <-ctx.Done():
				return
			}
		case websocket.TextMessage:
			// Текстовое сообщение "end" завершает поток
			if string(data) == "end" {
				return
			}
		}
	}
}

// decodeFloat32LE распаковывает бинарное сообщение в samples.
// Неполный хвост (не кратный 4 байтам) отбрасывается.
func decodeFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, io.EOF)
}
