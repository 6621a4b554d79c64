package responder

import (
	"context"
	"io"
)

// SynthesisRequest описывает запрос на синтез речи
type SynthesisRequest struct {
	Text      string
	SpeakerID string
	Speed     float64 // 1.0 = нормальный темп; 0 = значение движка по умолчанию
}

// Chunk один фрагмент синтезированного аудио.
// TTS движок выдает float32 samples на своей нативной частоте; размер
// фрагмента произволен и не привязан к кадрам телефонного профиля.
type Chunk struct {
	Samples []float32
}

// Stream последовательность аудио фрагментов одного синтеза.
// Next возвращает io.EOF по естественному завершению потока. Пустой или
// прерванный поток - нормальный терминальный сигнал, не ошибка конвейера:
// оркестратор в обоих случаях переходит в Stopped.
type Stream interface {
	// Next возвращает следующий фрагмент. Блокируется до появления данных,
	// завершения потока или отмены контекста.
	Next(ctx context.Context) (Chunk, error)

	// SampleRate нативная частота дискретизации потока в Hz
	SampleRate() uint32

	// Close прерывает поток и освобождает ресурсы
	Close() error
}

// Engine абстракция TTS движка. Реализации взаимозаменяемы: оркестратор
// зависит только от контракта потока. Движок должен переносить
// инкрементальную итерацию: фрагменты запрашиваются по мере потребления,
// не все сразу.
type Engine interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (Stream, error)
}

// chunkStream простая реализация Stream поверх канала.
// Используется тестами и движками, производящими аудио в фоне.
type chunkStream struct {
	ch         chan Chunk
	sampleRate uint32
	cancel     context.CancelFunc
}

// NewChunkStream создает Stream, питаемый из канала. Продюсер закрывает
// канал по завершении потока; cancel может быть nil.
func NewChunkStream(ch chan Chunk, sampleRate uint32, cancel context.CancelFunc) Stream {
	return &chunkStream{ch: ch, sampleRate: sampleRate, cancel: cancel}
}

func (s *chunkStream) Next(ctx context.Context) (Chunk, error) {
	select {
	case chunk, ok := <-s.ch:
		if !ok {
			return Chunk{}, io.EOF
		}
		return chunk, nil
	case <-ctx.Done():
		return Chunk{}, ctx.Err()
	}
}

func (s *chunkStream) SampleRate() uint32 {
	return s.sampleRate
}

func (s *chunkStream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
