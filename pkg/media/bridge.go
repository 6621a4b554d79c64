package media

import (
	"log/slog"
	"sync"

	"github.com/arzzra/auto_responder/pkg/audio"
)

// BridgeConfig содержит параметры конфигурации для создания Bridge
type BridgeConfig struct {
	SessionID string

	// QueueCapacity размер исходящей очереди в кадрах (по умолчанию 50 = 1s при 20ms)
	QueueCapacity int

	// OnFrameReceived синхронно вызывается на каждый входящий PCM16 кадр
	OnFrameReceived FrameHandler

	// Tap'ы для записи/мониторинга: получают точные байты транспортной границы
	OnWireInbound  WireTap
	OnWireOutbound WireTap
}

// DefaultBridgeConfig возвращает конфигурацию по умолчанию
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		QueueCapacity: 50,
	}
}

// Bridge адаптирует сырой байтовый поток транспорта к миру кадров
// фиксированного размера, используемому остальным конвейером. Один и тот же
// bridge обслуживает RTP и WebRTC leg'и: транспортная специфика остается
// в адаптерах (RTPLeg, WebRTCLeg).
//
// Каноническое внутреннее представление - PCM16 samples. Компандированные
// байты существуют только на транспортной границе: входящий G.711 декодируется
// адаптером до bridge, исходящие кадры уже закодированы продюсером.
//
// Два независимых тракта:
//   - Входящий: ProcessIncoming нормализует (ресемплинг, нарезка на кадры,
//     zero-padding) и синхронно отдает каждый кадр в OnFrameReceived
//   - Исходящий: InjectOutgoing кладет кадры в очередь, NextOutgoingFrame
//     выдает по одному кадру на транспортный тик; при пустой очереди
//     опрашивает продюсера, при отсутствии данных возвращает тишину
//
// Исходящий тракт никогда не возвращает кадр неправильного размера.
//
// Жизненный цикл: Initialize(profile) -> Start() -> Stop(). Вызов методов
// обработки до Start() - no-op; Start() до Initialize() - ошибка
// программирования и завершается синхронно.
type Bridge struct {
	config  BridgeConfig
	profile audio.MediaProfile
	codec   audio.Codec

	mutex       sync.Mutex
	initialized bool
	started     bool

	// Исходящая очередь wire-кадров
	outQueue  [][]byte
	producer  FrameProducer
	pool      *framePool
	pending   []int16 // неполный входящий кадр между вызовами ProcessIncoming
	resampler *audio.Resampler

	// Статистика
	stats BridgeStatistics
}

// BridgeStatistics статистика работы bridge
type BridgeStatistics struct {
	FramesIn       uint64 // кадров отдано во входящий callback
	FramesOut      uint64 // кадров выдано транспорту
	SilenceFrames  uint64 // кадров тишины, подставленных при отсутствии данных
	PaddedFrames   uint64 // входящих кадров, дополненных нулями
	BytesIn        uint64
	BytesOut       uint64
	QueueOverflows uint64
}

// NewBridge создает bridge с указанной конфигурацией
func NewBridge(config BridgeConfig) *Bridge {
	if config.QueueCapacity <= 0 {
		config.QueueCapacity = 50
	}
	return &Bridge{
		config:    config,
		resampler: audio.NewResampler(),
	}
}

// Initialize привязывает bridge к профилю call leg. Вызывается один раз
// до Start(); профиль неизменяем до конца жизни bridge.
func (b *Bridge) Initialize(profile audio.MediaProfile) error {
	if err := profile.Validate(); err != nil {
		return WrapMediaError(ErrorCodeBridgeProfileInvalid, b.config.SessionID,
			"некорректный медиа профиль", err)
	}

	codec, err := audio.CodecFor(profile.PayloadType)
	if err != nil {
		return WrapMediaError(ErrorCodeBridgeProfileInvalid, b.config.SessionID,
			"кодек для профиля недоступен", err)
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.profile = profile
	b.codec = codec
	b.pool = newFramePool(profile.WireFrameBytes())
	b.initialized = true
	return nil
}

// Start запускает обработку. До Initialize() возвращает ошибку.
func (b *Bridge) Start() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.initialized {
		return NewMediaError(ErrorCodeBridgeNotInitialized, b.config.SessionID,
			"bridge не инициализирован: вызовите Initialize() до Start()")
	}
	if b.started {
		return NewMediaError(ErrorCodeBridgeAlreadyStarted, b.config.SessionID,
			"bridge уже запущен")
	}

	b.started = true
	slog.Debug("media.Bridge Started", "session_id", b.config.SessionID, "profile", b.profile.String())
	return nil
}

// Stop останавливает обработку и очищает исходящую очередь, чтобы устаревшее
// аудио не пережило teardown звонка. Последующие NextOutgoingFrame возвращают
// тишину, а не ошибку.
func (b *Bridge) Stop() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.started {
		return
	}
	b.started = false

	for _, frame := range b.outQueue {
		b.pool.Put(frame)
	}
	b.outQueue = nil
	b.pending = nil
	b.producer = nil
	slog.Debug("media.Bridge Stopped", "session_id", b.config.SessionID,
		"frames_in", b.stats.FramesIn, "frames_out", b.stats.FramesOut)
}

// SetFrameProducer регистрирует pull-продюсера исходящих кадров.
// Продюсер опрашивается из NextOutgoingFrame при пустой очереди и должен
// возвращать wire-кадр точного размера либо nil.
func (b *Bridge) SetFrameProducer(producer FrameProducer) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.producer = producer
}

// SetFrameHandler регистрирует обработчик входящих PCM16 кадров.
// Заменяет OnFrameReceived из конфигурации; позволяет подключить
// потребителя, созданного после bridge.
func (b *Bridge) SetFrameHandler(handler FrameHandler) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.config.OnFrameReceived = handler
}

// ProcessIncoming нормализует входящие байты транспорта (linear PCM16 LE)
// в кадры профиля. Если sampleRate отличается от профиля, выполняется
// ресемплинг. Каждый полный кадр синхронно передается в OnFrameReceived;
// неполный хвост сохраняется до следующего вызова. Кадры между вызовами
// не буферизуются на этом уровне.
//
// До Start() вызов является no-op.
func (b *Bridge) ProcessIncoming(data []byte, sampleRate uint32) {
	b.mutex.Lock()
	if !b.started {
		b.mutex.Unlock()
		return
	}
	profile := b.profile
	handler := b.config.OnFrameReceived
	tap := b.config.OnWireInbound
	b.stats.BytesIn += uint64(len(data))
	b.mutex.Unlock()

	if tap != nil {
		tap(data)
	}

	pcm := audio.BytesToPCM16(data)
	if sampleRate != profile.SampleRate {
		pcm = b.resampler.ResampleInt16(pcm, sampleRate, profile.SampleRate)
	}

	samplesPerFrame := profile.SamplesPerFrame()

	b.mutex.Lock()
	b.pending = append(b.pending, pcm...)
	var frames [][]int16
	for len(b.pending) >= samplesPerFrame {
		frame := make([]int16, samplesPerFrame)
		copy(frame, b.pending[:samplesPerFrame])
		b.pending = b.pending[samplesPerFrame:]
		frames = append(frames, frame)
	}
	b.stats.FramesIn += uint64(len(frames))
	b.mutex.Unlock()

	if handler != nil {
		for _, frame := range frames {
			handler(frame)
		}
	}
}

// FlushIncoming выталкивает неполный входящий кадр, дополняя его нулями до
// размера кадра. Вызывается транспортом в конце потока.
func (b *Bridge) FlushIncoming() {
	b.mutex.Lock()
	if !b.started || len(b.pending) == 0 {
		b.mutex.Unlock()
		return
	}
	frame := make([]int16, b.profile.SamplesPerFrame())
	copy(frame, b.pending)
	b.pending = b.pending[:0]
	b.stats.FramesIn++
	b.stats.PaddedFrames++
	handler := b.config.OnFrameReceived
	b.mutex.Unlock()

	if handler != nil {
		handler(frame)
	}
}

// InjectOutgoing нарезает переданное wire-аудио на кадры и ставит их в
// исходящую очередь. Последний неполный кадр дополняется байтами тишины
// кодека. При переполнении очереди старейшие кадры отбрасываются:
// ограниченная задержка важнее полноты. До Start() и после Stop()
// возвращает ошибку BridgeStopped: продюсер должен знать, что аудио
// не дойдет до линии.
func (b *Bridge) InjectOutgoing(data []byte) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.started {
		return NewMediaError(ErrorCodeBridgeStopped, b.config.SessionID,
			"bridge остановлен, исходящее аудио отброшено")
	}

	frameBytes := b.profile.WireFrameBytes()
	silence := byte(audio.SilenceByteMuLaw)
	if b.profile.PayloadType == audio.PayloadTypePCMA {
		silence = audio.SilenceByteALaw
	}

	for off := 0; off < len(data); off += frameBytes {
		frame := b.pool.Get()
		n := copy(frame, data[off:])
		for i := n; i < frameBytes; i++ {
			frame[i] = silence
		}
		if len(b.outQueue) >= b.config.QueueCapacity {
			dropped := b.outQueue[0]
			b.outQueue = b.outQueue[1:]
			b.pool.Put(dropped)
			b.stats.QueueOverflows++
			slog.Warn("media.Bridge исходящая очередь переполнена, кадр отброшен",
				"session_id", b.config.SessionID, "capacity", b.config.QueueCapacity)
		}
		b.outQueue = append(b.outQueue, frame)
	}
	return nil
}

// NextOutgoingFrame выдает один wire-кадр на транспортный тик.
// Порядок источников: очередь -> pull-продюсер -> кадр тишины.
// Всегда возвращает кадр размера WireFrameBytes(), независимо от
// доступности данных, в том числе до Start() и после Stop().
func (b *Bridge) NextOutgoingFrame() []byte {
	b.mutex.Lock()

	if !b.initialized {
		b.mutex.Unlock()
		return nil
	}

	frameBytes := b.profile.WireFrameBytes()

	if !b.started {
		frame := b.codec.SilenceFrame(b.profile.SamplesPerFrame())
		b.mutex.Unlock()
		return frame
	}

	if len(b.outQueue) > 0 {
		frame := b.outQueue[0]
		b.outQueue = b.outQueue[1:]
		b.stats.FramesOut++
		b.stats.BytesOut += uint64(len(frame))
		tap := b.config.OnWireOutbound
		b.mutex.Unlock()
		if tap != nil {
			tap(frame)
		}
		return frame
	}

	producer := b.producer
	b.mutex.Unlock()

	// Pull fallback: опрашиваем продюсера вне критической секции,
	// продюсер не должен блокироваться
	if producer != nil {
		if frame := producer(); frame != nil {
			b.mutex.Lock()
			if len(frame) != frameBytes {
				// Кадр неправильного размера: дополняем/обрезаем, логируем,
				// обработка продолжается
				fixed := b.pool.Get()
				copy(fixed, frame)
				if len(frame) < frameBytes {
					sil := b.codec.SilenceFrame(1)[0]
					for i := len(frame); i < frameBytes; i++ {
						fixed[i] = sil
					}
				}
				sizeErr := NewBridgeError(ErrorCodeFrameSizeInvalid, b.config.SessionID,
					"кадр продюсера неправильного размера", frameBytes, len(frame))
				frame = fixed
				slog.Warn("media.Bridge кадр продюсера неправильного размера",
					"session_id", b.config.SessionID, "error", sizeErr)
			}
			b.stats.FramesOut++
			b.stats.BytesOut += uint64(len(frame))
			tap := b.config.OnWireOutbound
			b.mutex.Unlock()
			if tap != nil {
				tap(frame)
			}
			return frame
		}
	}

	b.mutex.Lock()
	b.stats.FramesOut++
	b.stats.SilenceFrames++
	tap := b.config.OnWireOutbound
	b.mutex.Unlock()

	frame := b.codec.SilenceFrame(b.profile.SamplesPerFrame())
	if tap != nil {
		tap(frame)
	}
	return frame
}

// ReleaseFrame возвращает исходящий кадр в пул после отправки транспортом.
// Кадр возвращается ровно один раз и после возврата не используется.
func (b *Bridge) ReleaseFrame(frame []byte) {
	b.mutex.Lock()
	pool := b.pool
	b.mutex.Unlock()
	if pool != nil {
		pool.Put(frame)
	}
}

// Profile возвращает профиль, установленный Initialize
func (b *Bridge) Profile() audio.MediaProfile {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.profile
}

// QueueDepth возвращает текущую глубину исходящей очереди в кадрах
func (b *Bridge) QueueDepth() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return len(b.outQueue)
}

// GetStatistics возвращает статистику bridge
func (b *Bridge) GetStatistics() BridgeStatistics {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.stats
}

// Close освобождает ресурсы bridge
func (b *Bridge) Close() {
	b.Stop()
	b.resampler.Close()
}
