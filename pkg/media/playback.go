package media

import (
	"log/slog"
	"sync"
)

// PlaybackConfig содержит параметры конфигурации Playback Source.
// Watermark'и задаются в кадрах: при 20ms кадрах high=300 соответствует
// примерно 6 секундам буферизованного аудио.
type PlaybackConfig struct {
	SessionID string

	Capacity      int // Максимальная глубина очереди в кадрах
	LowWatermark  int // Ниже - воспроизведение замедляется
	HighWatermark int // Выше - воспроизведение ускоряется

	RateAbove float64 // Множитель скорости выше high watermark (например 1.2)
	RateBelow float64 // Множитель скорости ниже low watermark (например 0.8)

	// RMSWindow количество последних кадров в скользящем RMS (для диагностики)
	RMSWindow int
}

// DefaultPlaybackConfig возвращает конфигурацию по умолчанию
func DefaultPlaybackConfig() PlaybackConfig {
	return PlaybackConfig{
		Capacity:      500,
		LowWatermark:  100,
		HighWatermark: 300,
		RateAbove:     1.2,
		RateBelow:     0.8,
		RMSWindow:     50,
	}
}

// PlaybackSource - ограниченная thread-safe очередь кадров с адаптивной
// скоростью воспроизведения. Развязывает пульсирующее, медленное производство
// TTS от равномерного потребления транспортом раз в 20ms.
//
// Watermark-логика:
//   - глубина > HighWatermark: потребителю разрешено воспроизводить быстрее
//     реального времени (ограниченный множитель), чтобы слить backlog
//   - глубина < LowWatermark: воспроизведение замедляется, чтобы не попасть
//     в starvation
//   - между watermark'ами: номинальная скорость 1.0
//
// ReadNextFrame всегда возвращает не более одного кадра за вызов: ускорение
// реализовано отбрасыванием дробных кадров по накопленному кредиту,
// замедление - повтором последнего кадра без извлечения из очереди.
// Владение каждым выданным кадром переходит потребителю: повтор несет
// собственную копию данных, поэтому транспорт может возвращать буфер
// каждого кадра в пул ровно один раз.
//
// Политика переполнения: при обгоне продюсером емкости отбрасываются
// старейшие кадры (гарантия ограниченной задержки важнее полноты);
// продюсер никогда не блокируется и не получает ошибку.
//
// Все критические секции O(1) относительно размера кадра: mutex не
// удерживается через ресемплинг или кодирование.
type PlaybackSource struct {
	config PlaybackConfig

	mutex   sync.Mutex
	frames  []AudioFrame
	rate    float64 // текущий множитель скорости
	credit  float64 // накопленный дробный кредит потребления
	last    *AudioFrame
	stopped bool

	// Скользящий RMS последних воспроизведенных кадров
	rmsValues []float64
	rmsSum    float64

	stats PlaybackStatistics
}

// PlaybackStatistics статистика playback source
type PlaybackStatistics struct {
	FramesEnqueued uint64
	FramesPlayed   uint64
	FramesDropped  uint64 // отброшено при переполнении
	FramesSkipped  uint64 // отброшено при ускоренном воспроизведении
	FramesRepeated uint64 // повторено при замедленном воспроизведении
	Depth          int
	PlaybackRate   float64
	RunningRMS     float64
}

// NewPlaybackSource создает playback source с указанной конфигурацией.
// Отсутствующие параметры заполняются значениями по умолчанию.
func NewPlaybackSource(config PlaybackConfig) (*PlaybackSource, error) {
	def := DefaultPlaybackConfig()
	if config.Capacity <= 0 {
		config.Capacity = def.Capacity
	}
	if config.LowWatermark <= 0 {
		config.LowWatermark = def.LowWatermark
	}
	if config.HighWatermark <= 0 {
		config.HighWatermark = def.HighWatermark
	}
	if config.RateAbove <= 1.0 {
		config.RateAbove = def.RateAbove
	}
	if config.RateBelow <= 0 || config.RateBelow > 1.0 {
		config.RateBelow = def.RateBelow
	}
	if config.RMSWindow <= 0 {
		config.RMSWindow = def.RMSWindow
	}

	if config.LowWatermark >= config.HighWatermark {
		return nil, NewPlaybackError(ErrorCodePlaybackConfigInvalid, config.SessionID,
			"low watermark должен быть меньше high watermark",
			config.LowWatermark, config.HighWatermark)
	}
	if config.HighWatermark >= config.Capacity {
		return nil, NewPlaybackError(ErrorCodePlaybackConfigInvalid, config.SessionID,
			"high watermark должен быть меньше емкости",
			config.HighWatermark, config.Capacity)
	}

	return &PlaybackSource{
		config: config,
		rate:   1.0,
	}, nil
}

// Enqueue добавляет кадр в очередь. Вызывается TTS-продюсером.
// При переполнении отбрасывает старейший кадр: новый кадр при этом
// поставлен, а продюсеру возвращается восстановимая ошибка
// PlaybackOverflow для диагностики. После Stop() кадры игнорируются.
func (ps *PlaybackSource) Enqueue(frame AudioFrame) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.stopped {
		return NewPlaybackError(ErrorCodePlaybackStopped, ps.config.SessionID,
			"playback source остановлен", len(ps.frames), ps.config.Capacity)
	}

	var overflow error
	if len(ps.frames) >= ps.config.Capacity {
		ps.frames = ps.frames[1:]
		ps.stats.FramesDropped++
		overflow = NewPlaybackError(ErrorCodePlaybackOverflow, ps.config.SessionID,
			"очередь переполнена, старейший кадр отброшен",
			len(ps.frames), ps.config.Capacity)
		slog.Warn("media.PlaybackSource переполнен, старейший кадр отброшен",
			"session_id", ps.config.SessionID,
			"capacity", ps.config.Capacity,
			"dropped_total", ps.stats.FramesDropped,
			"error", overflow)
	}

	ps.frames = append(ps.frames, frame)
	ps.stats.FramesEnqueued++
	ps.updateRateLocked()
	return overflow
}

// ReadNextFrame выдает один кадр на транспортный тик.
// Возвращает false, если очередь пуста. Кадры выдаются строго в порядке
// поступления (FIFO); ускорение/замедление меняет только темп извлечения.
func (ps *PlaybackSource) ReadNextFrame() (AudioFrame, bool) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.stopped || len(ps.frames) == 0 {
		return AudioFrame{}, false
	}

	ps.updateRateLocked()
	ps.credit += ps.rate

	// Замедление: кредита не хватает на целый кадр - повторяем последний
	// сыгранный кадр, очередь не трогаем. Повтор несет свежую копию данных:
	// буфер ранее выданного кадра уже мог вернуться в пул транспорта
	if ps.credit < 1.0 && ps.last != nil {
		repeat := *ps.last
		repeat.Data = append([]byte(nil), ps.last.Data...)
		ps.stats.FramesRepeated++
		return repeat, true
	}

	frame := ps.popLocked()
	ps.credit -= 1.0

	// Ускорение: накопился лишний целый кадр - отбрасываем дробный излишек,
	// чтобы слить backlog
	for ps.credit >= 1.0 && len(ps.frames) > 0 {
		ps.popLocked()
		ps.credit -= 1.0
		ps.stats.FramesSkipped++
	}

	// Эталон для повторов хранится в собственном буфере: потребитель владеет
	// выданным кадром и может переиспользовать его данные
	kept := frame
	kept.Data = append([]byte(nil), frame.Data...)
	ps.last = &kept
	ps.trackRMSLocked(frame.RMS)
	return frame, true
}

// popLocked извлекает головной кадр; вызывается под mutex
func (ps *PlaybackSource) popLocked() AudioFrame {
	frame := ps.frames[0]
	ps.frames = ps.frames[1:]
	ps.stats.FramesPlayed++
	return frame
}

// updateRateLocked пересчитывает множитель скорости по watermark'ам
func (ps *PlaybackSource) updateRateLocked() {
	depth := len(ps.frames)
	switch {
	case depth > ps.config.HighWatermark:
		ps.rate = ps.config.RateAbove
	case depth < ps.config.LowWatermark:
		ps.rate = ps.config.RateBelow
	default:
		ps.rate = 1.0
	}
}

// trackRMSLocked обновляет скользящий RMS воспроизведенных кадров
func (ps *PlaybackSource) trackRMSLocked(rms float64) {
	ps.rmsValues = append(ps.rmsValues, rms)
	ps.rmsSum += rms
	if len(ps.rmsValues) > ps.config.RMSWindow {
		ps.rmsSum -= ps.rmsValues[0]
		ps.rmsValues = ps.rmsValues[1:]
	}
}

// Depth возвращает текущую глубину очереди в кадрах
func (ps *PlaybackSource) Depth() int {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	return len(ps.frames)
}

// PlaybackRate возвращает текущий множитель скорости воспроизведения
func (ps *PlaybackSource) PlaybackRate() float64 {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	ps.updateRateLocked()
	return ps.rate
}

// RunningRMS возвращает средний RMS последних воспроизведенных кадров
func (ps *PlaybackSource) RunningRMS() float64 {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	if len(ps.rmsValues) == 0 {
		return 0
	}
	return ps.rmsSum / float64(len(ps.rmsValues))
}

// Clear очищает очередь, не останавливая source.
// Используется при teardown, чтобы устаревшее аудио не пережило звонок.
func (ps *PlaybackSource) Clear() {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	ps.frames = nil
	ps.last = nil
	ps.credit = 0
	ps.rate = 1.0
}

// Stop останавливает source. Последующие Enqueue возвращают ошибку,
// ReadNextFrame возвращает false.
func (ps *PlaybackSource) Stop() {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	if ps.stopped {
		return
	}
	ps.stopped = true
	ps.frames = nil
	ps.last = nil
	slog.Debug("media.PlaybackSource Stopped",
		"session_id", ps.config.SessionID,
		"played", ps.stats.FramesPlayed,
		"dropped", ps.stats.FramesDropped)
}

// GetStatistics возвращает статистику playback source
func (ps *PlaybackSource) GetStatistics() PlaybackStatistics {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	stats := ps.stats
	stats.Depth = len(ps.frames)
	stats.PlaybackRate = ps.rate
	if len(ps.rmsValues) > 0 {
		stats.RunningRMS = ps.rmsSum / float64(len(ps.rmsValues))
	}
	return stats
}
