package media

import (
	"math"
	"sync"
)

// FrameEncoding определяет кодирование данных внутри AudioFrame
type FrameEncoding int

const (
	EncodingPCM16 FrameEncoding = iota // linear PCM16, внутреннее представление
	EncodingG711                       // компандированный G.711, транспортная форма
)

func (e FrameEncoding) String() string {
	switch e {
	case EncodingPCM16:
		return "pcm16"
	case EncodingG711:
		return "g711"
	default:
		return "unknown"
	}
}

// AudioFrame представляет один кадр фиксированной длины с метаданными.
// Кадр создается bridge или кодеком и после передачи следующему компоненту
// не мутируется. Владение переходит вместе с кадром.
type AudioFrame struct {
	Data       []byte
	Encoding   FrameEncoding
	SampleRate uint32
	RMS        float64 // энергия исходного PCM, заполняется до кодирования
}

// FrameRMS вычисляет RMS энергию PCM16 кадра
func FrameRMS(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// framePool переиспользует буферы кадров фиксированного размера, чтобы не
// аллоцировать на каждом 20ms тике. Буфер возвращается в пул ровно один раз
// и после возврата не используется.
type framePool struct {
	pool sync.Pool
	size int
}

func newFramePool(size int) *framePool {
	return &framePool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// Get возвращает чистый буфер размера кадра
func (fp *framePool) Get() []byte {
	buf := *(fp.pool.Get().(*[]byte))
	for i := range buf {
		buf[i] = 0
	}
	return buf
}

// Put возвращает буфер в пул. Буферы чужого размера отбрасываются.
func (fp *framePool) Put(buf []byte) {
	if cap(buf) < fp.size {
		return
	}
	buf = buf[:fp.size]
	fp.pool.Put(&buf)
}

// VadState состояние детектора речевой активности
type VadState int

const (
	VadStateSilence VadState = iota
	VadStateSpeaking
)

func (s VadState) String() string {
	switch s {
	case VadStateSilence:
		return "silence"
	case VadStateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// VoiceActivityDetector абстракция детектора речевой активности.
// Update вызывается ровно один раз на каждый входящий кадр, в порядке
// прибытия кадров. Реализации взаимозаменяемы: оркестратор не зависит от
// конкретного алгоритма детекции.
type VoiceActivityDetector interface {
	Update(frame []int16) VadResult
	State() VadState
	Reset()
}

// FrameProducer поставляет исходящие кадры по запросу транспортного тика.
// Возвращает nil, если данных нет: bridge подставит кадр тишины.
type FrameProducer func() []byte

// FrameHandler синхронно вызывается на каждый входящий PCM16 кадр
type FrameHandler func(frame []int16)

// WireTap получает точную копию байт, прошедших через транспортную границу.
// Используется подсистемами записи и мониторинга.
type WireTap func(data []byte)

// Проверка на соответствие интерфейсу во время компиляции
var _ VoiceActivityDetector = (*EnergyDetector)(nil)
