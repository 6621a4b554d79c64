package audio

import (
	"log/slog"
	"math"
	"sync"
)

// SampleFormat определяет формат samples на входе/выходе ресемплера
type SampleFormat int

const (
	FormatPCM16 SampleFormat = iota // 16-bit signed linear PCM
	FormatFloat32                   // 32-bit float, диапазон [-1.0, 1.0]
	FormatUint8                     // 8-bit unsigned PCM, центр 128
)

func (f SampleFormat) String() string {
	switch f {
	case FormatPCM16:
		return "pcm16"
	case FormatFloat32:
		return "float32"
	case FormatUint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// Resampler выполняет преобразование частоты дискретизации методом линейной
// интерполяции. Mono only.
//
// Экземпляр рассчитан на долгую жизнь: рабочий буфер переиспользуется между
// вызовами, создание ресемплера на каждый кадр не требуется. Один экземпляр
// принадлежит одной сессии и не разделяется между горутинами без внешней
// синхронизации вызовов Resample* (внутренний mutex защищает только буфер).
//
// Политика ошибок: ресемплер никогда не роняет звонок. Для неподдерживаемого
// формата ResampleBytes логирует предупреждение и возвращает вход как есть
// (непрерывность аудио важнее корректности аудио).
type Resampler struct {
	mutex   sync.Mutex
	scratch []float64
	closed  bool

	// Статистика
	callsTotal   uint64
	passthroughs uint64
}

// NewResampler создает новый ресемплер
func NewResampler() *Resampler {
	return &Resampler{}
}

// OutputLen возвращает длину выхода для преобразования n samples
// из inRate в outRate: ceil(n * outRate / inRate)
func OutputLen(n int, inRate, outRate uint32) int {
	if inRate == 0 || n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) * float64(outRate) / float64(inRate)))
}

// ResampleInt16 преобразует PCM16 samples из inRate в outRate.
// При совпадении частот вход возвращается без копирования и аллокаций.
func (r *Resampler) ResampleInt16(in []int16, inRate, outRate uint32) []int16 {
	if inRate == outRate || len(in) == 0 {
		r.notePassthrough()
		return in
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.callsTotal++

	src := r.toScratch(len(in))
	for i, s := range in {
		src[i] = float64(s)
	}

	outLen := OutputLen(len(in), inRate, outRate)
	out := make([]int16, outLen)
	step := float64(inRate) / float64(outRate)
	for i := 0; i < outLen; i++ {
		out[i] = int16(clampPCM(interpolate(src, float64(i)*step)))
	}
	return out
}

// ResampleFloat32 преобразует float32 samples из inRate в outRate
func (r *Resampler) ResampleFloat32(in []float32, inRate, outRate uint32) []float32 {
	if inRate == outRate || len(in) == 0 {
		r.notePassthrough()
		return in
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.callsTotal++

	src := r.toScratch(len(in))
	for i, s := range in {
		src[i] = float64(s)
	}

	outLen := OutputLen(len(in), inRate, outRate)
	out := make([]float32, outLen)
	step := float64(inRate) / float64(outRate)
	for i := 0; i < outLen; i++ {
		out[i] = float32(interpolate(src, float64(i)*step))
	}
	return out
}

// ResampleUint8 преобразует 8-bit unsigned samples из inRate в outRate
func (r *Resampler) ResampleUint8(in []byte, inRate, outRate uint32) []byte {
	if inRate == outRate || len(in) == 0 {
		r.notePassthrough()
		return in
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.callsTotal++

	src := r.toScratch(len(in))
	for i, s := range in {
		src[i] = float64(s) - 128
	}

	outLen := OutputLen(len(in), inRate, outRate)
	out := make([]byte, outLen)
	step := float64(inRate) / float64(outRate)
	for i := 0; i < outLen; i++ {
		v := interpolate(src, float64(i)*step) + 128
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

// ResampleBytes преобразует samples, упакованные в байты, согласно формату.
// PCM16 ожидается в little-endian. Для неизвестного формата возвращает вход
// без изменений, логируя предупреждение.
func (r *Resampler) ResampleBytes(data []byte, format SampleFormat, inRate, outRate uint32) []byte {
	switch format {
	case FormatPCM16:
		pcm := BytesToPCM16(data)
		return PCM16ToBytes(r.ResampleInt16(pcm, inRate, outRate))
	case FormatFloat32:
		f := bytesToFloat32(data)
		return float32ToBytes(r.ResampleFloat32(f, inRate, outRate))
	case FormatUint8:
		return r.ResampleUint8(data, inRate, outRate)
	default:
		slog.Warn("resampler: неподдерживаемый формат, passthrough",
			"format", format.String(), "in_rate", inRate, "out_rate", outRate)
		r.notePassthrough()
		return data
	}
}

// Close освобождает рабочие буферы. После Close ресемплер использовать нельзя.
func (r *Resampler) Close() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.scratch = nil
	r.closed = true
}

// Statistics возвращает счетчики вызовов ресемплера
func (r *Resampler) Statistics() (calls, passthroughs uint64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.callsTotal, r.passthroughs
}

func (r *Resampler) notePassthrough() {
	r.mutex.Lock()
	r.passthroughs++
	r.mutex.Unlock()
}

func (r *Resampler) toScratch(n int) []float64 {
	if cap(r.scratch) < n {
		r.scratch = make([]float64, n)
	}
	r.scratch = r.scratch[:n]
	return r.scratch
}

// interpolate возвращает линейно интерполированное значение src в позиции pos
func interpolate(src []float64, pos float64) float64 {
	idx := int(pos)
	if idx >= len(src)-1 {
		return src[len(src)-1]
	}
	frac := pos - float64(idx)
	return src[idx]*(1-frac) + src[idx+1]*frac
}

func clampPCM(v float64) int {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int(v)
}

func bytesToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}

func float32ToBytes(in []float32) []byte {
	out := make([]byte, len(in)*4)
	for i, s := range in {
		bits := math.Float32bits(s)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

// Float32ToPCM16 преобразует float32 samples [-1.0, 1.0] в PCM16 с ограничением
func Float32ToPCM16(in []float32) []int16 {
	out := make([]int16, len(in))
	for i, s := range in {
		v := float64(s) * 32767
		out[i] = int16(clampPCM(v))
	}
	return out
}

// BytesToPCM16 распаковывает little-endian байты в PCM16 samples.
// Неполный последний sample отбрасывается.
func BytesToPCM16(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
	}
	return out
}

// PCM16ToBytes упаковывает PCM16 samples в little-endian байты
func PCM16ToBytes(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = byte(uint16(s))
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}
