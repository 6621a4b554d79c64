package audio

import "fmt"

// Реализация G.711 компандирования (ITU-T G.711, A-law и μ-law).
//
// Кодек не имеет состояния: единственные данные, разделяемые между вызовами,
// это таблица экспонент, построенная один раз при инициализации пакета.
// 2 байта linear PCM16 отображаются ровно в 1 компандированный байт.

const (
	// PCMClip максимальная амплитуда PCM перед компандированием.
	// Samples вне [-PCMClip, PCMClip] ограничиваются для защиты от переполнения.
	PCMClip = 32635

	// Канонические байты тишины. Нулевой PCM не является тишиной в
	// компандированной форме, поэтому silence-кадры генерируются отдельно.
	SilenceByteMuLaw = 0xFF
	SilenceByteALaw  = 0xD5

	muLawBias = 0x84
)

// expLUT таблица экспонент (номер сегмента по старшим битам магнитуды).
// expLUT[i] = floor(log2(i)) для i >= 1; используется обоими законами.
var expLUT [256]byte

func init() {
	for i := 1; i < 256; i++ {
		exp := byte(0)
		for v := i; v > 1; v >>= 1 {
			exp++
		}
		expLUT[i] = exp
	}
}

// EncodeMuLaw кодирует linear PCM16 в G.711 μ-law (1 байт на sample)
func EncodeMuLaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = encodeMuLawSample(s)
	}
	return out
}

// DecodeMuLaw декодирует G.711 μ-law в linear PCM16.
// Некорректный вход не приводит к ошибке: каждый байт декодируется
// независимо, размер выхода всегда равен размеру входа.
func DecodeMuLaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = decodeMuLawSample(b)
	}
	return out
}

// EncodeALaw кодирует linear PCM16 в G.711 A-law (1 байт на sample)
func EncodeALaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = encodeALawSample(s)
	}
	return out
}

// DecodeALaw декодирует G.711 A-law в linear PCM16
func DecodeALaw(data []byte) []int16 {
	out := make([]int16, len(data))
	for i, b := range data {
		out[i] = decodeALawSample(b)
	}
	return out
}

// SilenceFrame возвращает кадр тишины из sampleCount компандированных байт
// для указанного кодека
func SilenceFrame(pt PayloadType, sampleCount int) []byte {
	b := byte(SilenceByteMuLaw)
	if pt == PayloadTypePCMA {
		b = SilenceByteALaw
	}
	frame := make([]byte, sampleCount)
	for i := range frame {
		frame[i] = b
	}
	return frame
}

func encodeMuLawSample(pcm int16) byte {
	v := int(pcm)
	var sign byte
	if v < 0 {
		v = -v
		sign = 0x80
	}
	if v > PCMClip {
		v = PCMClip
	}
	v += muLawBias
	exp := expLUT[(v>>7)&0xFF]
	mant := byte((v >> (exp + 3)) & 0x0F)
	// one's complement знака, экспоненты и мантиссы
	return ^(sign | exp<<4 | mant)
}

func decodeMuLawSample(b byte) int16 {
	b = ^b
	exp := (b >> 4) & 0x07
	mant := int(b & 0x0F)
	v := ((mant << 3) + muLawBias) << exp
	v -= muLawBias
	if b&0x80 != 0 {
		v = -v
	}
	return int16(v)
}

func encodeALawSample(pcm int16) byte {
	v := int(pcm)
	if v > PCMClip {
		v = PCMClip
	} else if v < -PCMClip {
		v = -PCMClip
	}
	// A-law работает в 13-битном домене магнитуд
	v >>= 3
	mask := 0xD5 // инвертированные четные биты, знаковый бит для положительных
	if v < 0 {
		mask = 0x55
		v = -v - 1
	}
	var aval int
	if v < 0x20 {
		// сегмент 0: линейный участок без экспоненты
		aval = (v >> 1) & 0x0F
	} else {
		exp := int(expLUT[(v>>5)&0xFF]) + 1
		aval = exp<<4 | (v>>exp)&0x0F
	}
	return byte(aval ^ mask)
}

func decodeALawSample(b byte) int16 {
	b ^= 0x55
	exp := (b >> 4) & 0x07
	mant := int(b & 0x0F)
	v := mant << 4
	if exp == 0 {
		v += 8
	} else {
		v += 0x108
		v <<= exp - 1
	}
	if b&0x80 == 0 {
		v = -v
	}
	return int16(v)
}

// Codec предоставляет интерфейс кодека для одного payload типа.
// Кодирование и декодирование stateless и безопасны для одновременного
// использования из разных горутин.
type Codec interface {
	Encode(pcm []int16) []byte
	Decode(data []byte) []int16
	SilenceFrame(sampleCount int) []byte
	PayloadType() PayloadType
}

type g711Codec struct {
	pt PayloadType
}

// CodecFor возвращает Codec для payload типа (PCMU или PCMA)
func CodecFor(pt PayloadType) (Codec, error) {
	switch pt {
	case PayloadTypePCMU, PayloadTypePCMA:
		return &g711Codec{pt: pt}, nil
	default:
		return nil, fmt.Errorf("нет кодека для payload типа %d", pt)
	}
}

func (c *g711Codec) Encode(pcm []int16) []byte {
	if c.pt == PayloadTypePCMA {
		return EncodeALaw(pcm)
	}
	return EncodeMuLaw(pcm)
}

func (c *g711Codec) Decode(data []byte) []int16 {
	if c.pt == PayloadTypePCMA {
		return DecodeALaw(data)
	}
	return DecodeMuLaw(data)
}

func (c *g711Codec) SilenceFrame(sampleCount int) []byte {
	return SilenceFrame(c.pt, sampleCount)
}

func (c *g711Codec) PayloadType() PayloadType {
	return c.pt
}
