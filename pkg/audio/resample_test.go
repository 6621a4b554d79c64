package audio

import (
	"math"
	"testing"
)

// TestOutputLen проверяет расчет длины выходного буфера
func TestOutputLen(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		inRate   uint32
		outRate  uint32
		expected int
	}{
		{"upsample 8k->16k", 160, 8000, 16000, 320},
		{"downsample 16k->8k", 320, 16000, 8000, 160},
		{"равные частоты", 160, 8000, 8000, 160},
		{"некратное отношение 44.1k->8k", 441, 44100, 8000, 80},
		{"округление вверх", 100, 44100, 8000, 19}, // ceil(100*8000/44100)
		{"пустой вход", 0, 8000, 16000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutputLen(tt.n, tt.inRate, tt.outRate); got != tt.expected {
				t.Errorf("OutputLen(%d, %d, %d) = %d, ожидалось %d",
					tt.n, tt.inRate, tt.outRate, got, tt.expected)
			}
		})
	}
}

// TestResampleInt16Passthrough проверяет passthrough при равных частотах
func TestResampleInt16Passthrough(t *testing.T) {
	r := NewResampler()
	defer r.Close()

	in := []int16{1, 2, 3, 4, 5}
	out := r.ResampleInt16(in, 8000, 8000)
	if len(out) != len(in) {
		t.Fatalf("passthrough изменил длину: %d -> %d", len(in), len(out))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("passthrough изменил sample %d: %d != %d", i, out[i], in[i])
		}
	}

	_, passthroughs := r.Statistics()
	if passthroughs != 1 {
		t.Errorf("ожидался 1 passthrough, зафиксировано %d", passthroughs)
	}
}

// TestResampleInt16DCLevel проверяет сохранение постоянного уровня:
// линейная интерполяция константного сигнала не должна менять значения
func TestResampleInt16DCLevel(t *testing.T) {
	r := NewResampler()
	defer r.Close()

	in := make([]int16, 160)
	for i := range in {
		in[i] = 1000
	}

	out := r.ResampleInt16(in, 8000, 16000)
	if len(out) != 320 {
		t.Fatalf("длина выхода: ожидалось 320, получено %d", len(out))
	}
	for i, v := range out {
		if v != 1000 {
			t.Fatalf("sample %d: константный сигнал искажен: %d", i, v)
		}
	}
}

// TestResampleFloat32Sine проверяет сохранение формы синусоиды при
// передискретизации 16k -> 8k
func TestResampleFloat32Sine(t *testing.T) {
	r := NewResampler()
	defer r.Close()

	const freq = 400.0 // Hz, заведомо ниже половины целевой частоты
	in := make([]float32, 320)
	for i := range in {
		in[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / 16000))
	}

	out := r.ResampleFloat32(in, 16000, 8000)
	if len(out) != 160 {
		t.Fatalf("длина выхода: ожидалось 160, получено %d", len(out))
	}

	// Сравниваем с идеальной синусоидой на новой частоте, края не считаем
	for i := 1; i < len(out)-1; i++ {
		ideal := math.Sin(2 * math.Pi * freq * float64(i) / 8000)
		if diff := math.Abs(float64(out[i]) - ideal); diff > 0.05 {
			t.Fatalf("sample %d: отклонение %f от идеала", i, diff)
		}
	}
}

// TestResampleEmptyInput проверяет обработку пустого входа
func TestResampleEmptyInput(t *testing.T) {
	r := NewResampler()
	defer r.Close()

	if out := r.ResampleInt16(nil, 8000, 16000); len(out) != 0 {
		t.Errorf("пустой вход дал непустой выход: %d samples", len(out))
	}
	if out := r.ResampleFloat32([]float32{}, 16000, 8000); len(out) != 0 {
		t.Errorf("пустой вход дал непустой выход: %d samples", len(out))
	}
}

// TestResampleBytesUnknownFormat проверяет passthrough при неизвестном формате
func TestResampleBytesUnknownFormat(t *testing.T) {
	r := NewResampler()
	defer r.Close()

	data := []byte{1, 2, 3, 4}
	out := r.ResampleBytes(data, SampleFormat(99), 8000, 16000)
	if len(out) != len(data) {
		t.Fatalf("неизвестный формат должен возвращать вход как есть")
	}
}

// TestFloat32ToPCM16 проверяет конвертацию и ограничение диапазона
func TestFloat32ToPCM16(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected int16
	}{
		{"ноль", 0, 0},
		{"положительная полная шкала", 1.0, 32767},
		{"отрицательная полная шкала", -1.0, -32767},
		{"выше шкалы ограничивается", 2.0, 32767},
		{"ниже шкалы ограничивается", -2.0, -32768},
		{"половина шкалы", 0.5, 16383},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Float32ToPCM16([]float32{tt.input})
			if out[0] != tt.expected {
				t.Errorf("Float32ToPCM16(%f) = %d, ожидалось %d", tt.input, out[0], tt.expected)
			}
		})
	}
}

// TestPCM16BytesRoundtrip проверяет конвертацию samples <-> little-endian байты
func TestPCM16BytesRoundtrip(t *testing.T) {
	pcm := []int16{0, 1, -1, 32767, -32768, 12345}
	data := PCM16ToBytes(pcm)
	if len(data) != len(pcm)*BytesPerPCMSample {
		t.Fatalf("длина байтов: %d", len(data))
	}
	back := BytesToPCM16(data)
	for i := range pcm {
		if back[i] != pcm[i] {
			t.Errorf("sample %d: %d != %d", i, back[i], pcm[i])
		}
	}
}
