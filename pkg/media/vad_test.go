package media

import (
	"testing"
	"time"
)

// makeFrame создает кадр с константной амплитудой: RMS такого кадра
// равен модулю амплитуды
func makeFrame(amplitude int16, samples int) []int16 {
	frame := make([]int16, samples)
	for i := range frame {
		frame[i] = amplitude
	}
	return frame
}

func testVADConfig() VADConfig {
	return VADConfig{
		EnterThresholdDb:  6.0,
		ResumeThresholdDb: 3.0,
		EnterSpeakingMs:   60,
		ResumeSilenceMs:   300,
		DebounceMs:        100,
		NoiseFloorAlpha:   0.08,
		InitialNoiseFloor: 100.0,
		FrameDuration:     20 * time.Millisecond,
	}
}

// TestVADConfigValidation проверяет требование гистерезиса порогов
func TestVADConfigValidation(t *testing.T) {
	config := testVADConfig()
	config.EnterThresholdDb = 3.0
	config.ResumeThresholdDb = 6.0

	if _, err := NewEnergyDetector(config); err == nil {
		t.Fatal("ожидалась ошибка: порог входа ниже порога возврата")
	} else if !HasErrorCode(err, ErrorCodeVADConfigInvalid) {
		t.Errorf("ожидался код VADConfigInvalid, получено: %v", err)
	}
}

// TestVADInitialState проверяет начальное состояние детектора
func TestVADInitialState(t *testing.T) {
	d, err := NewEnergyDetector(testVADConfig())
	if err != nil {
		t.Fatal(err)
	}
	if d.State() != VadStateSilence {
		t.Errorf("начальное состояние: %v, ожидалось Silence", d.State())
	}
	if d.NoiseFloor() != 100.0 {
		t.Errorf("начальный шумовой пол: %f", d.NoiseFloor())
	}
}

// TestVADEnterSpeaking проверяет переход Silence -> Speaking после времени
// выдержки: громкость должна держаться выше порога EnterSpeakingMs подряд
func TestVADEnterSpeaking(t *testing.T) {
	d, err := NewEnergyDetector(testVADConfig())
	if err != nil {
		t.Fatal(err)
	}

	loud := makeFrame(1000, 160)

	// Выдержка 60ms = 3 кадра по 20ms; первые два кадра переход не делают
	for i := 0; i < 2; i++ {
		result := d.Update(loud)
		if result.Changed {
			t.Fatalf("кадр %d: преждевременный переход", i)
		}
		if result.State != VadStateSilence {
			t.Fatalf("кадр %d: состояние %v до истечения выдержки", i, result.State)
		}
	}

	result := d.Update(loud)
	if !result.Changed || result.State != VadStateSpeaking {
		t.Fatalf("3-й громкий кадр: ожидался переход в Speaking, получено %v (changed=%v)",
			result.State, result.Changed)
	}
}

// TestVADTransientNoiseIgnored проверяет, что одиночный громкий кадр
// не вызывает переход: счетчик выдержки сбрасывается тихим кадром
func TestVADTransientNoiseIgnored(t *testing.T) {
	d, err := NewEnergyDetector(testVADConfig())
	if err != nil {
		t.Fatal(err)
	}

	loud := makeFrame(1000, 160)
	quiet := makeFrame(50, 160)

	// Чередование громкий/тихий никогда не копит 60ms подряд
	for i := 0; i < 20; i++ {
		d.Update(loud)
		result := d.Update(quiet)
		if result.State != VadStateSpeaking {
			continue
		}
		t.Fatalf("итерация %d: транзиентный шум вызвал переход", i)
	}

	if d.State() != VadStateSilence {
		t.Error("детектор покинул Silence на транзиентном шуме")
	}
}

// TestVADResumeSilence проверяет полный цикл: речь, затем устойчивая тишина
// в течение ResumeSilenceMs возвращает детектор в Silence
func TestVADResumeSilence(t *testing.T) {
	d, err := NewEnergyDetector(testVADConfig())
	if err != nil {
		t.Fatal(err)
	}

	loud := makeFrame(1000, 160)
	quiet := makeFrame(50, 160)

	// Вход в Speaking
	for i := 0; i < 3; i++ {
		d.Update(loud)
	}
	if d.State() != VadStateSpeaking {
		t.Fatal("детектор не вошел в Speaking")
	}

	// Выдержка возврата 300ms = 15 кадров; переход на 15-м
	var changedAt int
	for i := 1; i <= 15; i++ {
		result := d.Update(quiet)
		if result.Changed {
			changedAt = i
			if result.State != VadStateSilence {
				t.Fatalf("переход не в Silence: %v", result.State)
			}
			break
		}
	}
	if changedAt != 15 {
		t.Errorf("переход в Silence на кадре %d, ожидался 15", changedAt)
	}
}

// TestVADDebounce проверяет абсолютный минимум времени между переходами:
// даже при выполненной выдержке переход ждет истечения debounce-интервала
func TestVADDebounce(t *testing.T) {
	config := testVADConfig()
	config.ResumeSilenceMs = 40 // короче debounce
	config.DebounceMs = 200

	d, err := NewEnergyDetector(config)
	if err != nil {
		t.Fatal(err)
	}

	loud := makeFrame(1000, 160)
	quiet := makeFrame(50, 160)

	for i := 0; i < 3; i++ {
		d.Update(loud)
	}
	if d.State() != VadStateSpeaking {
		t.Fatal("детектор не вошел в Speaking")
	}

	// Выдержка 40ms истекает на 2-м кадре, но debounce 200ms держит
	// переход до 10-го кадра
	var changedAt int
	for i := 1; i <= 12; i++ {
		if result := d.Update(quiet); result.Changed {
			changedAt = i
			break
		}
	}
	if changedAt != 10 {
		t.Errorf("переход на кадре %d, ожидался 10 (debounce 200ms)", changedAt)
	}
}

// TestVADNoiseFloorAdaptation проверяет адаптацию и нижнюю границу
// шумового пола
func TestVADNoiseFloorAdaptation(t *testing.T) {
	d, err := NewEnergyDetector(testVADConfig())
	if err != nil {
		t.Fatal(err)
	}

	// Пол адаптируется к уровню фонового шума, остающегося ниже порога речи
	background := makeFrame(150, 160)
	for i := 0; i < 100; i++ {
		d.Update(background)
	}
	floor := d.NoiseFloor()
	if floor < 140 || floor > 160 {
		t.Errorf("пол не сошелся к фону: %f, ожидалось около 150", floor)
	}
	if d.State() != VadStateSilence {
		t.Error("фоновый шум ниже порога не должен вызывать Speaking")
	}

	// На полной тишине пол не опускается ниже 1.0
	d.Reset()
	zero := makeFrame(0, 160)
	for i := 0; i < 200; i++ {
		d.Update(zero)
	}
	if floor := d.NoiseFloor(); floor != 1.0 {
		t.Errorf("пол на тишине: %f, ожидалась нижняя граница 1.0", floor)
	}
}

// TestVADNoiseFloorFrozenWhileSpeaking проверяет, что пол не обновляется
// в состоянии Speaking: громкая речь не должна утягивать его вверх
func TestVADNoiseFloorFrozenWhileSpeaking(t *testing.T) {
	d, err := NewEnergyDetector(testVADConfig())
	if err != nil {
		t.Fatal(err)
	}

	loud := makeFrame(1000, 160)
	for i := 0; i < 3; i++ {
		d.Update(loud)
	}
	if d.State() != VadStateSpeaking {
		t.Fatal("детектор не вошел в Speaking")
	}

	frozen := d.NoiseFloor()
	for i := 0; i < 10; i++ {
		d.Update(loud)
	}
	if d.NoiseFloor() != frozen {
		t.Errorf("пол изменился в Speaking: %f -> %f", frozen, d.NoiseFloor())
	}
}

// TestVADReset проверяет возврат детектора в начальное состояние
func TestVADReset(t *testing.T) {
	d, err := NewEnergyDetector(testVADConfig())
	if err != nil {
		t.Fatal(err)
	}

	loud := makeFrame(1000, 160)
	for i := 0; i < 3; i++ {
		d.Update(loud)
	}

	d.Reset()
	if d.State() != VadStateSilence {
		t.Error("Reset не вернул состояние Silence")
	}
	if d.NoiseFloor() != 100.0 {
		t.Errorf("Reset не вернул начальный пол: %f", d.NoiseFloor())
	}
}
