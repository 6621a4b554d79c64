package media

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// VadResult результат обработки одного входящего кадра детектором
type VadResult struct {
	EnergyRMS  float64
	NoiseFloor float64
	State      VadState
	Changed    bool // true, если этот кадр вызвал переход состояния
	Timestamp  time.Time
}

// VADConfig содержит параметры энергетического детектора речевой активности
type VADConfig struct {
	SessionID string

	// Гистерезис порогов в dB над шумовым полом.
	// EnterThresholdDb должен быть больше ResumeThresholdDb, иначе детектор
	// будет дребезжать на границе.
	EnterThresholdDb  float64 // порог входа в Speaking (например 6 dB)
	ResumeThresholdDb float64 // порог возврата в Silence (например 3 dB)

	// Времена выдержки: энергия должна непрерывно держаться по нужную
	// сторону порога в течение этих интервалов
	EnterSpeakingMs int
	ResumeSilenceMs int

	// DebounceMs абсолютный минимум времени между любыми переходами,
	// подавляет осцилляции от транзиентного шума
	DebounceMs int

	// NoiseFloorAlpha коэффициент EMA шумового пола (0.05-0.1).
	// Пол обновляется только в состоянии Silence, чтобы громкая речь
	// не утянула его к энергии речи.
	NoiseFloorAlpha float64

	// InitialNoiseFloor стартовое значение пола до адаптации
	InitialNoiseFloor float64

	// FrameDuration длительность одного кадра; выдержки считаются по
	// накопленному стрим-времени, а не по настенным часам
	FrameDuration time.Duration
}

// DefaultVADConfig возвращает конфигурацию по умолчанию для телефонии
// (8kHz, 20ms кадры)
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnterThresholdDb:  6.0,
		ResumeThresholdDb: 3.0,
		EnterSpeakingMs:   60,
		ResumeSilenceMs:   300,
		DebounceMs:        100,
		NoiseFloorAlpha:   0.08,
		InitialNoiseFloor: 200.0,
		FrameDuration:     time.Millisecond * 20,
	}
}

// EnergyDetector - энергетический детектор речевой активности с адаптивным
// шумовым полом и гистерезисом.
//
// Машина состояний:
//   - Silence -> Speaking: RMS кадра превышает noiseFloor*enterThreshold
//     непрерывно не менее EnterSpeakingMs
//   - Speaking -> Silence: RMS держится ниже noiseFloor*resumeThreshold
//     не менее ResumeSilenceMs
//
// Все переходы дополнительно ограничены абсолютным debounce-интервалом.
// Update - единственная точка входа, стоимость O(длина кадра), без
// аллокаций на горячем пути. Детектор принадлежит одной сессии; для вызова
// из нескольких горутин защищен mutex'ом.
type EnergyDetector struct {
	config VADConfig

	mutex sync.Mutex

	state      VadState
	noiseFloor float64
	enterLin   float64 // линейный порог входа, пересчитывается при смене пола
	resumeLin  float64

	aboveMs       int // накопленное время энергии выше порога входа
	belowMs       int // накопленное время энергии ниже порога возврата
	sinceChangeMs int // стрим-время с последнего перехода

	framesTotal uint64
	transitions uint64
}

// NewEnergyDetector создает детектор с указанной конфигурацией.
// Отсутствующие параметры заполняются значениями по умолчанию.
func NewEnergyDetector(config VADConfig) (*EnergyDetector, error) {
	def := DefaultVADConfig()
	if config.EnterThresholdDb == 0 {
		config.EnterThresholdDb = def.EnterThresholdDb
	}
	if config.ResumeThresholdDb == 0 {
		config.ResumeThresholdDb = def.ResumeThresholdDb
	}
	if config.EnterSpeakingMs <= 0 {
		config.EnterSpeakingMs = def.EnterSpeakingMs
	}
	if config.ResumeSilenceMs <= 0 {
		config.ResumeSilenceMs = def.ResumeSilenceMs
	}
	if config.DebounceMs <= 0 {
		config.DebounceMs = def.DebounceMs
	}
	if config.NoiseFloorAlpha <= 0 || config.NoiseFloorAlpha >= 1 {
		config.NoiseFloorAlpha = def.NoiseFloorAlpha
	}
	if config.InitialNoiseFloor <= 0 {
		config.InitialNoiseFloor = def.InitialNoiseFloor
	}
	if config.FrameDuration <= 0 {
		config.FrameDuration = def.FrameDuration
	}

	if config.EnterThresholdDb <= config.ResumeThresholdDb {
		return nil, NewMediaError(ErrorCodeVADConfigInvalid, config.SessionID,
			"порог входа должен быть выше порога возврата (гистерезис)")
	}

	d := &EnergyDetector{
		config:        config,
		state:         VadStateSilence,
		noiseFloor:    config.InitialNoiseFloor,
		sinceChangeMs: config.DebounceMs, // первый переход не задерживается
	}
	d.recomputeThresholds()
	return d, nil
}

// Update обрабатывает один входящий кадр и возвращает результат детекции.
// Вызывается ровно один раз на кадр, в порядке прибытия кадров.
func (d *EnergyDetector) Update(frame []int16) VadResult {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	frameMs := int(d.config.FrameDuration.Milliseconds())
	d.framesTotal++
	d.sinceChangeMs += frameMs

	rms := FrameRMS(frame)

	changed := false
	switch d.state {
	case VadStateSilence:
		// Пол адаптируется только в тишине
		a := d.config.NoiseFloorAlpha
		d.noiseFloor = (1-a)*d.noiseFloor + a*rms
		if d.noiseFloor < 1.0 {
			d.noiseFloor = 1.0
		}
		d.recomputeThresholds()

		if rms > d.enterLin {
			d.aboveMs += frameMs
		} else {
			d.aboveMs = 0
		}

		if d.aboveMs >= d.config.EnterSpeakingMs && d.sinceChangeMs >= d.config.DebounceMs {
			d.state = VadStateSpeaking
			d.aboveMs = 0
			d.belowMs = 0
			d.sinceChangeMs = 0
			d.transitions++
			changed = true
			slog.Debug("media.VAD Silence -> Speaking",
				"session_id", d.config.SessionID, "rms", rms, "floor", d.noiseFloor)
		}

	case VadStateSpeaking:
		if rms < d.resumeLin {
			d.belowMs += frameMs
		} else {
			d.belowMs = 0
		}

		if d.belowMs >= d.config.ResumeSilenceMs && d.sinceChangeMs >= d.config.DebounceMs {
			d.state = VadStateSilence
			d.aboveMs = 0
			d.belowMs = 0
			d.sinceChangeMs = 0
			d.transitions++
			changed = true
			slog.Debug("media.VAD Speaking -> Silence",
				"session_id", d.config.SessionID, "rms", rms, "floor", d.noiseFloor)
		}
	}

	return VadResult{
		EnergyRMS:  rms,
		NoiseFloor: d.noiseFloor,
		State:      d.state,
		Changed:    changed,
		Timestamp:  time.Now(),
	}
}

// State возвращает текущее состояние детектора
func (d *EnergyDetector) State() VadState {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.state
}

// NoiseFloor возвращает текущий адаптивный шумовой пол
func (d *EnergyDetector) NoiseFloor() float64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.noiseFloor
}

// Reset возвращает детектор в начальное состояние
func (d *EnergyDetector) Reset() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.state = VadStateSilence
	d.noiseFloor = d.config.InitialNoiseFloor
	d.aboveMs = 0
	d.belowMs = 0
	d.sinceChangeMs = d.config.DebounceMs
	d.recomputeThresholds()
}

// recomputeThresholds пересчитывает линейные пороги из dB значений;
// вызывается под mutex
func (d *EnergyDetector) recomputeThresholds() {
	d.enterLin = d.noiseFloor * math.Pow(10, d.config.EnterThresholdDb/20)
	d.resumeLin = d.noiseFloor * math.Pow(10, d.config.ResumeThresholdDb/20)
}
