package responder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/arzzra/auto_responder/pkg/audio"
	"github.com/arzzra/auto_responder/pkg/media"
)

// SessionState представляет состояние сессии автоответчика
type SessionState int

const (
	StateIdle SessionState = iota
	StatePlaying
	StatePaused
	StateStopped
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Имена состояний и событий FSM
const (
	stateIdle    = "idle"
	statePlaying = "playing"
	statePaused  = "paused"
	stateStopped = "stopped"

	eventPlay   = "play"
	eventBarge  = "barge"
	eventResume = "resume"
	eventStop   = "stop"
)

// newResponderFSM строит машину состояний сессии.
// idle -> playing -> {paused <-> playing} -> stopped; stopped терминально.
func newResponderFSM(callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventPlay, Src: []string{stateIdle}, Dst: statePlaying},
			{Name: eventBarge, Src: []string{statePlaying}, Dst: statePaused},
			{Name: eventResume, Src: []string{statePaused}, Dst: statePlaying},
			{Name: eventStop, Src: []string{stateIdle, statePlaying, statePaused}, Dst: stateStopped},
		},
		callbacks,
	)
}

// SessionConfig содержит параметры конфигурации сессии автоответчика.
// Обязательны TTS и Bridge; остальные поля опциональны.
type SessionConfig struct {
	// SessionID идентификатор сессии; пустой = сгенерировать UUID
	SessionID string

	// TTS движок синтеза речи
	TTS Engine

	// Bridge инициализированный bridge call leg'а
	Bridge *media.Bridge

	// Speaker и Speed передаются TTS движку как есть
	Speaker string
	Speed   float64

	// Playback настройки playback source (nil = по умолчанию)
	Playback *media.PlaybackConfig

	// VAD настройки детектора речи (nil = по умолчанию)
	VAD *media.VADConfig

	// Metrics сборщик метрик (nil = метрики не собираются)
	Metrics *Metrics

	// OnStateChange опциональный callback переходов состояния
	OnStateChange func(from, to SessionState)
}

// Statistics статистика сессии автоответчика
type Statistics struct {
	State          SessionState
	FramesProduced uint64 // кадров закодировано и поставлено в playback source
	ChunksConsumed uint64 // фрагментов TTS обработано
	BargeIns       uint64 // сколько раз caller перебивал воспроизведение
	PlaybackDepth  int
	PlaybackRate   float64
}

// Session - оркестратор автоответчика для одного call leg'а.
//
// Сессия эксклюзивно владеет своим playback source, VAD и ресемплером;
// разделяемого состояния между звонками нет. Ровно одна сессия на call leg.
//
// Конвейер:
//
//	PlayScript запускает единственную фоновую горутину (ttsLoop), которая
//	тянет фрагменты из TTS потока, ресемплирует их к частоте профиля,
//	кодирует в транспортный кодек и ставит кадры в playback source.
//	Потребление не зависит от темпа производства: bridge забирает по
//	одному кадру на 20ms тик через зарегистрированного продюсера.
//
// Barge-in: VAD обрабатывает каждый входящий кадр; переход в Speaking
// во время воспроизведения ставит сессию на паузу (в эфир идет тишина,
// производство продолжает буферизовать), устойчивая тишина возобновляет
// воспроизведение с места остановки без повторного синтеза.
//
// Завершение: явный Stop() или естественное исчерпание TTS потока с
// осушением playback source переводят сессию в Stopped. Stopped
// терминально: новый PlayScript требует новой сессии.
//
// Сбой TTS (пустой или прерванный поток) - нормальное завершение,
// сессия переходит в Stopped, не зависает. 20ms тик никогда не
// блокируется ожиданием TTS.
type Session struct {
	id     string
	config SessionConfig

	machine   *fsm.FSM
	machMutex sync.Mutex

	playback  *media.PlaybackSource
	vad       media.VoiceActivityDetector
	resampler *audio.Resampler
	codec     audio.Codec
	profile   audio.MediaProfile

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ttsDone  chan struct{} // закрывается по завершении ttsLoop
	stopOnce sync.Once

	statsMutex     sync.Mutex
	framesProduced uint64
	chunksConsumed uint64
	bargeIns       uint64
}

// NewSession создает сессию автоответчика поверх инициализированного bridge.
// Сессия регистрирует себя продюсером исходящих кадров bridge и
// обработчиком входящих кадров (VAD).
func NewSession(config SessionConfig) (*Session, error) {
	if config.TTS == nil {
		return nil, errors.New("responder: TTS движок обязателен")
	}
	if config.Bridge == nil {
		return nil, errors.New("responder: bridge обязателен")
	}
	profile := config.Bridge.Profile()
	if err := profile.Validate(); err != nil {
		return nil, media.WrapMediaError(media.ErrorCodeBridgeNotInitialized,
			config.SessionID, "bridge не инициализирован профилем", err)
	}
	if config.SessionID == "" {
		config.SessionID = uuid.NewString()
	}

	codec, err := audio.CodecFor(profile.PayloadType)
	if err != nil {
		return nil, err
	}

	playbackCfg := media.DefaultPlaybackConfig()
	if config.Playback != nil {
		playbackCfg = *config.Playback
	}
	playbackCfg.SessionID = config.SessionID
	playback, err := media.NewPlaybackSource(playbackCfg)
	if err != nil {
		return nil, err
	}

	vadCfg := media.DefaultVADConfig()
	if config.VAD != nil {
		vadCfg = *config.VAD
	}
	vadCfg.SessionID = config.SessionID
	vadCfg.FrameDuration = profile.FrameDuration
	vad, err := media.NewEnergyDetector(vadCfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		id:        config.SessionID,
		config:    config,
		playback:  playback,
		vad:       vad,
		resampler: audio.NewResampler(),
		codec:     codec,
		profile:   profile,
		ctx:       ctx,
		cancel:    cancel,
		ttsDone:   make(chan struct{}),
	}

	s.machine = newResponderFSM(fsm.Callbacks{
		"after_event": func(_ context.Context, e *fsm.Event) {
			s.handleStateChange(e)
		},
	})

	config.Bridge.SetFrameProducer(s.nextOutgoingFrame)
	config.Bridge.SetFrameHandler(s.HandleInboundFrame)

	if config.Metrics != nil {
		config.Metrics.SessionStarted()
	}

	return s, nil
}

// ID возвращает идентификатор сессии
func (s *Session) ID() string {
	return s.id
}

// State возвращает текущее состояние сессии
func (s *Session) State() SessionState {
	s.machMutex.Lock()
	defer s.machMutex.Unlock()
	return stateFromString(s.machine.Current())
}

// PlayScript запускает воспроизведение текста в линию.
// Допустим только из состояния Idle; повторный вызов или вызов после
// Stop() возвращает ошибку. Синтез и кодирование выполняются в фоне,
// метод возвращается сразу после запуска конвейера.
func (s *Session) PlayScript(ctx context.Context, text string) error {
	s.machMutex.Lock()
	err := s.machine.Event(ctx, eventPlay)
	s.machMutex.Unlock()
	if err != nil {
		return media.WrapMediaError(media.ErrorCodePlaybackStopped, s.id,
			"PlayScript допустим только из состояния idle", err)
	}

	s.wg.Add(1)
	go s.ttsLoop(text)
	return nil
}

// ttsLoop - единственная горутина, которой позволено блокироваться на
// медленном внешнем продюсере. Тянет TTS фрагменты, ресемплирует,
// кодирует и заполняет playback source.
func (s *Session) ttsLoop(text string) {
	defer s.wg.Done()
	defer close(s.ttsDone)

	slog.Debug("responder.ttsLoop Started", "session_id", s.id)
	defer slog.Debug("responder.ttsLoop Stopped", "session_id", s.id)

	stream, err := s.config.TTS.Synthesize(s.ctx, SynthesisRequest{
		Text:      text,
		SpeakerID: s.config.Speaker,
		Speed:     s.config.Speed,
	})
	if err != nil {
		// Сбой TTS - нормальное завершение, не ошибка звонка
		slog.Warn("responder.ttsLoop синтез не запустился",
			"session_id", s.id, "error", err)
		return
	}
	defer func() { _ = stream.Close() }()

	inRate := stream.SampleRate()
	samplesPerFrame := s.profile.SamplesPerFrame()
	var pending []int16

	for {
		chunk, err := stream.Next(s.ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
				slog.Warn("responder.ttsLoop поток прерван",
					"session_id", s.id, "error", err)
			}
			break
		}
		if len(chunk.Samples) == 0 {
			continue
		}

		s.statsMutex.Lock()
		s.chunksConsumed++
		s.statsMutex.Unlock()

		resampled := s.resampler.ResampleFloat32(chunk.Samples, inRate, s.profile.SampleRate)
		pending = append(pending, audio.Float32ToPCM16(resampled)...)

		for len(pending) >= samplesPerFrame {
			s.produceFrame(pending[:samplesPerFrame])
			pending = pending[samplesPerFrame:]
		}
	}

	// Хвост короче кадра дополняется нулями до полного кадра
	if len(pending) > 0 {
		frame := make([]int16, samplesPerFrame)
		copy(frame, pending)
		s.produceFrame(frame)
	}
}

// produceFrame кодирует один PCM кадр и ставит его в playback source
func (s *Session) produceFrame(pcm []int16) {
	frame := media.AudioFrame{
		Data:       s.codec.Encode(pcm),
		Encoding:   media.EncodingG711,
		SampleRate: s.profile.SampleRate,
		RMS:        media.FrameRMS(pcm),
	}
	if err := s.playback.Enqueue(frame); err != nil {
		// Переполнение восстановимо: кадр поставлен ценой старейшего.
		// Все остальное означает остановку, хвост потока отбрасывается
		if !media.IsRecoverableError(err) {
			return
		}
	}

	s.statsMutex.Lock()
	s.framesProduced++
	s.statsMutex.Unlock()

	if s.config.Metrics != nil {
		s.config.Metrics.FrameProduced()
	}
}

// nextOutgoingFrame - pull-продюсер bridge. Вызывается транспортным тиком
// раз в 20ms и обязан завершаться за микросекунды: только снятие кадра с
// очереди, никакого ресемплинга или кодирования.
func (s *Session) nextOutgoingFrame() []byte {
	switch s.State() {
	case StatePlaying:
		frame, ok := s.playback.ReadNextFrame()
		if ok {
			if s.config.Metrics != nil {
				s.config.Metrics.FramePlayed(s.playback.PlaybackRate())
			}
			return frame.Data
		}
		// Очередь пуста: если продюсер завершился, поток исчерпан - сессия
		// завершается асинхронно, тик не ждет
		select {
		case <-s.ttsDone:
			go s.Stop()
		default:
		}
		return nil
	case StatePaused:
		// Во время паузы AI аудио не достигает транспорта
		return nil
	default:
		return nil
	}
}

// HandleInboundFrame обрабатывает входящий PCM кадр от bridge: прогоняет
// VAD и выполняет barge-in переходы. Регистрируется как OnFrameReceived
// обработчик bridge. Вызывается синхронно на каждый кадр в порядке
// прибытия; стоимость O(длина кадра).
func (s *Session) HandleInboundFrame(frame []int16) {
	result := s.vad.Update(frame)
	if !result.Changed {
		return
	}

	switch result.State {
	case media.VadStateSpeaking:
		s.machMutex.Lock()
		err := s.machine.Event(context.Background(), eventBarge)
		s.machMutex.Unlock()
		if err == nil {
			s.statsMutex.Lock()
			s.bargeIns++
			s.statsMutex.Unlock()
			if s.config.Metrics != nil {
				s.config.Metrics.BargeIn()
			}
		}
	case media.VadStateSilence:
		s.machMutex.Lock()
		_ = s.machine.Event(context.Background(), eventResume)
		s.machMutex.Unlock()
	}
}

// Stop завершает сессию: останавливает TTS горутину, очищает playback
// source и оставляет bridge в состоянии, где последующие запросы кадров
// получают тишину. Идемпотентен; Stopped терминально.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.machMutex.Lock()
		_ = s.machine.Event(context.Background(), eventStop)
		s.machMutex.Unlock()

		s.cancel()
		s.playback.Clear()
		s.playback.Stop()

		if s.config.Metrics != nil {
			s.config.Metrics.SessionStopped()
		}
		slog.Debug("responder.Session Stopped", "session_id", s.id)
	})
}

// Wait блокируется до завершения фоновых горутин сессии.
// Не вызывается из транспортного тика.
func (s *Session) Wait() {
	s.wg.Wait()
}

// GetStatistics возвращает статистику сессии
func (s *Session) GetStatistics() Statistics {
	s.statsMutex.Lock()
	frames := s.framesProduced
	chunks := s.chunksConsumed
	barges := s.bargeIns
	s.statsMutex.Unlock()

	return Statistics{
		State:          s.State(),
		FramesProduced: frames,
		ChunksConsumed: chunks,
		BargeIns:       barges,
		PlaybackDepth:  s.playback.Depth(),
		PlaybackRate:   s.playback.PlaybackRate(),
	}
}

// Playback возвращает playback source сессии (для диагностики)
func (s *Session) Playback() *media.PlaybackSource {
	return s.playback
}

// VAD возвращает детектор речи сессии (для диагностики)
func (s *Session) VAD() media.VoiceActivityDetector {
	return s.vad
}

// Close освобождает ресурсы сессии
func (s *Session) Close() {
	s.Stop()
	s.wg.Wait()
	s.resampler.Close()
}

// handleStateChange вызывается FSM после каждого перехода
func (s *Session) handleStateChange(e *fsm.Event) {
	from := stateFromString(e.Src)
	to := stateFromString(e.Dst)
	slog.Debug("responder.Session переход состояния",
		"session_id", s.id, "from", from.String(), "to", to.String(), "event", e.Event)

	if s.config.Metrics != nil {
		s.config.Metrics.StateTransition(from.String(), to.String())
	}
	if s.config.OnStateChange != nil {
		s.config.OnStateChange(from, to)
	}
}

func stateFromString(state string) SessionState {
	switch state {
	case stateIdle:
		return StateIdle
	case statePlaying:
		return StatePlaying
	case statePaused:
		return StatePaused
	case stateStopped:
		return StateStopped
	default:
		return StateStopped
	}
}
