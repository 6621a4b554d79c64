package media

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	webrtcmedia "github.com/pion/webrtc/v3/pkg/media"

	"github.com/arzzra/auto_responder/pkg/audio"
)

// WebRTCLegConfig содержит параметры конфигурации WebRTC leg
type WebRTCLegConfig struct {
	SessionID string

	Bridge *Bridge

	// Track локальный трек, в который пишутся исходящие кадры
	Track *webrtc.TrackLocalStaticSample
}

// NewTelephonyTrack создает локальный G.711 трек для профиля.
// SDP/ICE согласование остается у вызывающей стороны.
func NewTelephonyTrack(profile audio.MediaProfile, id, streamID string) (*webrtc.TrackLocalStaticSample, error) {
	mime := webrtc.MimeTypePCMU
	if profile.PayloadType == audio.PayloadTypePCMA {
		mime = webrtc.MimeTypePCMA
	}
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  mime,
		ClockRate: profile.SampleRate,
		Channels:  uint16(profile.Channels),
	}, id, streamID)
}

// WebRTCLeg адаптирует WebRTC медиа сессию к bridge.
//
// Исходящий тракт: внутренний pacer раз в FrameDuration забирает wire-кадр
// из bridge и пишет его в локальный трек как media.Sample. Тик только
// снимает готовый кадр: кодирование уже выполнено продюсером.
//
// Входящий тракт: HandleRemoteTrack читает RTP пакеты удаленного трека,
// декодирует G.711 payload по payload типу и отдает PCM в bridge - тот же
// путь нормализации, что и у RTP leg.
type WebRTCLeg struct {
	config  WebRTCLegConfig
	bridge  *Bridge
	profile audio.MediaProfile
	track   *webrtc.TrackLocalStaticSample

	mutex   sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	samplesWritten uint64
}

// NewWebRTCLeg создает WebRTC leg поверх инициализированного bridge
func NewWebRTCLeg(config WebRTCLegConfig) (*WebRTCLeg, error) {
	if config.Bridge == nil || config.Track == nil {
		return nil, NewMediaError(ErrorCodeBridgeNotInitialized, config.SessionID,
			"WebRTC leg требует bridge и track")
	}
	profile := config.Bridge.Profile()
	if err := profile.Validate(); err != nil {
		return nil, WrapMediaError(ErrorCodeBridgeNotInitialized, config.SessionID,
			"bridge не инициализирован профилем", err)
	}

	return &WebRTCLeg{
		config:  config,
		bridge:  config.Bridge,
		profile: profile,
		track:   config.Track,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start запускает pacer исходящих кадров
func (l *WebRTCLeg) Start() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.started {
		return NewMediaError(ErrorCodeBridgeAlreadyStarted, l.config.SessionID,
			"WebRTC leg уже запущен")
	}
	l.started = true

	l.wg.Add(1)
	go l.pacerLoop()
	return nil
}

// Stop останавливает pacer
func (l *WebRTCLeg) Stop() {
	l.mutex.Lock()
	if !l.started {
		l.mutex.Unlock()
		return
	}
	l.started = false
	close(l.stopCh)
	l.mutex.Unlock()

	l.wg.Wait()
}

// pacerLoop пишет один кадр в трек каждые FrameDuration
func (l *WebRTCLeg) pacerLoop() {
	defer l.wg.Done()

	slog.Debug("media.webrtcPacerLoop Started", "session_id", l.config.SessionID)
	ticker := time.NewTicker(l.profile.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			slog.Debug("media.webrtcPacerLoop Stopped", "session_id", l.config.SessionID)
			return
		case <-ticker.C:
			frame := l.bridge.NextOutgoingFrame()
			if frame == nil {
				continue
			}
			err := l.track.WriteSample(webrtcmedia.Sample{
				Data:     frame,
				Duration: l.profile.FrameDuration,
			})
			l.bridge.ReleaseFrame(frame)
			if err != nil {
				slog.Warn("media.WebRTCLeg ошибка записи sample",
					"session_id", l.config.SessionID, "error", err)
				continue
			}
			l.mutex.Lock()
			l.samplesWritten++
			l.mutex.Unlock()
		}
	}
}

// HandleRemoteTrack читает удаленный аудио трек до его завершения.
// Блокирует вызывающую горутину; запускается из OnTrack callback'а
// WebRTC сессии.
func (l *WebRTCLeg) HandleRemoteTrack(track *webrtc.TrackRemote) {
	slog.Debug("media.WebRTCLeg удаленный трек подключен",
		"session_id", l.config.SessionID, "codec", track.Codec().MimeType)

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("media.WebRTCLeg удаленный трек завершен",
					"session_id", l.config.SessionID, "error", err)
			}
			return
		}
		if pkt == nil || len(pkt.Payload) == 0 {
			continue
		}

		var pcm []int16
		switch audio.PayloadType(pkt.PayloadType) {
		case audio.PayloadTypePCMU:
			pcm = audio.DecodeMuLaw(pkt.Payload)
		case audio.PayloadTypePCMA:
			pcm = audio.DecodeALaw(pkt.Payload)
		default:
			continue
		}

		l.bridge.ProcessIncoming(audio.PCM16ToBytes(pcm), l.profile.SampleRate)
	}
}

// SamplesWritten возвращает количество записанных в трек кадров
func (l *WebRTCLeg) SamplesWritten() uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.samplesWritten
}
