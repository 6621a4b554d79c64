package audio

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pion/sdp/v3"
)

// PayloadType представляет тип кодека согласно RFC 3551
type PayloadType uint8

// Константы payload типов из RFC 3551.
// Движок поддерживает только узкополосный G.711 путь (8kHz),
// остальные значения приведены для распознавания в SDP.
const (
	PayloadTypePCMU = PayloadType(0) // μ-law
	PayloadTypePCMA = PayloadType(8) // A-law
)

// BytesPerPCMSample размер одного linear PCM16 sample в байтах
const BytesPerPCMSample = 2

func (pt PayloadType) String() string {
	switch pt {
	case PayloadTypePCMU:
		return "PCMU"
	case PayloadTypePCMA:
		return "PCMA"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(pt))
	}
}

// MediaProfile описывает аудио формат, используемый на протяжении жизни call leg.
// Профиль неизменяем после создания: все компоненты движка (bridge, playback
// source, VAD, responder) рассчитывают размеры кадров из одного профиля.
//
// Инвариант: каждый кадр, пересекающий границу компонента, содержит ровно
// SamplesPerFrame() samples (PCMFrameBytes() байт для linear PCM16,
// WireFrameBytes() байт для компандированного G.711).
type MediaProfile struct {
	PayloadType   PayloadType   // Кодек транспортного уровня
	SampleRate    uint32        // Частота дискретизации в Hz
	FrameDuration time.Duration // Длительность одного кадра (ptime)
	Channels      int           // Количество каналов (движок поддерживает только mono)
}

// DefaultProfile возвращает стандартный телефонный профиль:
// G.711 μ-law, 8kHz, 20ms кадры, mono.
func DefaultProfile() MediaProfile {
	return MediaProfile{
		PayloadType:   PayloadTypePCMU,
		SampleRate:    8000,
		FrameDuration: time.Millisecond * 20,
		Channels:      1,
	}
}

// Validate проверяет корректность профиля
func (p MediaProfile) Validate() error {
	if p.PayloadType != PayloadTypePCMU && p.PayloadType != PayloadTypePCMA {
		return fmt.Errorf("неподдерживаемый payload type: %d", p.PayloadType)
	}
	if p.SampleRate == 0 {
		return fmt.Errorf("sample rate должен быть положительным")
	}
	if p.FrameDuration <= 0 {
		return fmt.Errorf("длительность кадра должна быть положительной")
	}
	if p.Channels != 1 {
		return fmt.Errorf("поддерживается только mono, получено каналов: %d", p.Channels)
	}
	return nil
}

// SamplesPerFrame возвращает количество samples в одном кадре
func (p MediaProfile) SamplesPerFrame() int {
	return int(float64(p.SampleRate) * p.FrameDuration.Seconds())
}

// PCMFrameBytes возвращает размер кадра в байтах для linear PCM16
func (p MediaProfile) PCMFrameBytes() int {
	return p.SamplesPerFrame() * BytesPerPCMSample
}

// WireFrameBytes возвращает размер кадра в байтах на транспортном уровне.
// Для G.711 один sample занимает один байт (2:1 компрессия относительно PCM16).
func (p MediaProfile) WireFrameBytes() int {
	return p.SamplesPerFrame()
}

func (p MediaProfile) String() string {
	return fmt.Sprintf("%s/%d/%dms", p.PayloadType, p.SampleRate, p.FrameDuration.Milliseconds())
}

// ProfileFromSDP строит MediaProfile из согласованного SDP media description.
//
// Берется первый поддерживаемый формат из списка (PCMU=0 или PCMA=8) и
// атрибут ptime, если он присутствует (по умолчанию 20ms). Сама SDP
// сигнализация остается вне движка: сюда передается уже согласованное
// описание аудио секции.
//
// Пример использования:
//
//	для секции "m=audio 5004 RTP/AVP 8 0" с "a=ptime:30"
//	будет построен профиль PCMA/8000/30ms.
func ProfileFromSDP(md *sdp.MediaDescription) (MediaProfile, error) {
	if md == nil {
		return MediaProfile{}, fmt.Errorf("media description не задан")
	}
	if !strings.EqualFold(md.MediaName.Media, "audio") {
		return MediaProfile{}, fmt.Errorf("ожидалась audio секция, получено: %s", md.MediaName.Media)
	}

	profile := DefaultProfile()

	found := false
	for _, format := range md.MediaName.Formats {
		pt, err := strconv.Atoi(format)
		if err != nil {
			continue
		}
		switch PayloadType(pt) {
		case PayloadTypePCMU, PayloadTypePCMA:
			profile.PayloadType = PayloadType(pt)
			found = true
		}
		if found {
			break
		}
	}
	if !found {
		return MediaProfile{}, fmt.Errorf("в SDP нет поддерживаемого G.711 формата: %v", md.MediaName.Formats)
	}

	for _, attr := range md.Attributes {
		if attr.Key != "ptime" {
			continue
		}
		ms, err := strconv.Atoi(strings.TrimSpace(attr.Value))
		if err != nil || ms <= 0 {
			return MediaProfile{}, fmt.Errorf("некорректный ptime в SDP: %q", attr.Value)
		}
		profile.FrameDuration = time.Duration(ms) * time.Millisecond
	}

	return profile, nil
}
