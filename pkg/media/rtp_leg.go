package media

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/pion/rtp"

	"github.com/arzzra/auto_responder/pkg/audio"
)

// RTPLegConfig содержит параметры конфигурации RTP leg
type RTPLegConfig struct {
	SessionID string

	// SSRC исходящего потока; 0 = сгенерировать случайный
	SSRC uint32

	// InitialSequence начальный sequence number; 0 = случайный
	InitialSequence uint16

	Bridge *Bridge
}

// RTPLeg адаптирует RTP транспорт к bridge.
//
// Входящий тракт: HandleIncoming принимает *rtp.Packet, выбирает кодек по
// payload типу пакета (A-law=8 / μ-law=0), декодирует payload в linear PCM16
// и передает в Bridge.ProcessIncoming. Пакеты с чужим payload типом
// (DTMF, comfort noise) молча пропускаются.
//
// Исходящий тракт: NextPacket вызывается транспортным 20ms тиком, забирает
// один wire-кадр из bridge и оборачивает его в RTP пакет с монотонным
// sequence number и timestamp, растущим на SamplesPerFrame за кадр.
// Вся тяжелая работа (ресемплинг, кодирование) уже сделана продюсером:
// тик только снимает кадр с очереди.
type RTPLeg struct {
	config  RTPLegConfig
	bridge  *Bridge
	profile audio.MediaProfile

	mutex     sync.Mutex
	sequence  uint16
	timestamp uint32
	ssrc      uint32

	packetsIn      uint64
	packetsOut     uint64
	packetsIgnored uint64
}

// NewRTPLeg создает RTP leg поверх инициализированного bridge
func NewRTPLeg(config RTPLegConfig) (*RTPLeg, error) {
	if config.Bridge == nil {
		return nil, NewMediaError(ErrorCodeBridgeNotInitialized, config.SessionID,
			"RTP leg требует bridge")
	}
	profile := config.Bridge.Profile()
	if err := profile.Validate(); err != nil {
		return nil, WrapMediaError(ErrorCodeBridgeNotInitialized, config.SessionID,
			"bridge не инициализирован профилем", err)
	}

	leg := &RTPLeg{
		config:    config,
		bridge:    config.Bridge,
		profile:   profile,
		ssrc:      config.SSRC,
		sequence:  config.InitialSequence,
		timestamp: randUint32(),
	}
	if leg.ssrc == 0 {
		leg.ssrc = randUint32()
	}
	if leg.sequence == 0 {
		leg.sequence = uint16(randUint32())
	}
	return leg, nil
}

// HandleIncoming обрабатывает входящий RTP пакет.
// Кодек выбирается по payload типу пакета, не по профилю: удаленная сторона
// может переключать A-law/μ-law в рамках согласованного набора.
func (l *RTPLeg) HandleIncoming(pkt *rtp.Packet) {
	if pkt == nil || len(pkt.Payload) == 0 {
		return
	}

	var pcm []int16
	switch audio.PayloadType(pkt.PayloadType) {
	case audio.PayloadTypePCMU:
		pcm = audio.DecodeMuLaw(pkt.Payload)
	case audio.PayloadTypePCMA:
		pcm = audio.DecodeALaw(pkt.Payload)
	default:
		l.mutex.Lock()
		l.packetsIgnored++
		l.mutex.Unlock()
		return
	}

	l.mutex.Lock()
	l.packetsIn++
	l.mutex.Unlock()

	l.bridge.ProcessIncoming(audio.PCM16ToBytes(pcm), l.profile.SampleRate)
}

// NextPacket формирует следующий исходящий RTP пакет.
// Вызывается один раз на транспортный тик; выполняется за микросекунды.
func (l *RTPLeg) NextPacket() *rtp.Packet {
	frame := l.bridge.NextOutgoingFrame()
	if frame == nil {
		return nil
	}

	l.mutex.Lock()
	l.sequence++
	l.timestamp += uint32(l.profile.SamplesPerFrame())
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    uint8(l.profile.PayloadType),
			SequenceNumber: l.sequence,
			Timestamp:      l.timestamp,
			SSRC:           l.ssrc,
		},
		Payload: frame,
	}
	l.packetsOut++
	l.mutex.Unlock()

	return pkt
}

// Statistics возвращает счетчики пакетов leg'а
func (l *RTPLeg) Statistics() (in, out, ignored uint64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.packetsIn, l.packetsOut, l.packetsIgnored
}

func randUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		slog.Warn("media.RTPLeg crypto/rand недоступен, используется нулевое значение")
		return 1
	}
	return binary.BigEndian.Uint32(b[:])
}
