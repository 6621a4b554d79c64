package media

import (
	"testing"

	"github.com/pion/rtp"

	"github.com/arzzra/auto_responder/pkg/audio"
)

// TestRTPLegRequiresBridge проверяет отказ без инициализированного bridge
func TestRTPLegRequiresBridge(t *testing.T) {
	if _, err := NewRTPLeg(RTPLegConfig{}); err == nil {
		t.Fatal("ожидалась ошибка без bridge")
	}

	// Bridge без Initialize тоже не годится
	b := NewBridge(BridgeConfig{})
	if _, err := NewRTPLeg(RTPLegConfig{Bridge: b}); err == nil {
		t.Fatal("ожидалась ошибка на неинициализированном bridge")
	}
}

// TestRTPLegIncomingDecode проверяет декодирование входящих пакетов по
// payload типу пакета
func TestRTPLegIncomingDecode(t *testing.T) {
	var received [][]int16
	b := newTestBridge(t, BridgeConfig{
		OnFrameReceived: func(frame []int16) {
			received = append(received, frame)
		},
	})
	defer b.Close()

	leg, err := NewRTPLeg(RTPLegConfig{Bridge: b})
	if err != nil {
		t.Fatal(err)
	}

	// mu-law кадр тишины декодируется в нулевой PCM кадр
	payload := make([]byte, 160)
	for i := range payload {
		payload[i] = 0xFF
	}
	leg.HandleIncoming(&rtp.Packet{
		Header:  rtp.Header{PayloadType: uint8(audio.PayloadTypePCMU)},
		Payload: payload,
	})

	if len(received) != 1 {
		t.Fatalf("кадров получено: %d", len(received))
	}
	for i, s := range received[0] {
		if s != 0 {
			t.Fatalf("sample %d: mu-law тишина декодирована в %d", i, s)
		}
	}

	in, _, _ := leg.Statistics()
	if in != 1 {
		t.Errorf("входящих пакетов: %d", in)
	}
}

// TestRTPLegIgnoresForeignPayload проверяет пропуск пакетов с чужим
// payload типом (DTMF, comfort noise)
func TestRTPLegIgnoresForeignPayload(t *testing.T) {
	b := newTestBridge(t, BridgeConfig{})
	defer b.Close()

	leg, err := NewRTPLeg(RTPLegConfig{Bridge: b})
	if err != nil {
		t.Fatal(err)
	}

	leg.HandleIncoming(&rtp.Packet{
		Header:  rtp.Header{PayloadType: 101}, // telephone-event
		Payload: []byte{0x01, 0x02},
	})
	leg.HandleIncoming(nil)
	leg.HandleIncoming(&rtp.Packet{}) // пустой payload

	in, _, ignored := leg.Statistics()
	if in != 0 {
		t.Errorf("входящих пакетов: %d, ожидалось 0", in)
	}
	if ignored != 1 {
		t.Errorf("пропущенных пакетов: %d, ожидался 1", ignored)
	}
}

// TestRTPLegOutgoingSequence проверяет монотонность sequence number и
// приращение timestamp на SamplesPerFrame за кадр
func TestRTPLegOutgoingSequence(t *testing.T) {
	b := newTestBridge(t, BridgeConfig{})
	defer b.Close()

	leg, err := NewRTPLeg(RTPLegConfig{
		Bridge:          b,
		SSRC:            0xDEADBEEF,
		InitialSequence: 100,
	})
	if err != nil {
		t.Fatal(err)
	}

	var prevSeq uint16
	var prevTS uint32
	for i := 0; i < 5; i++ {
		pkt := leg.NextPacket()
		if pkt == nil {
			t.Fatalf("пакет %d: nil", i)
		}
		if pkt.Header.Version != 2 {
			t.Fatalf("версия RTP: %d", pkt.Header.Version)
		}
		if pkt.Header.SSRC != 0xDEADBEEF {
			t.Fatalf("SSRC: %08X", pkt.Header.SSRC)
		}
		if pkt.Header.PayloadType != uint8(audio.PayloadTypePCMU) {
			t.Fatalf("payload type: %d", pkt.Header.PayloadType)
		}
		if len(pkt.Payload) != 160 {
			t.Fatalf("размер payload: %d", len(pkt.Payload))
		}

		if i > 0 {
			if pkt.Header.SequenceNumber != prevSeq+1 {
				t.Fatalf("sequence не монотонен: %d после %d", pkt.Header.SequenceNumber, prevSeq)
			}
			if pkt.Header.Timestamp != prevTS+160 {
				t.Fatalf("timestamp не растет на 160: %d после %d", pkt.Header.Timestamp, prevTS)
			}
		}
		prevSeq = pkt.Header.SequenceNumber
		prevTS = pkt.Header.Timestamp
	}

	_, out, _ := leg.Statistics()
	if out != 5 {
		t.Errorf("исходящих пакетов: %d", out)
	}
}

// TestRTPLegEndToEnd проверяет сквозной путь: InjectOutgoing -> NextPacket
func TestRTPLegEndToEnd(t *testing.T) {
	b := newTestBridge(t, BridgeConfig{})
	defer b.Close()

	leg, err := NewRTPLeg(RTPLegConfig{Bridge: b})
	if err != nil {
		t.Fatal(err)
	}

	wire := make([]byte, 160)
	for i := range wire {
		wire[i] = 0x33
	}
	b.InjectOutgoing(wire)

	pkt := leg.NextPacket()
	if pkt == nil {
		t.Fatal("пакет не сформирован")
	}
	if pkt.Payload[0] != 0x33 {
		t.Error("payload не совпадает с инжектированным кадром")
	}
}
