package audio

import (
	"testing"
	"time"

	"github.com/pion/sdp/v3"
)

// TestProfileValidate проверяет валидацию медиа профиля
func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile MediaProfile
		wantErr bool
	}{
		{"профиль по умолчанию", DefaultProfile(), false},
		{"A-law 30ms", MediaProfile{PayloadTypePCMA, 8000, 30 * time.Millisecond, 1}, false},
		{"неподдерживаемый кодек", MediaProfile{PayloadType(96), 8000, 20 * time.Millisecond, 1}, true},
		{"нулевая частота", MediaProfile{PayloadTypePCMU, 0, 20 * time.Millisecond, 1}, true},
		{"нулевая длительность кадра", MediaProfile{PayloadTypePCMU, 8000, 0, 1}, true},
		{"stereo", MediaProfile{PayloadTypePCMU, 8000, 20 * time.Millisecond, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, ожидалась ошибка: %v", err, tt.wantErr)
			}
		})
	}
}

// TestProfileFrameSizes проверяет расчет размеров кадров
func TestProfileFrameSizes(t *testing.T) {
	tests := []struct {
		name      string
		profile   MediaProfile
		samples   int
		pcmBytes  int
		wireBytes int
	}{
		{"8kHz 20ms", DefaultProfile(), 160, 320, 160},
		{"8kHz 30ms", MediaProfile{PayloadTypePCMA, 8000, 30 * time.Millisecond, 1}, 240, 480, 240},
		{"8kHz 10ms", MediaProfile{PayloadTypePCMU, 8000, 10 * time.Millisecond, 1}, 80, 160, 80},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.SamplesPerFrame(); got != tt.samples {
				t.Errorf("SamplesPerFrame() = %d, ожидалось %d", got, tt.samples)
			}
			if got := tt.profile.PCMFrameBytes(); got != tt.pcmBytes {
				t.Errorf("PCMFrameBytes() = %d, ожидалось %d", got, tt.pcmBytes)
			}
			if got := tt.profile.WireFrameBytes(); got != tt.wireBytes {
				t.Errorf("WireFrameBytes() = %d, ожидалось %d", got, tt.wireBytes)
			}
		})
	}
}

// TestProfileFromSDP проверяет построение профиля из SDP media description
func TestProfileFromSDP(t *testing.T) {
	audioMD := func(formats []string, attrs ...sdp.Attribute) *sdp.MediaDescription {
		return &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   "audio",
				Formats: formats,
			},
			Attributes: attrs,
		}
	}

	tests := []struct {
		name     string
		md       *sdp.MediaDescription
		wantPT   PayloadType
		wantDur  time.Duration
		wantErr  bool
	}{
		{
			name:    "PCMU по умолчанию",
			md:      audioMD([]string{"0"}),
			wantPT:  PayloadTypePCMU,
			wantDur: 20 * time.Millisecond,
		},
		{
			name:    "PCMA с ptime 30",
			md:      audioMD([]string{"8"}, sdp.Attribute{Key: "ptime", Value: "30"}),
			wantPT:  PayloadTypePCMA,
			wantDur: 30 * time.Millisecond,
		},
		{
			name:    "первый поддерживаемый из списка",
			md:      audioMD([]string{"96", "8", "0"}),
			wantPT:  PayloadTypePCMA,
			wantDur: 20 * time.Millisecond,
		},
		{
			name:    "нет поддерживаемых форматов",
			md:      audioMD([]string{"96", "97"}),
			wantErr: true,
		},
		{
			name:    "некорректный ptime",
			md:      audioMD([]string{"0"}, sdp.Attribute{Key: "ptime", Value: "abc"}),
			wantErr: true,
		},
		{
			name:    "nil media description",
			md:      nil,
			wantErr: true,
		},
		{
			name: "не audio секция",
			md: &sdp.MediaDescription{
				MediaName: sdp.MediaName{Media: "video", Formats: []string{"0"}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := ProfileFromSDP(tt.md)
			if tt.wantErr {
				if err == nil {
					t.Fatal("ожидалась ошибка")
				}
				return
			}
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if profile.PayloadType != tt.wantPT {
				t.Errorf("payload type = %v, ожидался %v", profile.PayloadType, tt.wantPT)
			}
			if profile.FrameDuration != tt.wantDur {
				t.Errorf("frame duration = %v, ожидалось %v", profile.FrameDuration, tt.wantDur)
			}
			if err := profile.Validate(); err != nil {
				t.Errorf("профиль из SDP не прошел валидацию: %v", err)
			}
		})
	}
}
