// Package audio реализует DSP примитивы телефонного аудио тракта.
//
// Пакет содержит компоненты без состояния сессии, используемые остальными
// слоями движка автоответчика:
//
//   - MediaProfile - неизменяемое описание аудио формата call leg
//   - Resampler - преобразование частоты дискретизации (PCM16, float32, uint8)
//   - G.711 кодек - A-law/μ-law компандирование с генерацией silence-кадров
//   - WAV helper - контейнер для инструментов верификации
//
// Канонические размеры для телефонии: 8kHz, 20ms кадр = 160 samples =
// 320 байт PCM16 = 160 компандированных байт G.711.
//
// Пример:
//
//	profile := audio.DefaultProfile()
//	codec, err := audio.CodecFor(profile.PayloadType)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resampler := audio.NewResampler()
//	defer resampler.Close()
//
//	// TTS выдал 16kHz, телефонной линии нужно 8kHz
//	pcm8k := resampler.ResampleInt16(pcm16k, 16000, profile.SampleRate)
//	wire := codec.Encode(pcm8k)
package audio
