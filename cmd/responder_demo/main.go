package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/auto_responder/pkg/audio"
	"github.com/arzzra/auto_responder/pkg/media"
	"github.com/arzzra/auto_responder/pkg/responder"
)

func main() {
	var (
		ttsURL      = flag.String("tts", "", "WebSocket TTS сервер (пусто = встроенный тональный генератор)")
		text        = flag.String("text", "Здравствуйте! Оставьте сообщение после сигнала.", "Текст для воспроизведения")
		speaker     = flag.String("speaker", "", "Идентификатор голоса TTS")
		wavOut      = flag.String("wav", "", "Файл для записи исходящего аудио (WAV)")
		metricsAddr = flag.String("metrics", "", "Адрес HTTP метрик (например :9090)")
		debug       = flag.Bool("debug", false, "Подробное логирование")
	)
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	metrics := responder.NewMetrics(prometheus.DefaultRegisterer)
	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			log.Printf("Метрики доступны на %s/metrics", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Printf("HTTP метрики: %v", err)
			}
		}()
	}

	profile := audio.DefaultProfile()
	bridge := media.NewBridge(media.BridgeConfig{SessionID: "demo"})
	if err := bridge.Initialize(profile); err != nil {
		log.Fatalf("Инициализация bridge: %v", err)
	}
	if err := bridge.Start(); err != nil {
		log.Fatalf("Запуск bridge: %v", err)
	}
	defer bridge.Close()

	var engine responder.Engine
	if *ttsURL != "" {
		engine = responder.NewWSEngine(responder.DefaultWSEngineConfig(*ttsURL))
		log.Printf("TTS: %s", *ttsURL)
	} else {
		engine = &toneEngine{rate: 16000, freq: 440, duration: 2 * time.Second}
		log.Print("TTS: встроенный тональный генератор 440Hz")
	}

	session, err := responder.NewSession(responder.SessionConfig{
		TTS:     engine,
		Bridge:  bridge,
		Speaker: *speaker,
		Metrics: metrics,
	})
	if err != nil {
		log.Fatalf("Создание сессии: %v", err)
	}
	defer session.Close()

	leg, err := media.NewRTPLeg(media.RTPLegConfig{SessionID: "demo", Bridge: bridge})
	if err != nil {
		log.Fatalf("Создание RTP leg: %v", err)
	}

	if err := session.PlayScript(context.Background(), *text); err != nil {
		log.Fatalf("Запуск воспроизведения: %v", err)
	}
	log.Printf("Сессия %s: воспроизведение запущено", session.ID())

	// Имитация транспортного тика: раз в 20ms формируем RTP пакет,
	// декодируем его payload обратно для записи
	var recorded []int16
	ticker := time.NewTicker(profile.FrameDuration)
	defer ticker.Stop()

	for session.State() != responder.StateStopped {
		<-ticker.C
		pkt := leg.NextPacket()
		if pkt == nil {
			continue
		}
		if *wavOut != "" {
			recorded = append(recorded, audio.DecodeMuLaw(pkt.Payload)...)
		}
		bridge.ReleaseFrame(pkt.Payload)
	}

	stats := session.GetStatistics()
	log.Printf("Готово: кадров произведено %d, фрагментов TTS %d",
		stats.FramesProduced, stats.ChunksConsumed)

	if *wavOut != "" {
		f, err := os.Create(*wavOut)
		if err != nil {
			log.Fatalf("Создание WAV файла: %v", err)
		}
		defer f.Close()
		if err := audio.WriteWAV(f, recorded, profile.SampleRate); err != nil {
			log.Fatalf("Запись WAV: %v", err)
		}
		log.Printf("Записано %d samples в %s", len(recorded), *wavOut)
	}
}

// toneEngine синтезирует синусоидальный тон вместо речи: позволяет
// прогнать весь конвейер без внешнего TTS сервера
type toneEngine struct {
	rate     uint32
	freq     float64
	duration time.Duration
}

func (e *toneEngine) Synthesize(ctx context.Context, req responder.SynthesisRequest) (responder.Stream, error) {
	total := int(float64(e.rate) * e.duration.Seconds())
	const chunkSize = 1024

	ch := make(chan responder.Chunk, 4)
	go func() {
		defer close(ch)
		for off := 0; off < total; off += chunkSize {
			n := chunkSize
			if off+n > total {
				n = total - off
			}
			samples := make([]float32, n)
			for i := range samples {
				samples[i] = float32(0.3 * math.Sin(2*math.Pi*e.freq*float64(off+i)/float64(e.rate)))
			}
			select {
			case ch <- responder.Chunk{Samples: samples}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return responder.NewChunkStream(ch, e.rate, nil), nil
}
