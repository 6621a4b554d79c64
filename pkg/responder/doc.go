// Package responder реализует оркестратор AI автоответчика для одного
// call leg'а: воспроизведение синтезированной речи в линию с barge-in.
//
// Состав пакета:
//   - Session: машина состояний звонка (idle -> playing -> {paused <->
//     playing} -> stopped) и конвейер TTS -> ресемплер -> кодек ->
//     playback source
//   - Engine/Stream: абстракция TTS движка с инкрементальной выдачей
//     фрагментов
//   - WSEngine: TTS движок поверх WebSocket
//   - Metrics: экспорт метрик в Prometheus
//
// Пример использования:
//
//	bridge := media.NewBridge(media.BridgeConfig{SessionID: callID})
//	bridge.Initialize(audio.DefaultProfile())
//	bridge.Start()
//
//	session, err := responder.NewSession(responder.SessionConfig{
//	    TTS:    responder.NewWSEngine(responder.DefaultWSEngineConfig(url)),
//	    Bridge: bridge,
//	})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	session.PlayScript(ctx, "Здравствуйте! Чем могу помочь?")
//
// Транспортный тик (RTPLeg.NextPacket или WebRTCLeg) забирает кадры через
// bridge; входящие кадры проходят через VAD, речь абонента ставит
// воспроизведение на паузу, устойчивая тишина возобновляет его.
package responder
