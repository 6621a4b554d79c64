// Package media реализует кадровую обвязку медиа тракта автоответчика.
//
// Пакет связывает DSP примитивы из pkg/audio с транспортами и оркестратором:
//
//   - Bridge - нормализация байтовых потоков транспорта в кадры фиксированного
//     размера и обратно (единый адаптер для RTP и WebRTC leg'ов)
//   - PlaybackSource - ограниченная очередь кадров с watermark-адаптивной
//     скоростью воспроизведения, развязывающая TTS производство от
//     равномерного 20ms потребления
//   - EnergyDetector - детектор речевой активности с адаптивным шумовым
//     полом и гистерезисом, основа barge-in
//   - RTPLeg / WebRTCLeg - транспортные адаптеры поверх bridge
//
// Поток данных:
//
//	TTS -> Resampler -> Codec -> PlaybackSource -> Bridge -> транспорт (исходящий)
//	транспорт -> Bridge -> VAD -> переход состояния responder'а (входящий)
//
// Все компоненты принадлежат ровно одной сессии звонка: разделяемого
// изменяемого состояния между звонками нет. Каждая разделяемая структура
// защищена одним mutex'ом, критические секции O(1) - mutex никогда не
// удерживается через ресемплинг или кодирование.
package media
