package media

import (
	"errors"
	"fmt"
)

// MediaErrorCode определяет типизированные коды ошибок медиа слоя.
// Позволяет классифицировать ошибки по категориям и обрабатывать их
// соответствующим образом.
type MediaErrorCode int

const (
	// Ошибки bridge
	ErrorCodeBridgeNotInitialized MediaErrorCode = iota + 2000
	ErrorCodeBridgeAlreadyStarted
	ErrorCodeBridgeStopped
	ErrorCodeBridgeProfileInvalid

	// Ошибки playback source
	ErrorCodePlaybackStopped
	ErrorCodePlaybackOverflow
	ErrorCodePlaybackConfigInvalid

	// Ошибки кадров
	ErrorCodeFrameSizeInvalid

	// Ошибки VAD
	ErrorCodeVADConfigInvalid
)

// String возвращает строковое представление кода ошибки
func (code MediaErrorCode) String() string {
	switch code {
	case ErrorCodeBridgeNotInitialized:
		return "BridgeNotInitialized"
	case ErrorCodeBridgeAlreadyStarted:
		return "BridgeAlreadyStarted"
	case ErrorCodeBridgeStopped:
		return "BridgeStopped"
	case ErrorCodeBridgeProfileInvalid:
		return "BridgeProfileInvalid"
	case ErrorCodePlaybackStopped:
		return "PlaybackStopped"
	case ErrorCodePlaybackOverflow:
		return "PlaybackOverflow"
	case ErrorCodePlaybackConfigInvalid:
		return "PlaybackConfigInvalid"
	case ErrorCodeFrameSizeInvalid:
		return "FrameSizeInvalid"
	case ErrorCodeVADConfigInvalid:
		return "VADConfigInvalid"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// MediaError базовая структура ошибок медиа слоя.
// Предоставляет расширенную информацию об ошибке включая:
//   - Типизированный код ошибки
//   - Контекстную информацию (параметры, состояние компонента)
//   - Возможность обертывания других ошибок
//   - Идентификатор сессии для сопоставления с логами
type MediaError struct {
	Code      MediaErrorCode
	Message   string
	SessionID string
	Context   map[string]interface{}
	Wrapped   error
}

// Error реализует интерфейс error
func (e *MediaError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("[медиа:%d] сессия %s: %s", e.Code, e.SessionID, e.Message)
	}
	return fmt.Sprintf("[медиа:%d] %s", e.Code, e.Message)
}

// Unwrap возвращает обернутую ошибку, поддерживая errors.Unwrap
func (e *MediaError) Unwrap() error {
	return e.Wrapped
}

// Is поддерживает errors.Is, позволяя сравнивать ошибки по коду
func (e *MediaError) Is(target error) bool {
	if t, ok := target.(*MediaError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewMediaError создает новую ошибку медиа слоя
func NewMediaError(code MediaErrorCode, sessionID, message string) *MediaError {
	return &MediaError{
		Code:      code,
		Message:   message,
		SessionID: sessionID,
	}
}

// WrapMediaError оборачивает существующую ошибку в MediaError
func WrapMediaError(code MediaErrorCode, sessionID, message string, err error) *MediaError {
	return &MediaError{
		Code:      code,
		Message:   message,
		SessionID: sessionID,
		Wrapped:   err,
	}
}

// BridgeError специализированная ошибка для Audio Bridge
type BridgeError struct {
	*MediaError
	ExpectedBytes int
	ActualBytes   int
}

func NewBridgeError(code MediaErrorCode, sessionID, message string, expectedBytes, actualBytes int) *BridgeError {
	return &BridgeError{
		MediaError: &MediaError{
			Code:      code,
			Message:   message,
			SessionID: sessionID,
			Context: map[string]interface{}{
				"expected_bytes": expectedBytes,
				"actual_bytes":   actualBytes,
			},
		},
		ExpectedBytes: expectedBytes,
		ActualBytes:   actualBytes,
	}
}

// Unwrap возвращает встроенную MediaError, чтобы errors.As находил код
// ошибки через цепочку
func (e *BridgeError) Unwrap() error {
	return e.MediaError
}

// PlaybackError специализированная ошибка для Playback Source
type PlaybackError struct {
	*MediaError
	Depth    int
	Capacity int
}

func NewPlaybackError(code MediaErrorCode, sessionID, message string, depth, capacity int) *PlaybackError {
	return &PlaybackError{
		MediaError: &MediaError{
			Code:      code,
			Message:   message,
			SessionID: sessionID,
			Context: map[string]interface{}{
				"depth":    depth,
				"capacity": capacity,
			},
		},
		Depth:    depth,
		Capacity: capacity,
	}
}

// Unwrap возвращает встроенную MediaError, чтобы errors.As находил код
// ошибки через цепочку
func (e *PlaybackError) Unwrap() error {
	return e.MediaError
}

// HasErrorCode проверяет, содержит ли цепочка ошибок указанный код
func HasErrorCode(err error, code MediaErrorCode) bool {
	var mediaErr *MediaError
	if errors.As(err, &mediaErr) {
		return mediaErr.Code == code
	}
	return false
}

// IsRecoverableError определяет, можно ли продолжить обработку после ошибки.
// Политика движка: все покадровые проблемы восстановимы, звонок никогда не
// завершается из-за одного кадра. Невосстановимы только ошибки использования
// жизненного цикла (Start до Initialize, двойной Start).
func IsRecoverableError(err error) bool {
	var mediaErr *MediaError
	if !errors.As(err, &mediaErr) {
		return false
	}

	switch mediaErr.Code {
	case ErrorCodePlaybackOverflow, ErrorCodeFrameSizeInvalid:
		return true
	}
	return false
}
