package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteWAV записывает mono PCM16 samples как WAV файл (RIFF, 16-bit LE).
// Используется только инструментами верификации и записи: сам движок
// не оперирует WAV контейнером на горячем пути.
func WriteWAV(w io.Writer, pcm []int16, sampleRate uint32) error {
	dataLen := uint32(len(pcm) * BytesPerPCMSample)

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataLen)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)                             // размер fmt chunk
	binary.LittleEndian.PutUint16(header[20:22], 1)                              // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1)                              // mono
	binary.LittleEndian.PutUint32(header[24:28], sampleRate)                     // sample rate
	binary.LittleEndian.PutUint32(header[28:32], sampleRate*BytesPerPCMSample)   // byte rate
	binary.LittleEndian.PutUint16(header[32:34], BytesPerPCMSample)              // block align
	binary.LittleEndian.PutUint16(header[34:36], 16)                             // bits per sample
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataLen)

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("ошибка записи WAV заголовка: %w", err)
	}
	if _, err := w.Write(PCM16ToBytes(pcm)); err != nil {
		return fmt.Errorf("ошибка записи WAV данных: %w", err)
	}
	return nil
}
