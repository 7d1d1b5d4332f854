package audio

import (
	"encoding/binary"
	"sync"
)

const (
	silenceSampleRate = 44100
	silenceChannels   = 1
	silenceBitDepth   = 16
)

var (
	silenceOnce sync.Once
	silenceWAV  []byte
)

// SilenceWAV is one second of 44.1 kHz mono 16-bit PCM silence. Callers must
// not modify the returned slice.
func SilenceWAV() []byte {
	silenceOnce.Do(func() {
		blockAlign := silenceChannels * silenceBitDepth / 8
		dataLen := silenceSampleRate * blockAlign

		b := make([]byte, 44+dataLen)
		copy(b[0:], "RIFF")
		binary.LittleEndian.PutUint32(b[4:], uint32(36+dataLen))
		copy(b[8:], "WAVE")
		copy(b[12:], "fmt ")
		binary.LittleEndian.PutUint32(b[16:], 16) // PCM fmt chunk size
		binary.LittleEndian.PutUint16(b[20:], 1)  // PCM
		binary.LittleEndian.PutUint16(b[22:], silenceChannels)
		binary.LittleEndian.PutUint32(b[24:], silenceSampleRate)
		binary.LittleEndian.PutUint32(b[28:], uint32(silenceSampleRate*blockAlign))
		binary.LittleEndian.PutUint16(b[32:], uint16(blockAlign))
		binary.LittleEndian.PutUint16(b[34:], silenceBitDepth)
		copy(b[36:], "data")
		binary.LittleEndian.PutUint32(b[40:], uint32(dataLen))
		silenceWAV = b
	})
	return silenceWAV
}

// Silence wraps SilenceWAV as a clip.
func Silence() Clip {
	return Clip{Data: SilenceWAV(), ContentType: "audio/wav", Ext: "wav", Silent: true}
}
