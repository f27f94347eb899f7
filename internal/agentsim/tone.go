package agentsim

import (
	"encoding/binary"
	"math"
	"time"
)

const wavHeaderSize = 44

// ToneWAV renders a mono 16-bit sine tone as a WAV file
func ToneWAV(freq float64, length time.Duration, sampleRate int) []byte {
	samples := int(length.Seconds() * float64(sampleRate))
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := 0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return wrapPCM(pcm, sampleRate, 1, 16)
}

func wrapPCM(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	le := binary.LittleEndian
	wav := make([]byte, wavHeaderSize+len(pcm))

	copy(wav[0:4], "RIFF")
	le.PutUint32(wav[4:8], uint32(36+len(pcm)))
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	le.PutUint32(wav[16:20], 16)
	le.PutUint16(wav[20:22], 1) // PCM
	le.PutUint16(wav[22:24], uint16(channels))
	le.PutUint32(wav[24:28], uint32(sampleRate))
	le.PutUint32(wav[28:32], uint32(sampleRate*channels*bitsPerSample/8))
	le.PutUint16(wav[32:34], uint16(channels*bitsPerSample/8))
	le.PutUint16(wav[34:36], uint16(bitsPerSample))

	copy(wav[36:40], "data")
	le.PutUint32(wav[40:44], uint32(len(pcm)))
	copy(wav[44:], pcm)
	return wav
}
