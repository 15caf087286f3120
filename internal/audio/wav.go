package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

const WAVHeaderSize = 44

// wavHeader represents the canonical 44-byte PCM WAV header
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// WAVHeader returns the header for dataLen bytes of raw recording.
func WAVHeader(dataLen uint32) []byte {
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataLen,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    SampleRate,
		ByteRate:      SampleRate * Channels * BitsPerSample / 8,
		BlockAlign:    Channels * BitsPerSample / 8,
		BitsPerSample: BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataLen,
	}
	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize))
	// Writing a fixed-size struct to a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// WriteWAV wraps size bytes of raw PCM read from pcm into a WAV stream.
func WriteWAV(w io.Writer, pcm io.Reader, size int64) (int64, error) {
	if size < 0 || size > int64(^uint32(0))-36 {
		return 0, fmt.Errorf("recording size out of range: %d", size)
	}
	n, err := w.Write(WAVHeader(uint32(size)))
	total := int64(n)
	if err != nil {
		return total, fmt.Errorf("write WAV header: %w", err)
	}
	copied, err := io.CopyN(w, pcm, size)
	total += copied
	if err != nil {
		return total, fmt.Errorf("write WAV data: %w", err)
	}
	return total, nil
}
