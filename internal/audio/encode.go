package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

const bytesPerSample = 4

// Bytes serializes a sample buffer as little-endian float32 bytes.
func Bytes(samples []float32) []byte {
	raw := make([]byte, len(samples)*bytesPerSample)

	for index, sample := range samples {
		binary.LittleEndian.PutUint32(
			raw[index*bytesPerSample:],
			math.Float32bits(sample),
		)
	}

	return raw
}

// EncodeBuffer serializes a sample buffer as little-endian float32 bytes and
// returns them base64 encoded, the wire format carried in audio_buffers.
func EncodeBuffer(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Bytes(samples))
}

// DecodeBuffer reverses EncodeBuffer. Used by clients and the self test to
// inspect returned audio.
func DecodeBuffer(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio buffer: %w", err)
	}

	samples := make([]float32, len(raw)/bytesPerSample)

	for index := range samples {
		bits := binary.LittleEndian.Uint32(raw[index*bytesPerSample:])
		samples[index] = math.Float32frombits(bits)
	}

	return samples, nil
}
