package audio

import (
	"math"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	tests := []struct {
		name        string
		samples     []float32
		sampleRate  int
		expectError bool
	}{
		{
			name:        "valid samples",
			samples:     []float32{0, 0.5, -0.5, 1.0, -1.0},
			sampleRate:  16000,
			expectError: false,
		},
		{
			name:        "empty samples",
			samples:     nil,
			sampleRate:  16000,
			expectError: true,
		},
		{
			name:        "invalid sample rate",
			samples:     []float32{0.1},
			sampleRate:  0,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeWAV(tt.samples, tt.sampleRate)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}

			expectedLen := 44 + len(tt.samples)*2
			if len(data) != expectedLen {
				t.Errorf("Expected %d bytes, got %d", expectedLen, len(data))
			}
			if err := ValidateWAV(data); err != nil {
				t.Errorf("Encoded WAV failed validation: %v", err)
			}
		})
	}
}

func TestWAVRoundtrip(t *testing.T) {
	original := make([]float32, 160)
	for i := range original {
		original[i] = float32(math.Sin(float64(i) * 0.1 * 2 * math.Pi))
	}

	data, err := EncodeWAV(original, 16000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	if len(decoded) != len(original) {
		t.Fatalf("Expected %d samples, got %d", len(original), len(decoded))
	}

	// 16-bit quantization bounds the roundtrip error.
	for i := range original {
		if math.Abs(float64(original[i]-decoded[i])) > 1.0/32000 {
			t.Fatalf("Sample %d: expected %f, got %f", i, original[i], decoded[i])
		}
	}
}

func TestEncodeWAVQuantization(t *testing.T) {
	// Values landing between PCM-16 steps must come back within half a
	// step: encode rounds to the nearest step on the same 1/32768 scale
	// the decoder uses.
	samples := []float32{0.587785, -0.587785, 0.25, -0.25, 0.999969}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, _, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	halfStep := 0.5/32768 + 1e-9
	for i := range samples {
		if math.Abs(float64(samples[i]-decoded[i])) > halfStep {
			t.Errorf("Sample %d: expected %f within half a step, got %f", i, samples[i], decoded[i])
		}
	}
}

func TestEncodeWAVClipping(t *testing.T) {
	data, err := EncodeWAV([]float32{2.0, -2.0}, 16000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, _, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded[0] < 0.99 {
		t.Errorf("Expected positive clip near 1.0, got %f", decoded[0])
	}
	if decoded[1] > -0.99 {
		t.Errorf("Expected negative clip near -1.0, got %f", decoded[1])
	}
}

func TestDecodeWAVInvalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: []byte{1, 2, 3}},
		{name: "garbage header", data: make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeWAV(tt.data); err == nil {
				t.Errorf("Expected error for invalid WAV data")
			}
		})
	}
}

func TestGetWAVDuration(t *testing.T) {
	data, err := EncodeWAV(make([]float32, 8000), 16000)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	duration, err := GetWAVDuration(data)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}
	if math.Abs(duration-0.5) > 1e-9 {
		t.Errorf("Expected 0.5 seconds, got %f", duration)
	}
}

func TestPCM16BytesToFloat32(t *testing.T) {
	// 0x4000 little-endian = 16384 = 0.5 in PCM-16.
	data := []byte{0x00, 0x40, 0x00, 0xC0}

	samples, err := PCM16BytesToFloat32(data)
	if err != nil {
		t.Fatalf("Conversion failed: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if math.Abs(float64(samples[0]-0.5)) > 1e-6 {
		t.Errorf("Expected 0.5, got %f", samples[0])
	}
	if math.Abs(float64(samples[1]+0.5)) > 1e-6 {
		t.Errorf("Expected -0.5, got %f", samples[1])
	}
}

func TestPCM16BytesToFloat32OddLength(t *testing.T) {
	if _, err := PCM16BytesToFloat32([]byte{0x01}); err == nil {
		t.Errorf("Expected error for odd byte count")
	}
}
