package bestin

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  byte
	}{
		{
			name:  "empty frame",
			frame: nil,
			want:  3,
		},
		{
			name:  "single byte covers nothing",
			frame: []byte{0xAA},
			want:  3,
		},
		{
			name:  "sentinel only",
			frame: []byte{0x02, 0x00},
			want:  2, // 3^0x02=1, +1
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.frame); got != tt.want {
				t.Errorf("Checksum() = %#02x, want %#02x", got, tt.want)
			}
		})
	}
}

func TestChecksum_RoundTrip(t *testing.T) {
	// Gas status response frame with a zeroed checksum slot.
	frame := []byte{0x02, 0x31, 0x80, 0x05, 0x05, 0x01, 0x00, 0x00, 0x00, 0x00}
	frame[len(frame)-1] = Checksum(frame)

	if !VerifyChecksum(frame) {
		t.Fatalf("VerifyChecksum() = false after stamping, frame %x", frame)
	}

	// Any single-byte corruption must fail verification.
	for i := range frame[:len(frame)-1] {
		corrupted := append([]byte(nil), frame...)
		corrupted[i] ^= 0x01
		if VerifyChecksum(corrupted) {
			t.Errorf("VerifyChecksum() = true with byte %d corrupted", i)
		}
	}
}

func TestVerifyChecksum_TooShort(t *testing.T) {
	frames := [][]byte{
		nil,
		{0x02},
		{0x02, 0x31, 0x02, 0x00, 0x00}, // five bytes, one short of minimum
	}
	for _, frame := range frames {
		if VerifyChecksum(frame) {
			t.Errorf("VerifyChecksum(%x) = true, want false", frame)
		}
	}
}
