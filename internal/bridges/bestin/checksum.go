package bestin

// minFrameLen is the shortest frame the checksum covers: sentinel, header,
// length/type, kind, sequence, checksum.
const minFrameLen = 6

// Checksum computes the rolling checksum over all bytes of frame except the
// final checksum position. The accumulator starts at 3; each byte is XORed
// in and the result incremented, wrapping at 8 bits.
//
// The returned value is what the final byte of a well-formed frame must
// contain. Callers building a command frame write it into the last byte
// before transmission.
//
// Parameters:
//   - frame: Complete frame including the (ignored) trailing checksum byte
//
// Returns:
//   - byte: Computed checksum
func Checksum(frame []byte) byte {
	sum := byte(3)
	if len(frame) == 0 {
		return sum
	}
	for _, b := range frame[:len(frame)-1] {
		sum ^= b
		sum++
	}
	return sum
}

// VerifyChecksum reports whether frame carries a valid trailing checksum.
// Frames shorter than the minimum frame length never verify.
func VerifyChecksum(frame []byte) bool {
	if len(frame) < minFrameLen {
		return false
	}
	return Checksum(frame) == frame[len(frame)-1]
}
