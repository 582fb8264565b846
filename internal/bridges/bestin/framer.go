package bestin

// ParseFrames scans buf for frame candidates and returns the complete frames
// found plus the unconsumed tail.
//
// Scanning rules:
//   - A candidate starts at each 0x02 sentinel. Bytes before the first
//     sentinel are discarded (mid-frame reconnects and line noise).
//   - The candidate's class and length are derived from the header and
//     length/type bytes. Candidates whose declared length is shorter than a
//     minimal frame resync by advancing one byte past the sentinel, so a
//     stray 0x02 inside another frame's payload cannot stall the scan.
//   - A candidate extending past the end of buf is incomplete: scanning
//     stops and the remainder is returned for the caller to prepend to the
//     next read.
//   - The cursor always advances by at least one byte per iteration.
//
// Checksum verification is left to the caller; ParseFrames only delimits.
//
// Parameters:
//   - buf: Raw bytes read from the bus, including any carried-over tail
//
// Returns:
//   - frames: Complete frame candidates in stream order
//   - rest: Trailing bytes belonging to an incomplete candidate (copied)
func ParseFrames(buf []byte) (frames []Frame, rest []byte) {
	pos := 0
	for pos < len(buf) {
		start := indexSentinel(buf, pos)
		if start < 0 {
			return frames, nil
		}

		// Need header and length/type bytes to size the candidate.
		if start+3 > len(buf) {
			return frames, copyBytes(buf[start:])
		}

		header := buf[start+1]
		typeByte := buf[start+2]
		class := classifyHeader(header, typeByte)
		length := frameLength(class, typeByte)

		if length < minFrameLen {
			// Declared length cannot hold a checksummed frame; treat the
			// sentinel as payload noise and resync.
			pos = start + 1
			continue
		}

		end := start + length
		if end > len(buf) {
			return frames, copyBytes(buf[start:])
		}

		kindOff, seqOff := kindSeqOffsets(length)
		frames = append(frames, Frame{
			Class: class,
			Kind:  frameKind(buf[start+kindOff]),
			Seq:   buf[start+seqOff],
			Data:  copyBytes(buf[start:end]),
		})

		pos = max(end, start+1)
	}
	return frames, nil
}

// indexSentinel returns the index of the first frame sentinel at or after
// pos, or -1 if none remains.
func indexSentinel(buf []byte, pos int) int {
	for i := pos; i < len(buf); i++ {
		if buf[i] == frameSentinel {
			return i
		}
	}
	return -1
}

func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
