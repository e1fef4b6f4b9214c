// press/lzss.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package press

import (
	"encoding/binary"
	"fmt"
)

const (
	lzWindowSize = 32768
	lzMinMatch   = 4
	lzMaxMatch   = 255

	lzHashBits = 15
	lzHashSize = 1 << lzHashBits
	lzHashMask = lzHashSize - 1

	// How many chain predecessors to examine per position.
	lzMaxChain = 64
)

func lzHash(b0, b1, b2 byte) uint32 {
	return ((uint32(b0) << 10) ^ (uint32(b1) << 5) ^ uint32(b2)) & lzHashMask
}

// tokenWriter groups tokens eight at a time behind a flag byte. Bit i of the
// flag (LSB first) marks token i as a back-reference.
type tokenWriter struct {
	out     []byte
	flagIdx int
	flagBit uint
}

func (w *tokenWriter) add(isRef bool, payload ...byte) {
	if w.flagBit == 0 {
		w.flagIdx = len(w.out)
		w.out = append(w.out, 0)
	}
	if isRef {
		w.out[w.flagIdx] |= 1 << w.flagBit
	}
	w.out = append(w.out, payload...)
	w.flagBit = (w.flagBit + 1) % 8
}

// lzssCompress encodes input with hash-chained match search over a 32 KiB
// window. References are 3 bytes: 16-bit big-endian offset, 8-bit length.
func lzssCompress(input []byte) []byte {
	w := tokenWriter{out: make([]byte, 0, len(input)/2+16)}

	head := make([]int32, lzHashSize)
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, len(input))

	insert := func(pos int) {
		if pos+3 > len(input) {
			return
		}
		h := lzHash(input[pos], input[pos+1], input[pos+2])
		prev[pos] = head[h]
		head[h] = int32(pos)
	}

	cursor := 0
	for cursor < len(input) {
		bestLen, bestOff := 0, 0

		if cursor+lzMinMatch <= len(input) {
			maxLen := len(input) - cursor
			if maxLen > lzMaxMatch {
				maxLen = lzMaxMatch
			}

			h := lzHash(input[cursor], input[cursor+1], input[cursor+2])
			cand := head[h]
			for chain := 0; cand >= 0 && chain < lzMaxChain; chain++ {
				off := cursor - int(cand)
				if off > lzWindowSize {
					break
				}

				l := 0
				for l < maxLen && input[int(cand)+l] == input[cursor+l] {
					l++
				}
				if l > bestLen {
					bestLen, bestOff = l, off
					if l == maxLen {
						break
					}
				}
				cand = prev[cand]
			}
		}

		if bestLen >= lzMinMatch {
			var ref [3]byte
			binary.BigEndian.PutUint16(ref[:2], uint16(bestOff))
			ref[2] = byte(bestLen)
			w.add(true, ref[:]...)

			// Keep the chains populated across the span the match covers
			// so later searches still see these positions.
			for i := 0; i < bestLen; i++ {
				insert(cursor + i)
			}
			cursor += bestLen
		} else {
			w.add(false, input[cursor])
			insert(cursor)
			cursor++
		}
	}

	return w.out
}

func lzssDecompress(input []byte) ([]byte, error) {
	out := make([]byte, 0, len(input)*2)

	i := 0
	for i < len(input) {
		flag := input[i]
		i++

		for bit := 0; bit < 8 && i < len(input); bit++ {
			if flag&(1<<bit) == 0 {
				out = append(out, input[i])
				i++
				continue
			}

			if i+3 > len(input) {
				return nil, fmt.Errorf("truncated lzss reference: %w", ErrCorruptFrame)
			}
			off := int(binary.BigEndian.Uint16(input[i : i+2]))
			length := int(input[i+2])
			i += 3

			if off == 0 || off > len(out) {
				return nil, fmt.Errorf("lzss offset %d outside %d produced bytes: %w",
					off, len(out), ErrCorruptFrame)
			}
			// Byte-at-a-time copy: length may exceed offset, in which case
			// the reference replicates its own output.
			for j := 0; j < length; j++ {
				out = append(out, out[len(out)-off])
			}
		}
	}

	return out, nil
}
