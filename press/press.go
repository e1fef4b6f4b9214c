// press/press.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package press

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Algorithm selects the frame coder. The value doubles as the algorithm byte
// that leads every frame, so the output is self-describing and Decompress
// needs no side channel.
type Algorithm byte

const (
	Huffman Algorithm = 0
	LZSS    Algorithm = 1
	Joined  Algorithm = 2
)

// parallelMarker leads a multi-chunk container. It is reserved and must
// never collide with an algorithm code.
const parallelMarker = 0xEE

// ChunkSize is the split granularity of the parallel container. Inputs
// smaller than two chunks aren't worth the fan-out and stay single-frame.
const ChunkSize = 8 << 20

var ErrCorruptFrame = errors.New("corrupt compressed frame")

func (a Algorithm) valid() bool { return a <= Joined }

func (a Algorithm) String() string {
	switch a {
	case Huffman:
		return "huffman"
	case LZSS:
		return "lzss"
	case Joined:
		return "joined"
	default:
		return fmt.Sprintf("algorithm(%d)", byte(a))
	}
}

// ParseAlgorithm accepts the names used by the CLI and task files.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(s) {
	case "huffman":
		return Huffman, nil
	case "lzss", "":
		return LZSS, nil
	case "joined":
		return Joined, nil
	default:
		return 0, fmt.Errorf("unknown compression algorithm %q", s)
	}
}

// Compress encodes data as a self-describing frame. Inputs of at least two
// chunks are split into independently compressed chunks and wrapped in the
// parallel container.
func Compress(data []byte, algo Algorithm) ([]byte, error) {
	if !algo.valid() {
		return nil, fmt.Errorf("unknown compression algorithm %d", algo)
	}
	if len(data) >= 2*ChunkSize {
		return compressParallel(data, algo)
	}
	return compressSingle(data, algo), nil
}

// Decompress dispatches on the leading byte: an algorithm code or the
// parallel container marker.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame: %w", ErrCorruptFrame)
	}
	if data[0] == parallelMarker {
		return decompressParallel(data[1:])
	}
	return decompressSingle(data)
}

func compressSingle(data []byte, algo Algorithm) []byte {
	var body []byte
	switch algo {
	case Huffman:
		body = huffCompress(data)
	case LZSS:
		body = lzssCompress(data)
	case Joined:
		body = lzssCompress(huffCompress(data))
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(algo))
	return append(out, body...)
}

func decompressSingle(data []byte) ([]byte, error) {
	algo := Algorithm(data[0])
	if !algo.valid() {
		return nil, fmt.Errorf("unknown algorithm byte 0x%02x: %w", data[0], ErrCorruptFrame)
	}
	body := data[1:]
	switch algo {
	case Huffman:
		return huffDecompress(body)
	case LZSS:
		return lzssDecompress(body)
	default:
		inner, err := lzssDecompress(body)
		if err != nil {
			return nil, err
		}
		return huffDecompress(inner)
	}
}

func workerCount() int {
	n := runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	return n
}

// Container layout: [0xEE][algo][count:4 LE] then count records of
// [length:4 LE][chunk], each chunk a complete single frame with its own
// algorithm byte. Chunks compress in any order into index slots; the
// concatenation order is fixed.
func compressParallel(data []byte, algo Algorithm) ([]byte, error) {
	nChunks := (len(data) + ChunkSize - 1) / ChunkSize
	chunks := make([][]byte, nChunks)

	var g errgroup.Group
	g.SetLimit(workerCount())
	for i := 0; i < nChunks; i++ {
		i := i
		g.Go(func() error {
			lo := i * ChunkSize
			hi := lo + ChunkSize
			if hi > len(data) {
				hi = len(data)
			}
			chunks[i] = compressSingle(data[lo:hi], algo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 6
	for _, c := range chunks {
		total += 4 + len(c)
	}
	out := make([]byte, 0, total)
	out = append(out, parallelMarker, byte(algo))
	out = binary.LittleEndian.AppendUint32(out, uint32(nChunks))
	for _, c := range chunks {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(c)))
		out = append(out, c...)
	}
	return out, nil
}

func decompressParallel(data []byte) ([]byte, error) {
	if len(data) < 5 {
		return nil, fmt.Errorf("parallel container too small: %w", ErrCorruptFrame)
	}
	if algo := Algorithm(data[0]); !algo.valid() {
		return nil, fmt.Errorf("parallel container algorithm byte 0x%02x: %w",
			data[0], ErrCorruptFrame)
	}
	nChunks := int(binary.LittleEndian.Uint32(data[1:5]))
	// Each record needs at least a length word plus an algorithm byte.
	if nChunks <= 0 || nChunks > len(data[5:])/5+1 {
		return nil, fmt.Errorf("parallel container chunk count %d: %w", nChunks, ErrCorruptFrame)
	}

	// Slice out each chunk's byte range before touching any of them.
	chunks := make([][]byte, nChunks)
	rest := data[5:]
	for i := 0; i < nChunks; i++ {
		if len(rest) < 4 {
			return nil, fmt.Errorf("parallel container truncated chunk table: %w", ErrCorruptFrame)
		}
		n := int(binary.LittleEndian.Uint32(rest[:4]))
		rest = rest[4:]
		if n > len(rest) {
			return nil, fmt.Errorf("parallel container chunk overruns input: %w", ErrCorruptFrame)
		}
		chunks[i] = rest[:n]
		rest = rest[n:]
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("parallel container trailing bytes: %w", ErrCorruptFrame)
	}

	results := make([][]byte, nChunks)
	var g errgroup.Group
	g.SetLimit(workerCount())
	for i := 0; i < nChunks; i++ {
		i := i
		g.Go(func() error {
			if len(chunks[i]) == 0 || Algorithm(chunks[i][0]) == parallelMarker {
				return fmt.Errorf("chunk %d is not an algorithm frame: %w", i, ErrCorruptFrame)
			}
			d, err := decompressSingle(chunks[i])
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]byte, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
