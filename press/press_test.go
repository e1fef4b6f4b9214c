// press/press_test.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

package press

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allAlgorithms = []Algorithm{Huffman, LZSS, Joined}

func testInputs() map[string][]byte {
	rng := rand.New(rand.NewSource(0x1234))
	random := make([]byte, 64*1024)
	rng.Read(random)

	skewed := make([]byte, 32*1024)
	for i := range skewed {
		// Heavily skewed distribution so the Huffman tree has depth.
		skewed[i] = byte(rng.Intn(4) * rng.Intn(64))
	}

	allValues := make([]byte, 256)
	for i := range allValues {
		allValues[i] = byte(i)
	}

	return map[string][]byte{
		"empty":      {},
		"hello":      []byte("hello, world"),
		"repeated":   bytes.Repeat([]byte{'A'}, 1000),
		"two-bytes":  bytes.Repeat([]byte{0xAB, 0xCD}, 5000),
		"text":       bytes.Repeat([]byte("The quick brown fox jumps over the lazy dog.\n"), 100),
		"random":     random,
		"skewed":     skewed,
		"all-values": allValues,
	}
}

func TestRoundTrip(t *testing.T) {
	for name, input := range testInputs() {
		for _, algo := range allAlgorithms {
			compressed, err := Compress(input, algo)
			require.NoError(t, err, "%s/%s", name, algo)
			require.NotEmpty(t, compressed)
			assert.Equal(t, byte(algo), compressed[0], "%s/%s: algorithm byte", name, algo)

			decompressed, err := Decompress(compressed)
			require.NoError(t, err, "%s/%s", name, algo)
			assert.Equal(t, input, decompressed, "%s/%s", name, algo)
		}
	}
}

func TestCompressDeterministic(t *testing.T) {
	input := []byte("some bytes that should compress identically every time")
	for _, algo := range allAlgorithms {
		a, err := Compress(input, algo)
		require.NoError(t, err)
		b, err := Compress(input, algo)
		require.NoError(t, err)
		assert.Equal(t, a, b, "%s", algo)
	}
}

func TestLZSSRatioOnRepetitiveText(t *testing.T) {
	input := bytes.Repeat([]byte("The quick brown fox jumps over the lazy dog.\n"), 100)
	compressed, err := Compress(input, LZSS)
	require.NoError(t, err)
	ratio := float64(len(compressed)) / float64(len(input))
	assert.Less(t, ratio, 0.5, "lzss ratio on repetitive text")
}

func TestHuffmanSingleSymbol(t *testing.T) {
	input := bytes.Repeat([]byte{'A'}, 1000)
	compressed, err := Compress(input, Huffman)
	require.NoError(t, err)

	// One symbol codes as a single bit, so the bitstream is 1000 bits.
	wantBits := 1 + huffHeaderSize + (1000+7)/8
	assert.Equal(t, wantBits, len(compressed))

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, decompressed)
}

func TestDecompressRejectsGarbage(t *testing.T) {
	_, err := Decompress(nil)
	assert.ErrorIs(t, err, ErrCorruptFrame)

	_, err = Decompress([]byte{7, 1, 2, 3})
	assert.ErrorIs(t, err, ErrCorruptFrame, "unknown algorithm byte")

	// Huffman frame shorter than its fixed header.
	_, err = Decompress(append([]byte{byte(Huffman)}, make([]byte, 100)...))
	assert.ErrorIs(t, err, ErrCorruptFrame)

	// Truncated Huffman bitstream: claim 100 bytes, provide none.
	frame := make([]byte, 1+huffHeaderSize)
	frame[0] = byte(Huffman)
	binary.LittleEndian.PutUint64(frame[1+65*8:], 1) // freq['A']
	binary.LittleEndian.PutUint64(frame[1+256*8:], 100)
	_, err = Decompress(frame)
	assert.ErrorIs(t, err, ErrCorruptFrame)
}

func TestLZSSInvalidOffset(t *testing.T) {
	// One group: flag says back-reference, offset 5 with nothing produced.
	frame := []byte{byte(LZSS), 0x01, 0x00, 0x05, 0x03}
	_, err := Decompress(frame)
	assert.ErrorIs(t, err, ErrCorruptFrame)

	// Truncated reference payload.
	frame = []byte{byte(LZSS), 0x01, 0x00}
	_, err = Decompress(frame)
	assert.ErrorIs(t, err, ErrCorruptFrame)
}

func TestLZSSOverlappingCopy(t *testing.T) {
	// "abcabcabc..." forces references whose length exceeds their offset.
	input := bytes.Repeat([]byte("abc"), 2000)
	compressed, err := Compress(input, LZSS)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(input)/4)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, decompressed)
}

func TestParallelContainer(t *testing.T) {
	// Three chunks' worth of compressible data.
	phrase := []byte("backup engines compress the same sentence surprisingly often. ")
	input := bytes.Repeat(phrase, (2*ChunkSize+ChunkSize/2)/len(phrase)+1)
	require.GreaterOrEqual(t, len(input), 2*ChunkSize)

	compressed, err := Compress(input, LZSS)
	require.NoError(t, err)

	require.Equal(t, byte(0xEE), compressed[0], "parallel marker")
	require.Equal(t, byte(LZSS), compressed[1], "container algorithm byte")

	wantChunks := (len(input) + ChunkSize - 1) / ChunkSize
	gotChunks := int(binary.LittleEndian.Uint32(compressed[2:6]))
	require.Equal(t, wantChunks, gotChunks)

	// Each chunk is a complete frame and round-trips on its own; the
	// records exactly cover the container.
	rest := compressed[6:]
	var joined []byte
	for i := 0; i < gotChunks; i++ {
		require.GreaterOrEqual(t, len(rest), 4)
		n := int(binary.LittleEndian.Uint32(rest[:4]))
		rest = rest[4:]
		require.GreaterOrEqual(t, len(rest), n)

		chunk, err := Decompress(rest[:n])
		require.NoError(t, err, "chunk %d", i)
		joined = append(joined, chunk...)
		rest = rest[n:]
	}
	require.Empty(t, rest)
	assert.Equal(t, input, joined)

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, decompressed)
}

func TestParallelThresholds(t *testing.T) {
	// Just below two chunks stays a single frame.
	input := make([]byte, 2*ChunkSize-1)
	compressed, err := Compress(input, Huffman)
	require.NoError(t, err)
	assert.Equal(t, byte(Huffman), compressed[0])

	// Exactly two chunks wraps in the container.
	input = make([]byte, 2*ChunkSize)
	compressed, err = Compress(input, Huffman)
	require.NoError(t, err)
	assert.Equal(t, byte(0xEE), compressed[0])

	decompressed, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, input, decompressed)
}

func TestParallelContainerCorruption(t *testing.T) {
	_, err := Decompress([]byte{0xEE, byte(LZSS), 0xFF, 0xFF})
	assert.ErrorIs(t, err, ErrCorruptFrame, "truncated container header")

	_, err = Decompress([]byte{0xEE, 9, 1, 0, 0, 0})
	assert.ErrorIs(t, err, ErrCorruptFrame, "bad container algorithm byte")

	// Chunk length pointing past the end of input.
	bad := []byte{0xEE, byte(LZSS), 1, 0, 0, 0, 0xFF, 0, 0, 0, byte(LZSS)}
	_, err = Decompress(bad)
	assert.ErrorIs(t, err, ErrCorruptFrame)

	// Trailing garbage after the last chunk.
	good, err := Compress(make([]byte, 2*ChunkSize), Huffman)
	require.NoError(t, err)
	_, err = Decompress(append(good, 0x00))
	assert.ErrorIs(t, err, ErrCorruptFrame)
}

func TestParseAlgorithm(t *testing.T) {
	for name, want := range map[string]Algorithm{
		"huffman": Huffman, "lzss": LZSS, "joined": Joined, "LZSS": LZSS, "": LZSS,
	} {
		got, err := ParseAlgorithm(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseAlgorithm("zstd")
	assert.Error(t, err)
}

func TestCompressRejectsUnknownAlgorithm(t *testing.T) {
	_, err := Compress([]byte("x"), Algorithm(9))
	assert.Error(t, err)
}

func TestJoinedLayering(t *testing.T) {
	input := strings.Repeat("layered frames: huffman inside, lzss outside. ", 50)
	compressed, err := Compress([]byte(input), Joined)
	require.NoError(t, err)
	require.Equal(t, byte(Joined), compressed[0])

	// Peeling the outer LZSS layer by hand must yield a valid Huffman
	// frame body.
	inner, err := lzssDecompress(compressed[1:])
	require.NoError(t, err)
	decoded, err := huffDecompress(inner)
	require.NoError(t, err)
	assert.Equal(t, []byte(input), decoded)
}
