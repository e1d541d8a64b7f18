// Copyright 2025 The sacembed Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bundle accumulates per-batch embeddings and ratings in order and
// serializes them to a single binary artifact.
//
// Artifact layout, all integers and floats little-endian:
//
//	magic "SACB" | u16 version | u16 model-id length | model-id bytes
//	| u32 N | u32 D | N*D float32 embeddings | N float32 ratings
//	| u64 xxhash64 of all preceding bytes
package bundle

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/cespare/xxhash/v2"
)

// ErrSerialize indicates the artifact could not be written or read back.
var ErrSerialize = errors.New("bundle: serialization failed")

var magic = [4]byte{'S', 'A', 'C', 'B'}

const version uint16 = 1

// Bundle is the complete output of one extraction run. Embeds[i] and
// Ratings[i] always refer to the same source image.
type Bundle struct {
	// Model identifies the encoder that produced the embeddings.
	Model string

	// Embeds is the [N, D] embedding matrix.
	Embeds [][]float32

	// Ratings is the [N] mean-rating vector.
	Ratings []float32
}

// Len returns N.
func (b Bundle) Len() int {
	return len(b.Embeds)
}

// Dim returns D, or 0 for an empty bundle.
func (b Bundle) Dim() int {
	if len(b.Embeds) == 0 {
		return 0
	}
	return len(b.Embeds[0])
}

// Writer accumulates batches in arrival order. It is not safe for concurrent
// use; the pipeline appends strictly after each batch's encode completes.
type Writer struct {
	model   string
	dim     int
	embeds  [][]float32
	ratings []float32
}

// NewWriter creates a Writer for embeddings produced by the named encoder.
func NewWriter(model string) *Writer {
	return &Writer{model: model, dim: -1}
}

// Append adds one batch. Embeddings must all share one dimensionality and
// pair up one-to-one with ratings.
func (w *Writer) Append(embeds [][]float32, ratings []float32) error {
	if len(embeds) != len(ratings) {
		return fmt.Errorf("bundle: batch mismatch: %d embeddings, %d ratings", len(embeds), len(ratings))
	}
	for _, e := range embeds {
		if w.dim == -1 {
			w.dim = len(e)
		}
		if len(e) != w.dim {
			return fmt.Errorf("bundle: ragged embedding: got dim %d, want %d", len(e), w.dim)
		}
	}
	w.embeds = append(w.embeds, embeds...)
	w.ratings = append(w.ratings, ratings...)
	return nil
}

// Len returns the number of rows accumulated so far.
func (w *Writer) Len() int {
	return len(w.embeds)
}

// Bundle concatenates everything accumulated so far, preserving order.
func (w *Writer) Bundle() Bundle {
	return Bundle{Model: w.model, Embeds: w.embeds, Ratings: w.ratings}
}

// WriteFile serializes b to path in one write. No temp-file discipline: a
// failed write may leave a partial file behind, matching the fail-fast,
// re-run-the-job recovery model.
func WriteFile(path string, b Bundle) error {
	data, err := encode(b)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", ErrSerialize, path, err)
	}
	return nil
}

// ReadFile loads and validates an artifact written by WriteFile.
func ReadFile(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: reading %s: %v", ErrSerialize, path, err)
	}
	return decode(data)
}

func encode(b Bundle) ([]byte, error) {
	if len(b.Embeds) != len(b.Ratings) {
		return nil, fmt.Errorf("%w: %d embeddings but %d ratings", ErrSerialize, len(b.Embeds), len(b.Ratings))
	}
	if len(b.Model) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: model identifier too long", ErrSerialize)
	}
	dim := b.Dim()

	var buf bytes.Buffer
	buf.Write(magic[:])
	writeU16(&buf, version)
	writeU16(&buf, uint16(len(b.Model)))
	buf.WriteString(b.Model)
	writeU32(&buf, uint32(len(b.Embeds)))
	writeU32(&buf, uint32(dim))

	for i, e := range b.Embeds {
		if len(e) != dim {
			return nil, fmt.Errorf("%w: ragged embedding at row %d", ErrSerialize, i)
		}
		writeFloats(&buf, e)
	}
	writeFloats(&buf, b.Ratings)

	sum := xxhash.Sum64(buf.Bytes())
	var tail [8]byte
	binary.LittleEndian.PutUint64(tail[:], sum)
	buf.Write(tail[:])

	return buf.Bytes(), nil
}

func decode(data []byte) (Bundle, error) {
	if len(data) < len(magic)+8 {
		return Bundle{}, fmt.Errorf("%w: truncated artifact", ErrSerialize)
	}

	body, tail := data[:len(data)-8], data[len(data)-8:]
	if sum := binary.LittleEndian.Uint64(tail); sum != xxhash.Sum64(body) {
		return Bundle{}, fmt.Errorf("%w: checksum mismatch", ErrSerialize)
	}
	if !bytes.Equal(body[:4], magic[:]) {
		return Bundle{}, fmt.Errorf("%w: bad magic", ErrSerialize)
	}
	r := bytes.NewReader(body[4:])

	ver, err := readU16(r)
	if err != nil {
		return Bundle{}, err
	}
	if ver != version {
		return Bundle{}, fmt.Errorf("%w: unsupported version %d", ErrSerialize, ver)
	}

	modelLen, err := readU16(r)
	if err != nil {
		return Bundle{}, err
	}
	model := make([]byte, modelLen)
	if _, err := r.Read(model); err != nil && modelLen > 0 {
		return Bundle{}, fmt.Errorf("%w: truncated model identifier", ErrSerialize)
	}

	n, err := readU32(r)
	if err != nil {
		return Bundle{}, err
	}
	dim, err := readU32(r)
	if err != nil {
		return Bundle{}, err
	}

	want := int64(n)*int64(dim)*4 + int64(n)*4
	if int64(r.Len()) != want {
		return Bundle{}, fmt.Errorf("%w: payload size %d does not match n=%d dim=%d", ErrSerialize, r.Len(), n, dim)
	}

	b := Bundle{
		Model:   string(model),
		Embeds:  make([][]float32, n),
		Ratings: make([]float32, n),
	}
	for i := range b.Embeds {
		b.Embeds[i] = readFloats(r, int(dim))
	}
	copy(b.Ratings, readFloats(r, int(n)))

	return b, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeFloats(buf *bytes.Buffer, vals []float32) {
	b := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	buf.Write(b)
}

func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, fmt.Errorf("%w: truncated header", ErrSerialize)
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0, fmt.Errorf("%w: truncated header", ErrSerialize)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readFloats(r *bytes.Reader, n int) []float32 {
	b := make([]byte, n*4)
	_, _ = r.Read(b)
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
