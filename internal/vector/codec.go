package vector

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// Header describes a serialized vector set.
type Header struct {
	Metric     Metric
	Generation string
	Dimension  int
	Count      int
}

type jsonIndex struct {
	Vectors          []Entry `json:"vectors"`
	DistanceFunction string  `json:"distanceFunction"`
	Generation       string  `json:"generation,omitempty"`
}

// EncodeJSON writes entries as {"vectors":[{"id","vector"}],"distanceFunction":...}.
func EncodeJSON(w io.Writer, h Header, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	doc := jsonIndex{
		Vectors:          entries,
		DistanceFunction: h.Metric.DistanceFunction(),
		Generation:       h.Generation,
	}
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return nil
}

// DecodeJSON reads the format written by EncodeJSON.
func DecodeJSON(r io.Reader) (Header, []Entry, error) {
	var doc jsonIndex
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Header{}, nil, fmt.Errorf("decode index: %w", err)
	}
	metric, err := ParseMetric(doc.DistanceFunction)
	if err != nil {
		return Header{}, nil, err
	}
	h := Header{Metric: metric, Generation: doc.Generation, Count: len(doc.Vectors)}
	if len(doc.Vectors) > 0 {
		h.Dimension = len(doc.Vectors[0].Vector)
	}
	return h, doc.Vectors, nil
}

var binaryMagic = [4]byte{'S', 'H', 'R', 'V'}

const binaryVersion uint32 = 1

// Header counts come from disk; these bound what DecodeBinary allocates up front.
const (
	maxBinaryDimension = 1 << 16
	maxPrealloc        = 1 << 16
)

// EncodeBinary writes a compact little-endian form: magic, version, metric, generation,
// dimension (4), n (4), then per vector: idLen (4), id bytes, vector (dimension*4 bytes).
func EncodeBinary(w io.Writer, h Header, entries []Entry) error {
	dim := h.Dimension
	if dim == 0 && len(entries) > 0 {
		dim = len(entries[0].Vector)
	}
	if _, err := w.Write(binaryMagic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, binaryVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := writeString(w, string(h.Metric)); err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	if err := writeString(w, h.Generation); err != nil {
		return fmt.Errorf("write generation: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %q has %d, expected %d", ErrDimensionMismatch, e.ID, len(e.Vector), dim)
		}
		if err := writeString(w, e.ID); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(Float32sToBytes(e.Vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// DecodeBinary reads the format written by EncodeBinary.
func DecodeBinary(r io.Reader) (Header, []Entry, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Header{}, nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != binaryMagic {
		return Header{}, nil, errors.New("not a binary vector file")
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return Header{}, nil, fmt.Errorf("read version: %w", err)
	}
	if version != binaryVersion {
		return Header{}, nil, fmt.Errorf("unsupported binary vector version %d", version)
	}
	metricName, err := readString(r)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read metric: %w", err)
	}
	metric, err := ParseMetric(metricName)
	if err != nil {
		return Header{}, nil, err
	}
	generation, err := readString(r)
	if err != nil {
		return Header{}, nil, fmt.Errorf("read generation: %w", err)
	}
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return Header{}, nil, fmt.Errorf("read dimensions: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return Header{}, nil, fmt.Errorf("read count: %w", err)
	}
	if dim > maxBinaryDimension {
		return Header{}, nil, fmt.Errorf("dimension %d too large", dim)
	}
	entries := make([]Entry, 0, min(n, maxPrealloc))
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return Header{}, nil, fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return Header{}, nil, fmt.Errorf("read vector: %w", err)
		}
		entries = append(entries, Entry{ID: id, Vector: BytesToFloat32s(buf)})
	}
	h := Header{Metric: metric, Generation: generation, Dimension: int(dim), Count: int(n)}
	return h, entries, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > 1<<20 {
		return "", fmt.Errorf("string length %d too large", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

// Float32sToBytes encodes s as little-endian IEEE 754 values.
func Float32sToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// BytesToFloat32s decodes the output of Float32sToBytes.
func BytesToFloat32s(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
