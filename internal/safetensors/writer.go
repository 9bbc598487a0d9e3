package safetensors

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// EncodeTensors serializes the given tensors as a safetensors byte blob.
// Tensors are written as F32 in name order.
func EncodeTensors(tensors []Tensor) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("safetensors: no tensors to encode")
	}

	sorted := append([]Tensor(nil), tensors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]storeHeaderEntry, len(sorted))
	offset := 0

	for i, tn := range sorted {
		if tn.Name == "" {
			return nil, fmt.Errorf("safetensors: tensor %d has empty name", i)
		}

		if _, dup := header[tn.Name]; dup {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", tn.Name)
		}

		elemCount, err := shapeElementCount(tn.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", tn.Name, err)
		}

		if int64(len(tn.Data)) != elemCount {
			return nil, fmt.Errorf(
				"safetensors: tensor %q has %d values but shape %v wants %d",
				tn.Name,
				len(tn.Data),
				tn.Shape,
				elemCount,
			)
		}

		size := int(elemCount) * 4
		header[tn.Name] = storeHeaderEntry{
			DType:   dtypeF32,
			Shape:   append([]int64(nil), tn.Shape...),
			Offsets: [2]int{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: marshal header: %w", err)
	}

	var buf bytes.Buffer

	buf.Grow(8 + len(headerJSON) + offset)

	var lenBytes [8]byte

	binary.LittleEndian.PutUint64(lenBytes[:], uint64(len(headerJSON)))
	buf.Write(lenBytes[:])
	buf.Write(headerJSON)

	var scratch [4]byte

	for _, tn := range sorted {
		for _, v := range tn.Data {
			binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
			buf.Write(scratch[:])
		}
	}

	return buf.Bytes(), nil
}

// WriteFile encodes the tensors and writes them to path.
func WriteFile(path string, tensors []Tensor) error {
	data, err := EncodeTensors(tensors)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}
