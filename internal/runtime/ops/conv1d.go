package ops

import (
	"errors"
	"fmt"

	"github.com/xenob8/SimpleTransfromerTTS/internal/runtime/tensor"
)

// Conv1D performs a deterministic CPU Conv1d.
// input: [batch, in_channels, length]
// kernel: [out_channels, in_channels, kernel_size]
func Conv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 {
		return nil, errors.New("ops: conv1d stride/dilation must be > 0")
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 3 || len(kShape) != 3 {
		return nil, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", inShape, kShape)
	}

	batch, inChannels, length := inShape[0], inShape[1], inShape[2]
	outChannels, kInChannels, kernelSize := kShape[0], kShape[1], kShape[2]

	if kInChannels != inChannels {
		return nil, fmt.Errorf("ops: conv1d kernel in_channels mismatch: got %d want %d", kInChannels, inChannels)
	}

	if bias != nil {
		bShape := bias.Shape()
		if len(bShape) != 1 || bShape[0] != outChannels {
			return nil, fmt.Errorf("ops: conv1d bias shape %v does not match out_channels %d", bShape, outChannels)
		}
	}

	outLength := (length+2*padding-dilation*(kernelSize-1)-1)/stride + 1
	if outLength <= 0 {
		return nil, fmt.Errorf("ops: conv1d produced non-positive output length %d", outLength)
	}

	out, err := tensor.Zeros([]int64{batch, outChannels, outLength})
	if err != nil {
		return nil, err
	}

	inputData := input.RawData()
	kernelData := kernel.RawData()
	outData := out.RawData()

	var biasData []float32
	if bias != nil {
		biasData = bias.RawData()
	}

	// im2col: gather input patches once per batch row, then each output
	// channel reduces to a contiguous dot product.
	patchLen := int(inChannels * kernelSize)
	imcol := make([]float32, int(outLength)*patchLen)
	kSizeI := int(kernelSize)
	outLenI := int(outLength)

	for b := range batch {
		for i := range imcol {
			imcol[i] = 0
		}

		for ic := range inChannels {
			inBase := int((b*inChannels + ic) * length)
			for kx := range kernelSize {
				col := int(ic)*kSizeI + int(kx)
				for ox := range outLength {
					inPos := ox*stride - padding + kx*dilation
					if inPos >= 0 && inPos < length {
						imcol[int(ox)*patchLen+col] = inputData[inBase+int(inPos)]
					}
				}
			}
		}

		outBase := int(b * outChannels * outLength)
		for oc := range int(outChannels) {
			kernelRow := kernelData[oc*patchLen : (oc+1)*patchLen]

			biasVal := float32(0)
			if biasData != nil {
				biasVal = biasData[oc]
			}

			outOC := outData[outBase+oc*outLenI : outBase+(oc+1)*outLenI]
			for ox := range outLenI {
				outOC[ox] = tensor.DotProduct(kernelRow, imcol[ox*patchLen:(ox+1)*patchLen]) + biasVal
			}
		}
	}

	return out, nil
}
