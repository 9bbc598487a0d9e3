package model

import (
	"fmt"

	"github.com/xenob8/SimpleTransfromerTTS/internal/safetensors"
)

// StateDict exports every parameter (and batchnorm running statistic) under
// its dotted checkpoint name, ready for safetensors encoding.
func (m *Model) StateDict() []safetensors.Tensor {
	var out []safetensors.Tensor

	m.encoderPrenet.export(&out)
	m.decoderPrenet.export(&out)
	m.postnet.export(&out)
	m.posEncoding.export("pos_encoding", &out)

	for i, block := range m.encoderBlocks {
		block.export(fmt.Sprintf("encoder_block_%d", i+1), &out)
	}

	for i, block := range m.decoderBlocks {
		block.export(fmt.Sprintf("decoder_block_%d", i+1), &out)
	}

	m.normMemory.export("norm_memory", &out)
	m.melLinear.export("linear_1", &out)
	m.gateLinear.export("linear_2", &out)

	return out
}

// Save writes the model weights to a safetensors checkpoint at path.
func (m *Model) Save(path string) error {
	return safetensors.WriteFile(path, m.StateDict())
}
