package projection

import (
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// LinearModel is the fixed affine map from an embedding frame to the
// articulatory vector: out = W*frame + b. It is loaded once at startup and
// read-only for the lifetime of the session.
type LinearModel struct {
	weights   *mat.Dense
	biases    *mat.VecDense
	inputDim  int
	outputDim int

	// Metadata is the free-form metadata block of the weights file.
	Metadata map[string]interface{}
}

// linearModelFile mirrors the JSON weights document.
type linearModelFile struct {
	Weights   [][]float64            `json:"weights"`
	Biases    []float64              `json:"biases"`
	InputDim  int                    `json:"input_dim"`
	OutputDim int                    `json:"output_dim"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// NewLinearModel builds a model from explicit weights and biases.
// weights is outputDim rows of inputDim columns.
func NewLinearModel(weights [][]float64, biases []float64) (*LinearModel, error) {
	outputDim := len(weights)
	if outputDim == 0 {
		return nil, fmt.Errorf("weights matrix is empty")
	}
	inputDim := len(weights[0])
	if inputDim == 0 {
		return nil, fmt.Errorf("weights matrix has empty rows")
	}
	if len(biases) != outputDim {
		return nil, fmt.Errorf("biases length %d does not match output dim %d", len(biases), outputDim)
	}

	flat := make([]float64, 0, outputDim*inputDim)
	for i, row := range weights {
		if len(row) != inputDim {
			return nil, fmt.Errorf("weights row %d has %d columns, want %d", i, len(row), inputDim)
		}
		flat = append(flat, row...)
	}

	return &LinearModel{
		weights:   mat.NewDense(outputDim, inputDim, flat),
		biases:    mat.NewVecDense(outputDim, append([]float64(nil), biases...)),
		inputDim:  inputDim,
		outputDim: outputDim,
	}, nil
}

// LoadLinearModel reads and validates a JSON weights file. The declared
// input_dim/output_dim must match the actual matrix shape; the shape is
// never trusted at point of use.
func LoadLinearModel(path string) (*LinearModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weights file: %w", err)
	}

	var doc linearModelFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse weights file: %w", err)
	}

	m, err := NewLinearModel(doc.Weights, doc.Biases)
	if err != nil {
		return nil, fmt.Errorf("invalid weights file: %w", err)
	}

	if doc.InputDim != 0 && doc.InputDim != m.inputDim {
		return nil, fmt.Errorf("declared input_dim %d does not match matrix columns %d", doc.InputDim, m.inputDim)
	}
	if doc.OutputDim != 0 && doc.OutputDim != m.outputDim {
		return nil, fmt.Errorf("declared output_dim %d does not match matrix rows %d", doc.OutputDim, m.outputDim)
	}

	m.Metadata = doc.Metadata
	return m, nil
}

// InputDim returns the expected embedding frame length.
func (m *LinearModel) InputDim() int { return m.inputDim }

// OutputDim returns the projected vector length.
func (m *LinearModel) OutputDim() int { return m.outputDim }

// Project applies the affine map to one embedding frame.
func (m *LinearModel) Project(frame []float32) ([]float64, error) {
	if len(frame) != m.inputDim {
		return nil, fmt.Errorf("frame has %d channels, model expects %d", len(frame), m.inputDim)
	}

	x := mat.NewVecDense(m.inputDim, nil)
	for i, v := range frame {
		x.SetVec(i, float64(v))
	}

	var out mat.VecDense
	out.MulVec(m.weights, x)
	out.AddVec(&out, m.biases)

	result := make([]float64, m.outputDim)
	copy(result, out.RawVector().Data)
	return result, nil
}
