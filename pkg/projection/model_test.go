package projection

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// toyModel builds a 4-input, VectorDim-output model where output i is
// frame[i%4] + i, easy to verify by hand.
func toyModel(t *testing.T) *LinearModel {
	t.Helper()

	weights := make([][]float64, VectorDim)
	biases := make([]float64, VectorDim)
	for i := range weights {
		weights[i] = make([]float64, 4)
		weights[i][i%4] = 1
		biases[i] = float64(i)
	}

	m, err := NewLinearModel(weights, biases)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestNewLinearModelValidation(t *testing.T) {
	tests := []struct {
		name    string
		weights [][]float64
		biases  []float64
		wantErr bool
	}{
		{
			name:    "valid 2x3",
			weights: [][]float64{{1, 2, 3}, {4, 5, 6}},
			biases:  []float64{0, 0},
		},
		{
			name:    "empty weights",
			weights: nil,
			biases:  nil,
			wantErr: true,
		},
		{
			name:    "ragged rows",
			weights: [][]float64{{1, 2, 3}, {4, 5}},
			biases:  []float64{0, 0},
			wantErr: true,
		},
		{
			name:    "bias length mismatch",
			weights: [][]float64{{1, 2, 3}, {4, 5, 6}},
			biases:  []float64{0},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLinearModel(tt.weights, tt.biases)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewLinearModel() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProjectDeterministic(t *testing.T) {
	m := toyModel(t)

	frame := []float32{0.5, -1, 2, 0}
	got, err := m.Project(frame)
	if err != nil {
		t.Fatal(err)
	}

	if len(got) != VectorDim {
		t.Fatalf("Project returned %d components, want %d", len(got), VectorDim)
	}
	for i, v := range got {
		want := float64(frame[i%4]) + float64(i)
		if math.Abs(v-want) > 1e-12 {
			t.Errorf("Component %d: got %v, want %v", i, v, want)
		}
	}

	// Same input, same output.
	again, err := m.Project(frame)
	if err != nil {
		t.Fatal(err)
	}
	for i := range got {
		if got[i] != again[i] {
			t.Errorf("Projection not deterministic at %d: %v vs %v", i, got[i], again[i])
		}
	}
}

func TestProjectDimensionMismatch(t *testing.T) {
	m := toyModel(t)

	if _, err := m.Project(make([]float32, 7)); err == nil {
		t.Error("Expected error for frame with wrong channel count")
	}
}

func TestLoadLinearModel(t *testing.T) {
	dir := t.TempDir()

	write := func(name, body string) string {
		t.Helper()
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("valid file", func(t *testing.T) {
		path := write("ok.json", `{
			"weights": [[1, 0], [0, 2]],
			"biases": [0.5, -0.5],
			"input_dim": 2,
			"output_dim": 2,
			"metadata": {"features": ["a", "b"]}
		}`)

		m, err := LoadLinearModel(path)
		if err != nil {
			t.Fatal(err)
		}
		if m.InputDim() != 2 || m.OutputDim() != 2 {
			t.Errorf("Got dims %dx%d, want 2x2", m.OutputDim(), m.InputDim())
		}
		if m.Metadata["features"] == nil {
			t.Error("Metadata was not loaded")
		}

		got, err := m.Project([]float32{1, 1})
		if err != nil {
			t.Fatal(err)
		}
		if got[0] != 1.5 || got[1] != 1.5 {
			t.Errorf("Project = %v, want [1.5 1.5]", got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadLinearModel(filepath.Join(dir, "absent.json")); err == nil {
			t.Error("Expected error for missing file")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		path := write("bad.json", `{"weights": [[1`)
		if _, err := LoadLinearModel(path); err == nil {
			t.Error("Expected error for malformed JSON")
		}
	})

	t.Run("declared dim mismatch", func(t *testing.T) {
		path := write("mismatch.json", `{
			"weights": [[1, 0], [0, 2]],
			"biases": [0, 0],
			"input_dim": 768,
			"output_dim": 2
		}`)
		if _, err := LoadLinearModel(path); err == nil {
			t.Error("Expected error for declared/actual dim mismatch")
		}
	})
}

func TestFrameFromVectorOrdering(t *testing.T) {
	v := make([]float64, VectorDim)
	for i := range v {
		v[i] = float64(i)
	}

	frame, repaired, err := FrameFromVector(v)
	if err != nil {
		t.Fatal(err)
	}
	if repaired != 0 {
		t.Errorf("Expected 0 repairs, got %d", repaired)
	}

	// The positional contract: ul is components 0-1, td is 10-11.
	if frame[UpperLip] != (Point{X: 0, Y: 1}) {
		t.Errorf("UpperLip = %+v, want {0 1}", frame[UpperLip])
	}
	if frame[TongueDorsum] != (Point{X: 10, Y: 11}) {
		t.Errorf("TongueDorsum = %+v, want {10 11}", frame[TongueDorsum])
	}

	// Round trip back to the vector.
	back := VectorFromFrame(frame)
	for i := range v {
		if back[i] != v[i] {
			t.Errorf("Round trip mismatch at %d: got %v, want %v", i, back[i], v[i])
		}
	}
}

func TestFrameFromVectorRepairsNonFinite(t *testing.T) {
	v := make([]float64, VectorDim)
	v[0] = math.NaN()
	v[3] = math.Inf(1)
	v[5] = 2.5

	frame, repaired, err := FrameFromVector(v)
	if err != nil {
		t.Fatal(err)
	}
	if repaired != 2 {
		t.Errorf("Expected 2 repaired coordinates, got %d", repaired)
	}
	if frame[UpperLip].X != 0 {
		t.Errorf("Expected repaired ul.x = 0, got %v", frame[UpperLip].X)
	}
	if frame[LowerLip].Y != 0 {
		t.Errorf("Expected repaired ll.y = 0, got %v", frame[LowerLip].Y)
	}
	if frame[LipIncisor].Y != 2.5 {
		t.Errorf("Expected li.y untouched, got %v", frame[LipIncisor].Y)
	}
}

func TestFrameFromVectorWrongLength(t *testing.T) {
	if _, _, err := FrameFromVector(make([]float64, VectorDim-1)); err == nil {
		t.Error("Expected error for short vector")
	}
}

func TestCalibrationApply(t *testing.T) {
	frame := ArticulatoryFrame{
		UpperLip:  {X: 1, Y: 2},
		TongueTip: {X: -1, Y: 0.5},
	}

	cal := Calibration{
		Sensitivity: 2,
		Offsets: map[Articulator]Point{
			UpperLip: {X: 0.1, Y: -0.1},
		},
	}

	got := cal.Apply(frame)
	if got[UpperLip] != (Point{X: 2.1, Y: 3.9}) {
		t.Errorf("UpperLip = %+v, want {2.1 3.9}", got[UpperLip])
	}
	if got[TongueTip] != (Point{X: -2, Y: 1}) {
		t.Errorf("TongueTip = %+v, want {-2 1}", got[TongueTip])
	}

	// Input frame untouched.
	if frame[UpperLip] != (Point{X: 1, Y: 2}) {
		t.Error("Apply mutated its input")
	}
}

func TestCalibrationZeroSensitivityIsIdentityScale(t *testing.T) {
	frame := ArticulatoryFrame{UpperLip: {X: 3, Y: 4}}

	got := Calibration{}.Apply(frame)
	if got[UpperLip] != (Point{X: 3, Y: 4}) {
		t.Errorf("Zero-value calibration changed the frame: %+v", got[UpperLip])
	}
}
