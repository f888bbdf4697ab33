package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestArtifact(t *testing.T, dir string) string {
	t.Helper()
	scaler, err := NewScaler([]float64{70, 20}, []float64{10, 5})
	require.NoError(t, err)

	bundlePath := filepath.Join(dir, "rain_predictor.json")
	modelPath := filepath.Join(dir, "rain_model.json")
	require.NoError(t, WriteArtifact(bundlePath, modelPath, "rain_model.json", "test-1", scaler, logisticSpec(3, -1, 0)))
	return bundlePath
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bundlePath := writeTestArtifact(t, dir)

	p, err := Load(context.Background(), FileSource{}, bundlePath, "")
	require.NoError(t, err)
	assert.Equal(t, "test-1", p.Version())

	// At the fitted mean the logit is 0.
	prob, err := p.Probability(70, 20)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, prob, 1e-12)

	high, err := p.Probability(95, 18)
	require.NoError(t, err)
	assert.Greater(t, high, 0.5)

	low, err := p.Probability(40, 30)
	require.NoError(t, err)
	assert.Less(t, low, 0.5)
}

func TestLoadModelOverride(t *testing.T) {
	dir := t.TempDir()
	bundlePath := writeTestArtifact(t, dir)

	other := filepath.Join(t.TempDir(), "override.json")
	require.NoError(t, writeJSON(other, logisticSpec(0, 0, 100)))

	p, err := Load(context.Background(), FileSource{}, bundlePath, other)
	require.NoError(t, err)

	prob, err := p.Probability(70, 20)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, prob, 1e-9)
}

func TestLoadRejectsFeatureMismatch(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(bundlePath, []byte(`{
		"features": ["temperature", "humidity"],
		"scaler": {"mean": [0, 0], "scale": [1, 1]},
		"model_path": "m.json"
	}`), 0o644))

	_, err := Load(context.Background(), FileSource{}, bundlePath, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "features")
}

func TestLoadMissingBundle(t *testing.T) {
	_, err := Load(context.Background(), FileSource{}, filepath.Join(t.TempDir(), "nope.json"), "")
	assert.Error(t, err)
}

func TestPredictorRejectsOutOfRangeOutput(t *testing.T) {
	scaler, err := NewScaler([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	net, err := NewNetwork(NetworkSpec{InputDim: 2, Layers: []LayerSpec{{
		Type: LayerDense, Activation: ActivationLinear, Kernel: [][]float64{{1}, {1}},
	}}})
	require.NoError(t, err)
	p, err := NewPredictor("raw", scaler, net)
	require.NoError(t, err)

	_, err = p.Probability(3, 4)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	assert.Equal(t, filepath.Join("artifacts", "rain_model.json"), Resolve(filepath.Join("artifacts", "rain_predictor.json"), "rain_model.json"))
	assert.Equal(t, "/abs/model.json", Resolve("artifacts/bundle.json", "/abs/model.json"))
	assert.Equal(t, "s3://models/v2/rain_model.json", Resolve("s3://models/v2/rain_predictor.json", "rain_model.json"))
	assert.Equal(t, "s3://other/m.json", Resolve("artifacts/bundle.json", "s3://other/m.json"))
}

func TestSplitObjectRef(t *testing.T) {
	bucket, key, err := splitObjectRef("s3://models/v2/rain_model.json")
	require.NoError(t, err)
	assert.Equal(t, "models", bucket)
	assert.Equal(t, "v2/rain_model.json", key)

	_, _, err = splitObjectRef("s3://models")
	assert.Error(t, err)
}

func TestFileSourceRejectsObjectRefs(t *testing.T) {
	_, err := FileSource{}.Open(context.Background(), "s3://models/rain.json")
	assert.Error(t, err)
}
