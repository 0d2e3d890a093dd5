package backend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tu-studio/anira/config"
)

func TestNoneAdapterPassthrough(t *testing.T) {
	n := NewNoneAdapter()
	require.NoError(t, n.PrepareToPlay(4, 4))

	input := []float32{1, 2, 3, 4}
	output := make([]float32, 4)
	require.NoError(t, n.ProcessBlock(input, output))
	assert.Equal(t, input, output)
	assert.Equal(t, config.None, n.Backend())
}

func TestNoneAdapterShapeMismatch(t *testing.T) {
	n := NewNoneAdapter()
	input := []float32{1, 2, 3, 4, 5, 6}
	output := make([]float32, 4)
	require.NoError(t, n.ProcessBlock(input, output))
	assert.Equal(t, []float32{3, 4, 5, 6}, output)

	output2 := make([]float32, 8)
	require.NoError(t, n.ProcessBlock(input, output2))
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 0, 0}, output2)
}

func TestLibTorchAdapterMissingArtifact(t *testing.T) {
	a := NewLibTorchAdapter(LibTorchOptions{ModelPath: ""})
	err := a.PrepareToPlay(4, 4)
	assert.Error(t, err)
}

func TestLibTorchAdapterLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.pt")
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))

	a := NewLibTorchAdapter(LibTorchOptions{ModelPath: path})
	require.NoError(t, a.PrepareToPlay(4, 4))

	input := []float32{1, 2, 3, 4}
	output := make([]float32, 4)
	require.NoError(t, a.ProcessBlock(input, output))
	assert.Equal(t, input, output)

	a.Release()
	err := a.ProcessBlock(input, output)
	assert.Error(t, err)
	assert.Equal(t, config.LibTorch, a.Backend())
}

func TestOnnxAdapterCustomEvaluate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(path, []byte("placeholder"), 0o644))

	called := false
	a := NewOnnxAdapter(OnnxOptions{
		ModelPath: path,
		Evaluate: func(input, output []float32) error {
			called = true
			for i := range output {
				output[i] = 2
			}
			return nil
		},
	})
	require.NoError(t, a.PrepareToPlay(4, 4))

	output := make([]float32, 4)
	require.NoError(t, a.ProcessBlock([]float32{1, 1, 1, 1}, output))
	assert.True(t, called)
	assert.Equal(t, []float32{2, 2, 2, 2}, output)
	assert.Equal(t, config.Onnx, a.Backend())
}
