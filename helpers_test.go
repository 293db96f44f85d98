package labelconv

// Shared test fixtures.

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeTestImage encodes a solid-color image at path, creating parent
// directories. The encoding follows the file extension (.png or .jpg).
func writeTestImage(t *testing.T, path string, width, height int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	file, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, file.Close()) }()

	switch filepath.Ext(path) {
	case ".png":
		require.NoError(t, png.Encode(file, img))
	default:
		require.NoError(t, jpeg.Encode(file, img, &jpeg.Options{Quality: 90}))
	}
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// collectLabels drains an input's label sequence, returning the collected
// elements and the first fatal error.
func collectLabels[L any](in Input[L]) ([]L, error) {
	var out []L
	for label, err := range in.Labels() {
		if err != nil {
			return out, err
		}
		out = append(out, label)
	}
	return out, nil
}
