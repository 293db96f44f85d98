package labelconv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKITTIDataset(t *testing.T, root string, labelFiles map[string]string) string {
	t.Helper()
	for name, content := range labelFiles {
		writeTestImage(t, filepath.Join(root, "images", name+".png"), 64, 48)
		writeTestFile(t, filepath.Join(root, "labels", name+".txt"), content)
	}
	return filepath.Join(root, "labels")
}

func TestKITTIInput(t *testing.T) {
	labelsDir := writeKITTIDataset(t, t.TempDir(), map[string]string{
		"img1": "car 0.00 0 0.00 10.00 20.00 30.00 40.00 1.5 1.6 3.9 1.8 1.4 8.4 0.0\n" +
			"traffic light -1 -1 -10 5.00 5.00 15.00 25.00 -1 -1 -1 -1000 -1000 -1000 -10\n",
	})

	in, err := NewKITTIInput(labelsDir, []string{"car", "traffic light"}, "", nil)
	require.NoError(t, err)

	labels, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "img1.png", labels[0].Image.Filename)
	assert.Equal(t, 64, labels[0].Image.Width)

	require.Len(t, labels[0].Objects, 2)
	assert.Equal(t, Category{ID: 0, Name: "car"}, labels[0].Objects[0].Category)
	assert.Equal(t, BoundingBox{XMin: 10, YMin: 20, XMax: 30, YMax: 40}, labels[0].Objects[0].Box)
	// Category names may contain spaces.
	assert.Equal(t, Category{ID: 1, Name: "traffic light"}, labels[0].Objects[1].Category)
}

func TestKITTIInputRequiresCategoryNames(t *testing.T) {
	_, err := NewKITTIInput(t.TempDir(), nil, "", nil)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestKITTIInputSkipsMalformedLines(t *testing.T) {
	labelsDir := writeKITTIDataset(t, t.TempDir(), map[string]string{
		"img1": "car 0.00 0 0.00 10.00\n" +
			"car 0.00 0 0.00 x y z w 1.5 1.6 3.9 1.8 1.4 8.4 0.0\n" +
			"car 0.00 0 0.00 10.00 20.00 30.00 40.00 1.5 1.6 3.9 1.8 1.4 8.4 0.0\n",
	})

	diag := NewDiagnostics(nil)
	in, err := NewKITTIInput(labelsDir, []string{"car"}, "", diag)
	require.NoError(t, err)

	labels, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Len(t, labels[0].Objects, 1)
	assert.Equal(t, 2, diag.SkippedLines())
}

func TestKITTIInputUnknownCategoryIsFatal(t *testing.T) {
	labelsDir := writeKITTIDataset(t, t.TempDir(), map[string]string{
		"img1": "plane 0.00 0 0.00 10.00 20.00 30.00 40.00 1.5 1.6 3.9 1.8 1.4 8.4 0.0\n",
	})

	in, err := NewKITTIInput(labelsDir, []string{"car"}, "", nil)
	require.NoError(t, err)

	_, err = collectLabels[ImageLabels](in)
	require.Error(t, err)
	assert.True(t, IsCategoryReference(err))
}

func TestKITTIRoundTrip(t *testing.T) {
	root := t.TempDir()
	labelsDir := writeKITTIDataset(t, root, map[string]string{
		"img1": "car 0.00 0 0.00 10.50 20.25 30.00 40.00 1.5 1.6 3.9 1.8 1.4 8.4 0.0\n",
	})

	in, err := NewKITTIInput(labelsDir, []string{"car"}, "", nil)
	require.NoError(t, err)

	outDir := filepath.Join(root, "out")
	require.NoError(t, Convert[ImageLabels](in, NewKITTIOutput(outDir), nil))

	enc, err := os.ReadFile(filepath.Join(outDir, "img1.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"car -1 -1 -10 10.50 20.25 30.00 40.00 -1 -1 -1 -1000 -1000 -1000 -10\n",
		string(enc))
}

func TestKITTIOutputRejectsNonContiguousCategories(t *testing.T) {
	out := NewKITTIOutput(t.TempDir())
	err := out.Begin([]Category{{ID: 0, Name: "car"}, {ID: 2, Name: "person"}})
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}
