package labelconv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeYOLODataset lays out a minimal dataset: a data.yaml, one image per
// entry of labelFiles and the matching label files.
func writeYOLODataset(t *testing.T, root, configYAML string, labelFiles map[string]string) string {
	t.Helper()

	configPath := filepath.Join(root, "data.yaml")
	writeTestFile(t, configPath, configYAML)
	for name, content := range labelFiles {
		writeTestImage(t, filepath.Join(root, "images", name+".png"), 64, 48)
		writeTestFile(t, filepath.Join(root, "labels", name+".txt"), content)
	}
	return configPath
}

func TestYOLOInputParsesNamesMapping(t *testing.T) {
	configPath := writeYOLODataset(t, t.TempDir(),
		"train: images\nnc: 2\nnames:\n  0: car\n  1: person\n",
		map[string]string{"img1": "0 0.5 0.5 0.25 0.25\n1 0.25 0.25 0.125 0.125\n"})

	in, err := NewYOLOInput(configPath, "train", nil)
	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: 0, Name: "car"}, {ID: 1, Name: "person"}}, in.Categories())

	labels, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "img1.png", labels[0].Image.Filename)
	assert.Equal(t, 64, labels[0].Image.Width)
	assert.Equal(t, 48, labels[0].Image.Height)

	require.Len(t, labels[0].Objects, 2)
	// (0.5, 0.5, 0.25, 0.25) in a 64x48 image.
	assert.Equal(t, BoundingBox{XMin: 24, YMin: 18, XMax: 40, YMax: 30}, labels[0].Objects[0].Box)
	assert.Equal(t, Category{ID: 1, Name: "person"}, labels[0].Objects[1].Category)
}

func TestYOLOInputParsesNamesList(t *testing.T) {
	configPath := writeYOLODataset(t, t.TempDir(),
		"train: images\nnames:\n- car\n- person\n",
		map[string]string{"img1": ""})

	in, err := NewYOLOInput(configPath, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: 0, Name: "car"}, {ID: 1, Name: "person"}}, in.Categories())
}

func TestYOLOInputSkipsMalformedLines(t *testing.T) {
	configPath := writeYOLODataset(t, t.TempDir(),
		"train: images\nnames:\n  0: car\n",
		map[string]string{"img1": "0 0.5 0.5\n0 a b c d\n0 0.5 0.5 0.25 0.25\n"})

	diag := NewDiagnostics(nil)
	in, err := NewYOLOInput(configPath, "train", diag)
	require.NoError(t, err)

	labels, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Len(t, labels[0].Objects, 1)
	assert.Equal(t, 2, diag.SkippedLines())
}

func TestYOLOInputUnknownClassIDIsFatal(t *testing.T) {
	configPath := writeYOLODataset(t, t.TempDir(),
		"train: images\nnames:\n  0: car\n",
		map[string]string{"img1": "3 0.5 0.5 0.25 0.25\n"})

	in, err := NewYOLOInput(configPath, "train", nil)
	require.NoError(t, err)

	_, err = collectLabels[ImageLabels](in)
	require.Error(t, err)
	assert.True(t, IsCategoryReference(err))
}

func TestYOLOInputSkipsImagesWithoutLabelFile(t *testing.T) {
	root := t.TempDir()
	configPath := writeYOLODataset(t, root,
		"train: images\nnames:\n  0: car\n",
		map[string]string{"img1": "0 0.5 0.5 0.25 0.25\n"})
	writeTestImage(t, filepath.Join(root, "images", "orphan.png"), 64, 48)

	diag := NewDiagnostics(nil)
	in, err := NewYOLOInput(configPath, "train", diag)
	require.NoError(t, err)

	labels, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, 1, diag.SkippedImages())
}

func TestYOLOInputRejectsUnknownSplit(t *testing.T) {
	configPath := writeYOLODataset(t, t.TempDir(),
		"train: images\nnames:\n  0: car\n",
		map[string]string{"img1": ""})

	_, err := NewYOLOInput(configPath, "val", nil)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestYOLOInputRejectsNonContiguousNames(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "data.yaml")
	writeTestFile(t, configPath, "train: images\nnames:\n  0: car\n  2: person\n")

	_, err := NewYOLOInput(configPath, "train", nil)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestCOCOToYOLOConversion(t *testing.T) {
	dir := t.TempDir()
	cocoPath := filepath.Join(dir, "annotations.json")
	writeTestFile(t, cocoPath, `{
		"images": [{"id": 1, "file_name": "image1.jpg", "width": 640, "height": 416}],
		"categories": [{"id": 0, "name": "car"}],
		"annotations": [{"image_id": 1, "category_id": 0, "bbox": [540, 295, 23, 18]}]
	}`)

	in, err := NewCOCODetectionInput(cocoPath, nil)
	require.NoError(t, err)

	outConfig := filepath.Join(dir, "out", "data.yaml")
	require.NoError(t, Convert[ImageLabels](in, NewYOLOOutput(outConfig, "train"), nil))

	enc, err := os.ReadFile(filepath.Join(dir, "out", "labels", "image1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 0.861719 0.730769 0.035938 0.043269\n", string(enc))

	cfg, err := parseYOLOConfig(outConfig)
	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: 0, Name: "car"}}, cfg.categories)
	assert.Equal(t, "images", cfg.splits["train"])
}

func TestYOLOOutputRejectsNonContiguousCategories(t *testing.T) {
	out := NewYOLOOutput(filepath.Join(t.TempDir(), "data.yaml"), "train")
	err := out.Begin([]Category{{ID: 1, Name: "car"}, {ID: 2, Name: "person"}})
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestYOLOSegmentationInput(t *testing.T) {
	configPath := writeYOLODataset(t, t.TempDir(),
		"train: images\nnames:\n  0: car\n",
		map[string]string{"img1": "0 0.25 0.25 0.75 0.25 0.75 0.75\n0 0.1 0.2\n"})

	diag := NewDiagnostics(nil)
	in, err := NewYOLOSegmentationInput(configPath, "train", diag)
	require.NoError(t, err)

	labels, err := collectLabels[ImageSegmentations](in)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Len(t, labels[0].Objects, 1)
	assert.Equal(t, 1, diag.SkippedLines())

	// Denormalized against the 64x48 image.
	assert.Equal(t, [][]Point{{{X: 16, Y: 12}, {X: 48, Y: 12}, {X: 48, Y: 36}}},
		labels[0].Objects[0].Segmentation.Polygons)
}

func TestYOLOSegmentationRoundTrip(t *testing.T) {
	dir := t.TempDir()
	configPath := writeYOLODataset(t, filepath.Join(dir, "in"),
		"train: images\nnames:\n  0: car\n",
		map[string]string{"img1": "0 0.250000 0.250000 0.750000 0.250000 0.750000 0.750000\n"})

	in, err := NewYOLOSegmentationInput(configPath, "train", nil)
	require.NoError(t, err)

	outConfig := filepath.Join(dir, "out", "data.yaml")
	require.NoError(t, Convert[ImageSegmentations](
		in, NewYOLOSegmentationOutput(outConfig, "train", nil), nil))

	enc, err := os.ReadFile(filepath.Join(dir, "out", "labels", "img1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0 0.250000 0.250000 0.750000 0.250000 0.750000 0.750000\n", string(enc))
}

func TestConnectPolygonsLinksThroughFirstVertices(t *testing.T) {
	single := MultiPolygon{Polygons: [][]Point{{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}}}}
	polygon, err := connectPolygons(single)
	require.NoError(t, err)
	assert.Equal(t, single.Polygons[0], polygon)

	double := MultiPolygon{Polygons: [][]Point{
		{{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}},
		{{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}},
	}}
	polygon, err = connectPolygons(double)
	require.NoError(t, err)
	assert.Equal(t, []Point{
		{X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 2}, {X: 1, Y: 1},
		{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 6, Y: 6}, {X: 5, Y: 5},
		{X: 1, Y: 1},
	}, polygon)

	_, err = connectPolygons(MultiPolygon{})
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}
