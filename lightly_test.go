package labelconv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lightlySchemaFixture = `{
  "task_type": "object-detection",
  "categories": [
    {"id": 0, "name": "car"},
    {"id": 1, "name": "person"}
  ]
}`

func writeLightlyTask(t *testing.T, root string, predictions map[string]string) string {
	t.Helper()
	taskDir := filepath.Join(root, "task")
	writeTestFile(t, filepath.Join(taskDir, "schema.json"), lightlySchemaFixture)
	for name, content := range predictions {
		writeTestImage(t, filepath.Join(root, "images", name+".png"), 64, 48)
		writeTestFile(t, filepath.Join(taskDir, name+".json"), content)
	}
	return taskDir
}

func TestLightlyInput(t *testing.T) {
	taskDir := writeLightlyTask(t, t.TempDir(), map[string]string{
		"img1": `{"file_name": "img1.png", "predictions": [
			{"category_id": 0, "bbox": [10, 5, 20, 10], "score": 0.9},
			{"category_id": 1, "bbox": [0, 0, 5, 5], "score": 0.5}
		]}`,
	})

	in, err := NewLightlyInput(taskDir, "", false, nil)
	require.NoError(t, err)
	assert.Equal(t, []Category{{ID: 0, Name: "car"}, {ID: 1, Name: "person"}}, in.Categories())

	labels, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, "img1.png", labels[0].Image.Filename)
	assert.Equal(t, 64, labels[0].Image.Width)

	require.Len(t, labels[0].Objects, 2)
	assert.Equal(t, BoundingBox{XMin: 10, YMin: 5, XMax: 30, YMax: 15}, labels[0].Objects[0].Box)
	assert.Equal(t, Category{ID: 1, Name: "person"}, labels[0].Objects[1].Category)
}

func TestLightlyInputRejectsWrongTaskType(t *testing.T) {
	taskDir := filepath.Join(t.TempDir(), "task")
	writeTestFile(t, filepath.Join(taskDir, "schema.json"),
		`{"task_type": "classification", "categories": []}`)

	_, err := NewLightlyInput(taskDir, "", false, nil)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestLightlyInputMissingSchemaIsFatal(t *testing.T) {
	_, err := NewLightlyInput(t.TempDir(), "", false, nil)
	require.Error(t, err)
	assert.True(t, IsStructuralParse(err))
}

func TestLightlyInputLabelWithoutImage(t *testing.T) {
	root := t.TempDir()
	taskDir := writeLightlyTask(t, root, map[string]string{
		"img1": `{"file_name": "img1.png", "predictions": []}`,
	})
	writeTestFile(t, filepath.Join(taskDir, "ghost.json"),
		`{"file_name": "ghost.png", "predictions": []}`)

	// Fatal by default.
	in, err := NewLightlyInput(taskDir, "", false, nil)
	require.NoError(t, err)
	_, err = collectLabels[ImageLabels](in)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	// Skipped when requested.
	diag := NewDiagnostics(nil)
	in, err = NewLightlyInput(taskDir, "", true, diag)
	require.NoError(t, err)
	labels, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)
	assert.Len(t, labels, 1)
	assert.Equal(t, 1, diag.SkippedImages())
}

func TestLightlyInputUnknownCategoryIsFatal(t *testing.T) {
	taskDir := writeLightlyTask(t, t.TempDir(), map[string]string{
		"img1": `{"file_name": "img1.png", "predictions": [
			{"category_id": 9, "bbox": [1, 1, 2, 2], "score": 0.1}
		]}`,
	})

	in, err := NewLightlyInput(taskDir, "", false, nil)
	require.NoError(t, err)

	_, err = collectLabels[ImageLabels](in)
	require.Error(t, err)
	assert.True(t, IsCategoryReference(err))
}

func TestLightlyOutput(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "task")
	out := NewLightlyOutput(outDir)

	require.NoError(t, out.Begin([]Category{{ID: 0, Name: "car"}}))
	require.NoError(t, out.Write(ImageLabels{
		Image: Image{ID: 0, Filename: "img1.png", Width: 64, Height: 48},
		Objects: []ObjectLabel{{
			Category: Category{ID: 0, Name: "car"},
			Box:      BoundingBox{XMin: 10, YMin: 5, XMax: 30, YMax: 15},
		}},
	}))
	require.NoError(t, out.Finish())

	var schema lightlySchema
	enc, err := os.ReadFile(filepath.Join(outDir, "schema.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(enc, &schema))
	assert.Equal(t, "object-detection", schema.TaskType)
	require.Len(t, schema.Categories, 1)
	assert.Equal(t, "car", schema.Categories[0].Name)

	var pred lightlyFile
	enc, err = os.ReadFile(filepath.Join(outDir, "img1.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(enc, &pred))
	assert.Equal(t, "img1.png", pred.FileName)
	require.Len(t, pred.Predictions, 1)
	assert.Equal(t, [4]float64{10, 5, 20, 10}, pred.Predictions[0].Bbox)
	assert.Equal(t, 0.0, pred.Predictions[0].Score)
}

func TestLightlyRoundTrip(t *testing.T) {
	root := t.TempDir()
	taskDir := writeLightlyTask(t, root, map[string]string{
		"img1": `{"file_name": "img1.png", "predictions": [
			{"category_id": 0, "bbox": [10, 5, 20, 10], "score": 0.9}
		]}`,
	})

	in, err := NewLightlyInput(taskDir, "", false, nil)
	require.NoError(t, err)
	outDir := filepath.Join(root, "out")
	require.NoError(t, Convert[ImageLabels](in, NewLightlyOutput(outDir), nil))

	// Re-read against the same images folder.
	reread, err := NewLightlyInput(outDir, "../images", false, nil)
	require.NoError(t, err)
	labels, err := collectLabels[ImageLabels](reread)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	require.Len(t, labels[0].Objects, 1)
	assert.Equal(t, BoundingBox{XMin: 10, YMin: 5, XMax: 30, YMax: 15}, labels[0].Objects[0].Box)
}
