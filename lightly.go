package labelconv

// Lightly specific functionality. A Lightly prediction task is a folder with
// a schema.json naming the task type and categories, plus one JSON file per
// image with the predictions; boxes are absolute pixel (x, y, width, height).

import (
	"encoding/json"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

type lightlySchema struct {
	TaskType   string `json:"task_type"`
	Categories []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
}

type lightlyPrediction struct {
	CategoryID int        `json:"category_id"`
	Bbox       [4]float64 `json:"bbox"`
	Score      float64    `json:"score"`
}

type lightlyFile struct {
	FileName    string              `json:"file_name"`
	Predictions []lightlyPrediction `json:"predictions"`
}

// LightlyInput reads object detection labels from a Lightly prediction
// folder. Image dimensions come from the images folder, resolved via
// imagesRelPath relative to the prediction folder.
type LightlyInput struct {
	inputFolder            string
	imagesRelPath          string
	skipLabelsWithoutImage bool
	categories             []Category
	diag                   *Diagnostics
}

// NewLightlyInput reads the prediction files under inputFolder; the
// categories come from its schema.json. imagesRelPath is the relative path
// from the prediction folder to the images folder (empty selects
// "../images"). A prediction file naming an image that is not in the images
// folder is fatal unless skipLabelsWithoutImage is set.
func NewLightlyInput(inputFolder, imagesRelPath string, skipLabelsWithoutImage bool,
	diag *Diagnostics) (*LightlyInput, error) {

	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	if imagesRelPath == "" {
		imagesRelPath = "../images"
	}

	schemaPath := filepath.Join(inputFolder, "schema.json")
	enc, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, structuralErr(schemaPath, err)
	}
	var schema lightlySchema
	if err := json.Unmarshal(enc, &schema); err != nil {
		return nil, structuralErr(schemaPath, err)
	}
	if schema.TaskType != "object-detection" {
		return nil, configErrf("schema task type %q is not supported, expected object-detection",
			schema.TaskType)
	}

	categories := make([]Category, len(schema.Categories))
	for i, c := range schema.Categories {
		categories[i] = Category{ID: c.ID, Name: c.Name}
	}

	return &LightlyInput{
		inputFolder:            inputFolder,
		imagesRelPath:          imagesRelPath,
		skipLabelsWithoutImage: skipLabelsWithoutImage,
		categories:             categories,
		diag:                   diag,
	}, nil
}

func (l *LightlyInput) Categories() []Category { return l.categories }

// Labels yields one ImageLabels per prediction file, in lexical walk order.
// Prediction files that cannot be read or parsed are skipped with a warning;
// an unknown category id is fatal.
func (l *LightlyInput) Labels() iter.Seq2[ImageLabels, error] {
	return func(yield func(ImageLabels, error) bool) {
		byID := categoriesByID(l.categories)

		images, err := imagesFromFolder(filepath.Join(l.inputFolder, l.imagesRelPath), l.diag)
		if err != nil {
			yield(ImageLabels{}, err)
			return
		}
		byFilename := make(map[string]Image, len(images))
		for _, img := range images {
			byFilename[img.Filename] = img
		}

		jsonFiles, err := lightlyPredictionFiles(l.inputFolder)
		if err != nil {
			yield(ImageLabels{}, configErrf("%v", err))
			return
		}

		for _, path := range jsonFiles {
			enc, err := os.ReadFile(path)
			if err != nil {
				l.diag.SkipImage(path, err)
				continue
			}
			var pred lightlyFile
			if err := json.Unmarshal(enc, &pred); err != nil {
				l.diag.SkipImage(path, malformedf("prediction file is not valid JSON: %v", err))
				continue
			}

			img, ok := byFilename[pred.FileName]
			if !ok {
				if l.skipLabelsWithoutImage {
					l.diag.SkipImage(pred.FileName,
						malformedf("prediction file %q has no corresponding image", path))
					continue
				}
				yield(ImageLabels{}, malformedf(
					"prediction file %q has no corresponding image %q", path, pred.FileName))
				return
			}

			objects := make([]ObjectLabel, 0, len(pred.Predictions))
			for _, p := range pred.Predictions {
				category, ok := byID[p.CategoryID]
				if !ok {
					yield(ImageLabels{}, categoryRefErrf(
						"prediction file %q references category id %d absent from the category set",
						path, p.CategoryID))
					return
				}
				box, err := BoxFromXYWH(p.Bbox[0], p.Bbox[1], p.Bbox[2], p.Bbox[3])
				if err != nil {
					l.diag.SkipLine(path, -1, err)
					continue
				}
				objects = append(objects, ObjectLabel{Category: category, Box: box})
			}

			if !yield(ImageLabels{Image: img, Objects: objects}, nil) {
				return
			}
		}
	}
}

// lightlyPredictionFiles lists the .json prediction files under folder,
// including nested directories, excluding schema.json.
func lightlyPredictionFiles(folder string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(folder, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, ".json") || entry.Name() == "schema.json" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// LightlyOutput writes object detection labels as a Lightly prediction
// folder with a schema.json and one JSON file per image.
type LightlyOutput struct {
	outputFolder string
}

// NewLightlyOutput writes the prediction files to outputFolder. The folder
// name should match the prediction task name.
func NewLightlyOutput(outputFolder string) *LightlyOutput {
	return &LightlyOutput{outputFolder: outputFolder}
}

func (l *LightlyOutput) Begin(categories []Category) error {
	schema := lightlySchema{TaskType: "object-detection"}
	for _, c := range categories {
		schema.Categories = append(schema.Categories, struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		}{ID: c.ID, Name: c.Name})
	}
	return writeJSONFile(filepath.Join(l.outputFolder, "schema.json"), schema)
}

func (l *LightlyOutput) Write(label ImageLabels) error {
	pred := lightlyFile{
		FileName:    label.Image.Filename,
		Predictions: []lightlyPrediction{},
	}
	for _, obj := range label.Objects {
		x, y, w, h := obj.Box.XYWH()
		pred.Predictions = append(pred.Predictions, lightlyPrediction{
			CategoryID: obj.Category.ID,
			Bbox:       [4]float64{x, y, w, h},
			Score:      0.0, // No confidence in the canonical model.
		})
	}

	path := withSuffix(filepath.Join(l.outputFolder, label.Image.Filename), ".json")
	return writeJSONFile(path, pred)
}

func (l *LightlyOutput) Finish() error { return nil }
