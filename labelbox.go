package labelconv

// Labelbox specific functionality. Reads export v2 NDJSON: one JSON object
// per line describing a data row with media attributes and project
// annotations. Only ImageBoundingBox objects are converted; the format has no
// category table, so the registry comes from caller-supplied names. There is
// no Labelbox output.

import (
	"bufio"
	"encoding/json"
	"iter"
	"os"
)

// The data row keys that can identify an image file.
const (
	FilenameKeyGlobalKey  = "global_key"
	FilenameKeyExternalID = "external_id"
	FilenameKeyID         = "id"
)

type lbDataRow struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	GlobalKey  string `json:"global_key"`
}

type lbBoundingBox struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type lbObject struct {
	Name           string        `json:"name"`
	AnnotationKind string        `json:"annotation_kind"`
	BoundingBox    lbBoundingBox `json:"bounding_box"`
}

type lbAnnotations struct {
	Objects []lbObject      `json:"objects"`
	Frames  json.RawMessage `json:"frames"`
}

type lbLabel struct {
	Annotations lbAnnotations `json:"annotations"`
}

type lbProject struct {
	Labels []lbLabel `json:"labels"`
}

type lbDataRowExport struct {
	DataRow         lbDataRow `json:"data_row"`
	MediaAttributes struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"media_attributes"`
	Projects map[string]lbProject `json:"projects"`
}

// LabelboxInput reads object detection labels from a Labelbox export v2
// NDJSON file.
type LabelboxInput struct {
	inputFile   string
	filenameKey string
	categories  []Category
	diag        *Diagnostics
}

// NewLabelboxInput reads the NDJSON export at inputFile. The categoryNames
// list supplies the registry, in declaration order. filenameKey selects the
// data row field used as the image filename (global_key, external_id or id);
// empty picks the first of those that is present per row.
func NewLabelboxInput(inputFile string, categoryNames []string, filenameKey string,
	diag *Diagnostics) (*LabelboxInput, error) {

	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	switch filenameKey {
	case "", FilenameKeyGlobalKey, FilenameKeyExternalID, FilenameKeyID:
	default:
		return nil, configErrf("invalid filename key %q, expected one of %s, %s, %s",
			filenameKey, FilenameKeyGlobalKey, FilenameKeyExternalID, FilenameKeyID)
	}
	categories, err := categoriesFromNames(categoryNames)
	if err != nil {
		return nil, err
	}
	return &LabelboxInput{
		inputFile:   inputFile,
		filenameKey: filenameKey,
		categories:  categories,
		diag:        diag,
	}, nil
}

func (l *LabelboxInput) Categories() []Category { return l.categories }

// Labels yields one ImageLabels per NDJSON line, in file order. Image ids are
// assigned in that order. Rows that do not parse or lack the required
// structure are skipped with a warning; an unknown category name is fatal.
func (l *LabelboxInput) Labels() iter.Seq2[ImageLabels, error] {
	return func(yield func(ImageLabels, error) bool) {
		byName := categoriesByName(l.categories)

		file, err := os.Open(l.inputFile)
		if err != nil {
			yield(ImageLabels{}, structuralErr(l.inputFile, err))
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		// Export rows with many annotations can be large.
		scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)

		imageID := 0
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			label, err := l.parseDataRow(line, imageID, byName)
			if err != nil {
				if IsMalformed(err) {
					l.diag.SkipLine(l.inputFile, lineNo, err)
					continue
				}
				yield(ImageLabels{}, err)
				return
			}
			imageID++

			if !yield(label, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(ImageLabels{}, structuralErr(l.inputFile, err))
		}
	}
}

// parseDataRow converts one NDJSON line.
func (l *LabelboxInput) parseDataRow(line []byte, imageID int,
	byName map[string]Category) (ImageLabels, error) {

	var row lbDataRowExport
	if err := json.Unmarshal(line, &row); err != nil {
		return ImageLabels{}, malformedf("data row is not valid JSON: %v", err)
	}

	filename, err := l.rowFilename(row.DataRow)
	if err != nil {
		return ImageLabels{}, err
	}
	img, err := NewImage(imageID, filename,
		row.MediaAttributes.Width, row.MediaAttributes.Height)
	if err != nil {
		return ImageLabels{}, err
	}

	if len(row.Projects) != 1 {
		return ImageLabels{}, malformedf(
			"expected a single project per data row, got %d", len(row.Projects))
	}
	var project lbProject
	for _, p := range row.Projects {
		project = p
	}
	if len(project.Labels) != 1 {
		return ImageLabels{}, malformedf(
			"expected a single entry in the labels list, got %d", len(project.Labels))
	}
	annotations := project.Labels[0].Annotations
	if len(annotations.Frames) > 0 {
		return ImageLabels{}, malformedf("video exports (frames) are not supported")
	}

	objects := make([]ObjectLabel, 0, len(annotations.Objects))
	for _, obj := range annotations.Objects {
		if obj.AnnotationKind != "ImageBoundingBox" {
			l.diag.Warnf("skipping object with annotation kind %q for image %q",
				obj.AnnotationKind, filename)
			continue
		}

		category, ok := byName[obj.Name]
		if !ok {
			return ImageLabels{}, categoryRefErrf(
				"data row for image %q references category %q absent from the category set",
				filename, obj.Name)
		}

		box, err := BoxFromXYWH(obj.BoundingBox.Left, obj.BoundingBox.Top,
			obj.BoundingBox.Width, obj.BoundingBox.Height)
		if err != nil {
			l.diag.Warnf("skipping object with invalid bounding box for image %q: %v", filename, err)
			continue
		}
		objects = append(objects, ObjectLabel{Category: category, Box: box})
	}

	return ImageLabels{Image: img, Objects: objects}, nil
}

// rowFilename extracts the image filename from the data row per the
// configured filename key.
func (l *LabelboxInput) rowFilename(row lbDataRow) (string, error) {
	byKey := map[string]string{
		FilenameKeyGlobalKey:  row.GlobalKey,
		FilenameKeyExternalID: row.ExternalID,
		FilenameKeyID:         row.ID,
	}

	if l.filenameKey != "" {
		if name := byKey[l.filenameKey]; name != "" {
			return name, nil
		}
		return "", malformedf("data row has no %q field", l.filenameKey)
	}

	for _, key := range []string{FilenameKeyGlobalKey, FilenameKeyExternalID, FilenameKeyID} {
		if name := byKey[key]; name != "" {
			return name, nil
		}
	}
	return "", malformedf("data row has none of global_key, external_id or id")
}
