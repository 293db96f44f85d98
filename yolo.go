package labelconv

// YOLO family specific functionality. The v5 through v12 and v26 releases all
// share the same on-disk layout: a data.yaml with the category names and the
// split directories, plus one .txt label file per image where every line is
// "<class_id> <x_center> <y_center> <width> <height>" with all four values
// normalized to [0, 1]. The labels directory is derived from the images
// directory by substituting the first "images" path element with "labels".

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// yoloConfig is the parsed data.yaml.
type yoloConfig struct {
	root       string            // Dataset root directory.
	categories []Category        // From the names mapping, ordered by id.
	splits     map[string]string // Split name to images directory.
}

// parseYOLOConfig reads and validates a data.yaml file. The names entry may
// be either a mapping of id to name (ultralytics) or a plain list (roboflow);
// ids must be contiguous 0..N-1 either way. A "path" entry overrides the
// dataset root, which otherwise is the config file's directory.
func parseYOLOConfig(configFile string) (yoloConfig, error) {
	enc, err := os.ReadFile(configFile)
	if err != nil {
		return yoloConfig{}, structuralErr(configFile, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(enc, &doc); err != nil {
		return yoloConfig{}, structuralErr(configFile, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 ||
		doc.Content[0].Kind != yaml.MappingNode {
		return yoloConfig{}, structuralErr(configFile, fmt.Errorf("expected a YAML mapping"))
	}

	cfg := yoloConfig{
		root:   filepath.Dir(configFile),
		splits: make(map[string]string),
	}

	mapping := doc.Content[0]
	var namesNode *yaml.Node
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, value := mapping.Content[i], mapping.Content[i+1]
		switch key.Value {
		case "path":
			cfg.root = filepath.Join(filepath.Dir(configFile), value.Value)
		case "names":
			namesNode = value
		case "nc", "download":
			// Informational; the names entry is authoritative.
		default:
			if value.Kind == yaml.ScalarNode {
				cfg.splits[key.Value] = value.Value
			}
		}
	}

	if namesNode == nil {
		return yoloConfig{}, structuralErr(configFile, fmt.Errorf("missing names entry"))
	}
	cfg.categories, err = parseYOLONames(namesNode)
	if err != nil {
		return yoloConfig{}, err
	}

	return cfg, nil
}

// parseYOLONames extracts the category registry from the names node.
func parseYOLONames(node *yaml.Node) ([]Category, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		categories := make([]Category, len(node.Content))
		for i, name := range node.Content {
			categories[i] = Category{ID: i, Name: name.Value}
		}
		return categories, nil
	case yaml.MappingNode:
		categories := make([]Category, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			id, err := strconv.Atoi(node.Content[i].Value)
			if err != nil {
				return nil, configErrf("non-integer category id %q in names", node.Content[i].Value)
			}
			categories = append(categories, Category{ID: id, Name: node.Content[i+1].Value})
		}
		if err := requireContiguousIDs(categories); err != nil {
			return nil, err
		}
		return categories, nil
	}
	return nil, configErrf("names entry must be a list or an id-to-name mapping")
}

// imagesDir resolves the images directory for split.
func (c yoloConfig) imagesDir(split string) (string, error) {
	dir, ok := c.splits[split]
	if !ok {
		return "", configErrf("split %q not found in the dataset config", split)
	}
	return filepath.Join(c.root, dir), nil
}

// labelsDir derives the labels directory for split by replacing the first
// "images" path element of the split directory with "labels".
func (c yoloConfig) labelsDir(split string) (string, error) {
	dir, ok := c.splits[split]
	if !ok {
		return "", configErrf("split %q not found in the dataset config", split)
	}
	if !strings.Contains(dir, "images") {
		return "", configErrf("cannot derive the labels directory: no 'images' element in %q", dir)
	}
	return filepath.Join(c.root, strings.Replace(dir, "images", "labels", 1)), nil
}

// yoloBase is shared by the detection and segmentation inputs.
type yoloBase struct {
	cfg   yoloConfig
	split string
	diag  *Diagnostics
}

func newYOLOBase(inputFile, split string, diag *Diagnostics) (yoloBase, error) {
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	if split == "" {
		split = "train"
	}
	cfg, err := parseYOLOConfig(inputFile)
	if err != nil {
		return yoloBase{}, err
	}
	if _, err := cfg.imagesDir(split); err != nil {
		return yoloBase{}, err
	}
	if _, err := cfg.labelsDir(split); err != nil {
		return yoloBase{}, err
	}
	return yoloBase{cfg: cfg, split: split, diag: diag}, nil
}

func (y *yoloBase) Categories() []Category {
	return y.cfg.categories
}

// labelLines iterates the images of the split and their label file lines.
// Images without a label file and unreadable label files are skipped with a
// warning. A non-nil error from handleLine is fatal and aborts the iteration
// through yieldErr; recoverable line problems are reported to the
// Diagnostics by handleLine itself.
func (y *yoloBase) labelLines(yieldErr func(error),
	handleLine func(image Image, path string, lineNo int, fields []string) error,
	emit func(image Image) bool) {

	imagesDir, _ := y.cfg.imagesDir(y.split)
	labelsDir, _ := y.cfg.labelsDir(y.split)

	images, err := imagesFromFolder(imagesDir, y.diag)
	if err != nil {
		yieldErr(err)
		return
	}

	for _, image := range images {
		labelPath := withSuffix(filepath.Join(labelsDir, image.Filename), ".txt")
		lines, err := readLines(labelPath)
		if err != nil {
			y.diag.SkipImage(image.Filename, err)
			continue
		}

		for lineNo, line := range lines {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if err := handleLine(image, labelPath, lineNo+1, fields); err != nil {
				yieldErr(err)
				return
			}
		}

		if !emit(image) {
			return
		}
	}
}

// YOLOInput reads object detection labels from a YOLO dataset.
type YOLOInput struct {
	yoloBase
}

// NewYOLOInput opens the YOLO dataset described by the data.yaml at
// inputFile, reading the given split (empty selects "train").
func NewYOLOInput(inputFile, split string, diag *Diagnostics) (*YOLOInput, error) {
	base, err := newYOLOBase(inputFile, split, diag)
	if err != nil {
		return nil, err
	}
	return &YOLOInput{yoloBase: base}, nil
}

// Labels yields one ImageLabels per image of the split, in image discovery
// order. Lines with the wrong field count or non-numeric values are skipped
// with a warning; an unknown class id is fatal.
func (y *YOLOInput) Labels() iter.Seq2[ImageLabels, error] {
	return func(yield func(ImageLabels, error) bool) {
		byID := categoriesByID(y.cfg.categories)
		var objects []ObjectLabel

		yieldErr := func(err error) {
			yield(ImageLabels{}, err)
		}
		handleLine := func(image Image, path string, lineNo int, fields []string) error {
			if len(fields) != 5 {
				y.diag.SkipLine(path, lineNo,
					malformedf("expected 5 fields, got %d", len(fields)))
				return nil
			}

			classID, err := strconv.Atoi(fields[0])
			if err != nil {
				y.diag.SkipLine(path, lineNo, malformedf("non-integer class id %q", fields[0]))
				return nil
			}
			var values [4]float64
			for i, field := range fields[1:] {
				if values[i], err = strconv.ParseFloat(field, 64); err != nil {
					y.diag.SkipLine(path, lineNo, malformedf("non-numeric value %q", field))
					return nil
				}
			}

			category, ok := byID[classID]
			if !ok {
				return categoryRefErrf(
					"label file %q references class id %d absent from the category set", path, classID)
			}

			// Denormalize to absolute pixels.
			box, err := BoxFromCenter(
				values[0]*float64(image.Width), values[1]*float64(image.Height),
				values[2]*float64(image.Width), values[3]*float64(image.Height))
			if err != nil {
				y.diag.SkipLine(path, lineNo, err)
				return nil
			}

			objects = append(objects, ObjectLabel{Category: category, Box: box})
			return nil
		}
		emit := func(image Image) bool {
			labels := ImageLabels{Image: image, Objects: objects}
			objects = nil
			return yield(labels, nil)
		}

		y.labelLines(yieldErr, handleLine, emit)
	}
}

// YOLOSegmentationInput reads instance segmentation labels from a YOLO
// dataset. Each label line is a class id followed by normalized polygon
// vertex coordinates.
type YOLOSegmentationInput struct {
	yoloBase
}

// NewYOLOSegmentationInput opens the YOLO dataset described by the data.yaml
// at inputFile, reading the given split (empty selects "train").
func NewYOLOSegmentationInput(inputFile, split string, diag *Diagnostics) (*YOLOSegmentationInput, error) {
	base, err := newYOLOBase(inputFile, split, diag)
	if err != nil {
		return nil, err
	}
	return &YOLOSegmentationInput{yoloBase: base}, nil
}

// Labels yields one ImageSegmentations per image of the split.
func (y *YOLOSegmentationInput) Labels() iter.Seq2[ImageSegmentations, error] {
	return func(yield func(ImageSegmentations, error) bool) {
		byID := categoriesByID(y.cfg.categories)
		var objects []SegmentationLabel

		yieldErr := func(err error) {
			yield(ImageSegmentations{}, err)
		}
		handleLine := func(image Image, path string, lineNo int, fields []string) error {
			if len(fields) < 7 || len(fields)%2 != 1 {
				y.diag.SkipLine(path, lineNo,
					malformedf("expected a class id and at least 3 x,y pairs, got %d fields", len(fields)))
				return nil
			}

			classID, err := strconv.Atoi(fields[0])
			if err != nil {
				y.diag.SkipLine(path, lineNo, malformedf("non-integer class id %q", fields[0]))
				return nil
			}
			category, ok := byID[classID]
			if !ok {
				return categoryRefErrf(
					"label file %q references class id %d absent from the category set", path, classID)
			}

			polygon := make([]Point, 0, (len(fields)-1)/2)
			for i := 1; i+1 < len(fields); i += 2 {
				px, errX := strconv.ParseFloat(fields[i], 64)
				py, errY := strconv.ParseFloat(fields[i+1], 64)
				if errX != nil || errY != nil {
					y.diag.SkipLine(path, lineNo, malformedf("non-numeric polygon coordinate"))
					return nil
				}
				polygon = append(polygon, Point{
					X: px * float64(image.Width),
					Y: py * float64(image.Height),
				})
			}

			objects = append(objects, SegmentationLabel{
				Category:     category,
				Segmentation: MultiPolygon{Polygons: [][]Point{polygon}},
			})
			return nil
		}
		emit := func(image Image) bool {
			labels := ImageSegmentations{Image: image, Objects: objects}
			objects = nil
			return yield(labels, nil)
		}

		y.labelLines(yieldErr, handleLine, emit)
	}
}

// yoloOutputBase writes the data.yaml and owns the labels directory.
type yoloOutputBase struct {
	configFile string
	split      string
	labelsDir  string
	categories []Category
}

func newYOLOOutputBase(outputFile, split string) yoloOutputBase {
	if split == "" {
		split = "train"
	}
	return yoloOutputBase{
		configFile: outputFile,
		split:      split,
		labelsDir:  filepath.Join(filepath.Dir(outputFile), "labels"),
	}
}

func (y *yoloOutputBase) Begin(categories []Category) error {
	if err := requireContiguousIDs(categories); err != nil {
		return err
	}
	y.categories = categories
	if err := ensureParentDir(y.configFile); err != nil {
		return err
	}
	return writeYOLOConfig(y.configFile, y.split, categories)
}

func (y *yoloOutputBase) Finish() error { return nil }

// labelFile returns the label file path for the image, creating parent
// directories as needed.
func (y *yoloOutputBase) labelFile(image Image) (string, error) {
	path := withSuffix(filepath.Join(y.labelsDir, image.Filename), ".txt")
	if err := ensureParentDir(path); err != nil {
		return "", err
	}
	return path, nil
}

// writeYOLOConfig writes the data.yaml. The document is built as an explicit
// node so the key order is deterministic across runs.
func writeYOLOConfig(path, split string, categories []Category) error {
	scalar := func(value string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
	}
	intScalar := func(value int) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(value)}
	}

	names := &yaml.Node{Kind: yaml.MappingNode}
	for _, category := range categories {
		names.Content = append(names.Content, intScalar(category.ID), scalar(category.Name))
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	doc.Content = append(doc.Content,
		scalar("path"), scalar("."),
		scalar(split), scalar("images"),
		scalar("nc"), intScalar(len(categories)),
		scalar("names"), names,
	)

	enc, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, enc, 0644)
}

// YOLOOutput writes object detection labels as a YOLO dataset: a data.yaml
// next to a labels directory with one .txt per image.
type YOLOOutput struct {
	yoloOutputBase
}

// NewYOLOOutput writes the data.yaml to outputFile and the label files to a
// labels directory next to it. The split (empty selects "train") names the
// images directory in the config.
func NewYOLOOutput(outputFile, split string) *YOLOOutput {
	return &YOLOOutput{yoloOutputBase: newYOLOOutputBase(outputFile, split)}
}

func (y *YOLOOutput) Write(label ImageLabels) (err error) {
	path, err := y.labelFile(label.Image)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	for _, obj := range label.Objects {
		cx, cy, w, h := obj.Box.Center()
		_, err = fmt.Fprintf(file, "%d %.6f %.6f %.6f %.6f\n",
			obj.Category.ID,
			cx/float64(label.Image.Width), cy/float64(label.Image.Height),
			w/float64(label.Image.Width), h/float64(label.Image.Height))
		if err != nil {
			return err
		}
	}

	return nil
}

// YOLOSegmentationOutput writes instance segmentation labels as a YOLO
// dataset with normalized polygon label lines. Multi-polygon segmentations
// are connected into a single polygon with zero-width links, matching the
// single-polygon constraint of the format.
type YOLOSegmentationOutput struct {
	yoloOutputBase
	diag *Diagnostics
}

// NewYOLOSegmentationOutput writes the data.yaml to outputFile and the label
// files to a labels directory next to it.
func NewYOLOSegmentationOutput(outputFile, split string, diag *Diagnostics) *YOLOSegmentationOutput {
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	return &YOLOSegmentationOutput{
		yoloOutputBase: newYOLOOutputBase(outputFile, split),
		diag:           diag,
	}
}

func (y *YOLOSegmentationOutput) Write(label ImageSegmentations) (err error) {
	path, err := y.labelFile(label.Image)
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	for _, obj := range label.Objects {
		polygon, err := connectPolygons(obj.Segmentation)
		if err != nil {
			y.diag.SkipLine(path, -1, err)
			continue
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "%d", obj.Category.ID)
		for _, p := range polygon {
			fmt.Fprintf(&sb, " %.6f %.6f",
				p.X/float64(label.Image.Width), p.Y/float64(label.Image.Height))
		}
		sb.WriteByte('\n')

		if _, err := file.WriteString(sb.String()); err != nil {
			return err
		}
	}

	return nil
}

// connectPolygons flattens a multi-polygon into a single polygon by closing
// each polygon at its first vertex and linking back through the first
// vertices in reverse order.
func connectPolygons(m MultiPolygon) ([]Point, error) {
	if len(m.Polygons) == 0 {
		return nil, malformedf("cannot write an empty multi-polygon")
	}
	if len(m.Polygons) == 1 {
		return m.Polygons[0], nil
	}

	var out []Point
	for _, polygon := range m.Polygons {
		out = append(out, polygon...)
		out = append(out, polygon[0])
	}
	for i := len(m.Polygons) - 2; i >= 0; i-- {
		out = append(out, m.Polygons[i][0])
	}
	return out, nil
}
