package labelconv

// COCO specific functionality. A COCO dataset is a single JSON document with
// images, categories and annotations arrays; boxes are absolute pixel
// (x, y, width, height).

import (
	"encoding/json"
	"fmt"
	"iter"
	"os"
)

type cocoImage struct {
	ID       int    `json:"id"`
	FileName string `json:"file_name"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

type cocoCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type cocoAnnotation struct {
	ImageID      int             `json:"image_id"`
	CategoryID   int             `json:"category_id"`
	Bbox         [4]float64      `json:"bbox"`
	IsCrowd      int             `json:"iscrowd,omitempty"`
	Segmentation json.RawMessage `json:"segmentation,omitempty"`
}

type cocoDocument struct {
	Images      []cocoImage      `json:"images"`
	Categories  []cocoCategory   `json:"categories"`
	Annotations []cocoAnnotation `json:"annotations"`
}

// cocoBase holds the parsed document shared by the detection and
// segmentation inputs.
type cocoBase struct {
	path string
	doc  cocoDocument
	diag *Diagnostics
}

func newCOCOBase(inputFile string, diag *Diagnostics) (cocoBase, error) {
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	enc, err := os.ReadFile(inputFile)
	if err != nil {
		return cocoBase{}, structuralErr(inputFile, err)
	}
	var doc cocoDocument
	if err := json.Unmarshal(enc, &doc); err != nil {
		return cocoBase{}, structuralErr(inputFile, err)
	}
	return cocoBase{path: inputFile, doc: doc, diag: diag}, nil
}

func (c *cocoBase) Categories() []Category {
	categories := make([]Category, len(c.doc.Categories))
	for i, cat := range c.doc.Categories {
		categories[i] = Category{ID: cat.ID, Name: cat.Name}
	}
	return categories
}

// annotationsByImage groups the annotations by image id, preserving the
// declaration order within each group.
func (c *cocoBase) annotationsByImage() map[int][]cocoAnnotation {
	grouped := make(map[int][]cocoAnnotation, len(c.doc.Images))
	known := make(map[int]bool, len(c.doc.Images))
	for _, img := range c.doc.Images {
		known[img.ID] = true
	}
	for _, ann := range c.doc.Annotations {
		if !known[ann.ImageID] {
			c.diag.SkipLine(c.path, -1, malformedf("annotation references unknown image id %d", ann.ImageID))
			continue
		}
		grouped[ann.ImageID] = append(grouped[ann.ImageID], ann)
	}
	return grouped
}

// COCODetectionInput reads object detection labels from a COCO JSON file.
type COCODetectionInput struct {
	cocoBase
}

// NewCOCODetectionInput parses the COCO JSON document at inputFile.
func NewCOCODetectionInput(inputFile string, diag *Diagnostics) (*COCODetectionInput, error) {
	base, err := newCOCOBase(inputFile, diag)
	if err != nil {
		return nil, err
	}
	return &COCODetectionInput{cocoBase: base}, nil
}

// Labels yields one ImageLabels per entry of the images array, in declaration
// order.
func (c *COCODetectionInput) Labels() iter.Seq2[ImageLabels, error] {
	return func(yield func(ImageLabels, error) bool) {
		byID := categoriesByID(c.Categories())
		grouped := c.annotationsByImage()

		for _, ci := range c.doc.Images {
			img, err := NewImage(ci.ID, ci.FileName, ci.Width, ci.Height)
			if err != nil {
				c.diag.SkipImage(ci.FileName, err)
				continue
			}

			objects := make([]ObjectLabel, 0, len(grouped[ci.ID]))
			for _, ann := range grouped[ci.ID] {
				category, ok := byID[ann.CategoryID]
				if !ok {
					yield(ImageLabels{}, categoryRefErrf(
						"annotation for image %q references category id %d absent from the category set",
						ci.FileName, ann.CategoryID))
					return
				}
				box, err := BoxFromXYWH(ann.Bbox[0], ann.Bbox[1], ann.Bbox[2], ann.Bbox[3])
				if err != nil {
					c.diag.SkipLine(c.path, -1, err)
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

// COCODetectionOutput writes object detection labels as a COCO JSON file.
// The label stream is folded into the output document one image at a time;
// the document itself is written on Finish.
type COCODetectionOutput struct {
	path string
	doc  cocoDocument
}

// NewCOCODetectionOutput writes the COCO JSON document to outputFile.
func NewCOCODetectionOutput(outputFile string) *COCODetectionOutput {
	return &COCODetectionOutput{path: outputFile}
}

func (c *COCODetectionOutput) Begin(categories []Category) error {
	c.doc.Categories = make([]cocoCategory, len(categories))
	for i, cat := range categories {
		c.doc.Categories[i] = cocoCategory{ID: cat.ID, Name: cat.Name}
	}
	c.doc.Images = []cocoImage{}
	c.doc.Annotations = []cocoAnnotation{}
	return nil
}

func (c *COCODetectionOutput) Write(label ImageLabels) error {
	c.doc.Images = append(c.doc.Images, cocoImage{
		ID:       label.Image.ID,
		FileName: label.Image.Filename,
		Width:    label.Image.Width,
		Height:   label.Image.Height,
	})
	for _, obj := range label.Objects {
		x, y, w, h := obj.Box.XYWH()
		c.doc.Annotations = append(c.doc.Annotations, cocoAnnotation{
			ImageID:    label.Image.ID,
			CategoryID: obj.Category.ID,
			Bbox:       [4]float64{x, y, w, h},
		})
	}
	return nil
}

func (c *COCODetectionOutput) Finish() error {
	return writeJSONFile(c.path, c.doc)
}

// COCOSegmentationInput reads instance segmentation labels from a COCO JSON
// file. Only polygon segmentations are supported; crowd (RLE) annotations are
// skipped with a warning.
type COCOSegmentationInput struct {
	cocoBase
}

// NewCOCOSegmentationInput parses the COCO JSON document at inputFile.
func NewCOCOSegmentationInput(inputFile string, diag *Diagnostics) (*COCOSegmentationInput, error) {
	base, err := newCOCOBase(inputFile, diag)
	if err != nil {
		return nil, err
	}
	return &COCOSegmentationInput{cocoBase: base}, nil
}

// Labels yields one ImageSegmentations per entry of the images array, in
// declaration order.
func (c *COCOSegmentationInput) Labels() iter.Seq2[ImageSegmentations, error] {
	return func(yield func(ImageSegmentations, error) bool) {
		byID := categoriesByID(c.Categories())
		grouped := c.annotationsByImage()

		for _, ci := range c.doc.Images {
			img, err := NewImage(ci.ID, ci.FileName, ci.Width, ci.Height)
			if err != nil {
				c.diag.SkipImage(ci.FileName, err)
				continue
			}

			objects := make([]SegmentationLabel, 0, len(grouped[ci.ID]))
			for _, ann := range grouped[ci.ID] {
				category, ok := byID[ann.CategoryID]
				if !ok {
					yield(ImageSegmentations{}, categoryRefErrf(
						"annotation for image %q references category id %d absent from the category set",
						ci.FileName, ann.CategoryID))
					return
				}
				if ann.IsCrowd == 1 {
					c.diag.SkipLine(c.path, -1,
						malformedf("crowd (RLE) segmentation for image %q is not supported", ci.FileName))
					continue
				}
				segmentation, err := cocoSegmentationToMultiPolygon(ann.Segmentation)
				if err != nil {
					c.diag.SkipLine(c.path, -1, err)
					continue
				}
				objects = append(objects, SegmentationLabel{
					Category:     category,
					Segmentation: segmentation,
				})
			}

			if !yield(ImageSegmentations{Image: img, Objects: objects}, nil) {
				return
			}
		}
	}
}

// COCOSegmentationOutput writes instance segmentation labels as a COCO JSON
// file with polygon segmentations and derived bounding boxes.
type COCOSegmentationOutput struct {
	path string
	doc  cocoDocument
	diag *Diagnostics
}

// NewCOCOSegmentationOutput writes the COCO JSON document to outputFile.
func NewCOCOSegmentationOutput(outputFile string, diag *Diagnostics) *COCOSegmentationOutput {
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	return &COCOSegmentationOutput{path: outputFile, diag: diag}
}

func (c *COCOSegmentationOutput) Begin(categories []Category) error {
	c.doc.Categories = make([]cocoCategory, len(categories))
	for i, cat := range categories {
		c.doc.Categories[i] = cocoCategory{ID: cat.ID, Name: cat.Name}
	}
	c.doc.Images = []cocoImage{}
	c.doc.Annotations = []cocoAnnotation{}
	return nil
}

func (c *COCOSegmentationOutput) Write(label ImageSegmentations) error {
	c.doc.Images = append(c.doc.Images, cocoImage{
		ID:       label.Image.ID,
		FileName: label.Image.Filename,
		Width:    label.Image.Width,
		Height:   label.Image.Height,
	})
	for _, obj := range label.Objects {
		box, err := obj.Segmentation.BoundingBox()
		if err != nil {
			c.diag.SkipLine(c.path, -1, err)
			continue
		}
		segmentation, err := json.Marshal(multiPolygonToCOCOSegmentation(obj.Segmentation))
		if err != nil {
			return err
		}
		x, y, w, h := box.XYWH()
		c.doc.Annotations = append(c.doc.Annotations, cocoAnnotation{
			ImageID:      label.Image.ID,
			CategoryID:   obj.Category.ID,
			Bbox:         [4]float64{x, y, w, h},
			Segmentation: segmentation,
		})
	}
	return nil
}

func (c *COCOSegmentationOutput) Finish() error {
	return writeJSONFile(c.path, c.doc)
}

// cocoSegmentationToMultiPolygon decodes a COCO polygon segmentation array
// (one flat x,y list per polygon).
func cocoSegmentationToMultiPolygon(raw json.RawMessage) (MultiPolygon, error) {
	if len(raw) == 0 {
		return MultiPolygon{}, malformedf("annotation has no segmentation")
	}
	var flat [][]float64
	if err := json.Unmarshal(raw, &flat); err != nil {
		return MultiPolygon{}, malformedf("segmentation is not a polygon list: %v", err)
	}

	polygons := make([][]Point, 0, len(flat))
	for _, coords := range flat {
		if len(coords)%2 != 0 {
			return MultiPolygon{}, malformedf("polygon with odd coordinate count %d", len(coords))
		}
		polygon := make([]Point, 0, len(coords)/2)
		for i := 0; i < len(coords); i += 2 {
			polygon = append(polygon, Point{X: coords[i], Y: coords[i+1]})
		}
		polygons = append(polygons, polygon)
	}

	return MultiPolygon{Polygons: polygons}, nil
}

// multiPolygonToCOCOSegmentation encodes the polygons as flat x,y lists.
func multiPolygonToCOCOSegmentation(m MultiPolygon) [][]float64 {
	flat := make([][]float64, 0, len(m.Polygons))
	for _, polygon := range m.Polygons {
		coords := make([]float64, 0, 2*len(polygon))
		for _, p := range polygon {
			coords = append(coords, p.X, p.Y)
		}
		flat = append(flat, coords)
	}
	return flat
}

// writeJSONFile marshals v with indentation and writes it to path, creating
// parent directories as needed.
func writeJSONFile(path string, v interface{}) error {
	enc, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := ensureParentDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, enc, 0644); err != nil {
		return fmt.Errorf("cannot write file %q: %v", path, err)
	}
	return nil
}
