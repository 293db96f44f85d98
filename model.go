package labelconv

// The canonical label model shared by all format codecs.

import (
	"fmt"
)

// Category is one entry of the run-scoped category registry. Identity is the
// name; the ID is the ordinal used by the serialized form of a format.
type Category struct {
	ID   int
	Name string
}

// Image describes one annotated image. The ID is assigned by the input codec
// and is stable for the duration of one conversion.
type Image struct {
	ID       int
	Filename string // Base name used to correlate label artifacts with image files.
	Width    int
	Height   int
}

// NewImage validates the image dimensions and returns the Image.
func NewImage(id int, filename string, width, height int) (Image, error) {
	if width <= 0 || height <= 0 {
		return Image{}, malformedf("image %q has non-positive dimensions %dx%d",
			filename, width, height)
	}
	return Image{ID: id, Filename: filename, Width: width, Height: height}, nil
}

// BoundingBox is an axis-aligned box in absolute pixel coordinates with the
// origin at the top-left corner of the image.
type BoundingBox struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// BoxFromCorners constructs a box from absolute (x_min, y_min, x_max, y_max).
func BoxFromCorners(xMin, yMin, xMax, yMax float64) (BoundingBox, error) {
	b := BoundingBox{XMin: xMin, YMin: yMin, XMax: xMax, YMax: yMax}
	if b.Width() <= 0 || b.Height() <= 0 {
		return BoundingBox{}, malformedf(
			"bounding box (%v, %v, %v, %v) has non-positive width or height",
			xMin, yMin, xMax, yMax)
	}
	return b, nil
}

// BoxFromXYWH constructs a box from absolute (x_min, y_min, width, height).
func BoxFromXYWH(x, y, w, h float64) (BoundingBox, error) {
	return BoxFromCorners(x, y, x+w, y+h)
}

// BoxFromCenter constructs a box from absolute (x_center, y_center, width,
// height).
func BoxFromCenter(cx, cy, w, h float64) (BoundingBox, error) {
	return BoxFromCorners(cx-w/2, cy-h/2, cx+w/2, cy+h/2)
}

// Width is the box width.
func (b BoundingBox) Width() float64 { return b.XMax - b.XMin }

// Height is the box height.
func (b BoundingBox) Height() float64 { return b.YMax - b.YMin }

// XYWH returns the box as (x_min, y_min, width, height).
func (b BoundingBox) XYWH() (x, y, w, h float64) {
	return b.XMin, b.YMin, b.Width(), b.Height()
}

// Center returns the box as (x_center, y_center, width, height).
func (b BoundingBox) Center() (cx, cy, w, h float64) {
	return (b.XMin + b.XMax) / 2, (b.YMin + b.YMax) / 2, b.Width(), b.Height()
}

// ObjectLabel is one detected object instance.
type ObjectLabel struct {
	Category Category
	Box      BoundingBox
}

// ImageLabels is the unit of streaming for the object detection task: one
// image together with its object labels. Instances are transient; an output
// consumes each one before the next is produced.
type ImageLabels struct {
	Image   Image
	Objects []ObjectLabel
}

// Point is a polygon vertex in absolute pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// MultiPolygon is the segmentation geometry for the instance segmentation
// task. Coordinates are absolute pixels, not normalized.
type MultiPolygon struct {
	Polygons [][]Point
}

// BoundingBox returns the tightest box enclosing all polygons.
func (m MultiPolygon) BoundingBox() (BoundingBox, error) {
	if len(m.Polygons) == 0 || len(m.Polygons[0]) == 0 {
		return BoundingBox{}, malformedf("cannot take the bounding box of an empty multi-polygon")
	}

	first := m.Polygons[0][0]
	xMin, yMin, xMax, yMax := first.X, first.Y, first.X, first.Y
	for _, polygon := range m.Polygons {
		for _, p := range polygon {
			xMin = min(xMin, p.X)
			yMin = min(yMin, p.Y)
			xMax = max(xMax, p.X)
			yMax = max(yMax, p.Y)
		}
	}

	return BoxFromCorners(xMin, yMin, xMax, yMax)
}

// SegmentationLabel is one segmented object instance.
type SegmentationLabel struct {
	Category     Category
	Segmentation MultiPolygon
}

// ImageSegmentations is the unit of streaming for the instance segmentation
// task.
type ImageSegmentations struct {
	Image   Image
	Objects []SegmentationLabel
}

func (c Category) String() string {
	return fmt.Sprintf("%d:%s", c.ID, c.Name)
}
