package labelconv

// The format codec capability interfaces.
//
// Every format exposes up to two independent roles per task: an Input that
// parses the on-disk representation into the canonical model, and an Output
// that consumes the canonical model. A format need not implement both
// (Labelbox is input-only). The label type parameter selects the task:
// ImageLabels for object detection, ImageSegmentations for instance
// segmentation.
//
// Formats with a native category table (COCO, YOLO data.yaml, Lightly
// schema.json) read it from the source; formats that store only a category
// name per object (KITTI, PascalVOC, Labelbox) take the caller-supplied name
// list in their constructor and fail with a ConfigurationError when it is
// missing. The distinction is fixed at construction time, so both roles share
// the same runtime interface.

import (
	"iter"
)

// Input produces the categories and labels of a source dataset.
//
// Labels returns a lazy, finite, single-pass sequence: each element
// corresponds to exactly one image in source discovery order, and the
// sequence is not guaranteed to be restartable. A non-nil error element is
// fatal for the run; recoverable conditions are reported to the run's
// Diagnostics instead, and the offending line or image is skipped.
type Input[L any] interface {
	Categories() []Category
	Labels() iter.Seq2[L, error]
}

// Output persists categories and labels in the format's on-disk
// representation. Begin is called exactly once with the frozen category
// registry before the first Write; Write is called once per image, in stream
// order; Finish is called after the last Write on success. Outputs must not
// materialize the label sequence: each label is persisted (or folded into the
// in-progress output document) before the next Write.
type Output[L any] interface {
	Begin(categories []Category) error
	Write(label L) error
	Finish() error
}

// The task-specific codec roles.
type (
	ObjectDetectionInput       = Input[ImageLabels]
	ObjectDetectionOutput      = Output[ImageLabels]
	InstanceSegmentationInput  = Input[ImageSegmentations]
	InstanceSegmentationOutput = Output[ImageSegmentations]
)

// categoriesFromNames builds the registry for formats without a native
// category table. Ids are the 0-based declaration order of the names.
func categoriesFromNames(names []string) ([]Category, error) {
	if len(names) == 0 {
		return nil, configErrf("this format has no native category table; category names are required")
	}

	seen := make(map[string]bool, len(names))
	categories := make([]Category, len(names))
	for i, name := range names {
		if name == "" {
			return nil, configErrf("empty category name at position %d", i)
		}
		if seen[name] {
			return nil, configErrf("duplicate category name %q", name)
		}
		seen[name] = true
		categories[i] = Category{ID: i, Name: name}
	}

	return categories, nil
}

// requireContiguousIDs verifies that category ids are 0..N-1 in declaration
// order, as the text-line formats require, and that names are unique.
func requireContiguousIDs(categories []Category) error {
	seen := make(map[string]bool, len(categories))
	for i, c := range categories {
		if c.ID != i {
			return configErrf("category ids must be contiguous 0..%d, got id %d for %q at position %d",
				len(categories)-1, c.ID, c.Name, i)
		}
		if seen[c.Name] {
			return configErrf("duplicate category name %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// categoriesByID indexes the registry by id.
func categoriesByID(categories []Category) map[int]Category {
	m := make(map[int]Category, len(categories))
	for _, c := range categories {
		m[c.ID] = c
	}
	return m
}

// categoriesByName indexes the registry by name.
func categoriesByName(categories []Category) map[string]Category {
	m := make(map[string]Category, len(categories))
	for _, c := range categories {
		m[c.Name] = c
	}
	return m
}
