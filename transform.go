package labelconv

// Streaming image resize stage.
//
// A resize stage wraps an object detection Input: every image referenced by
// the stream is resampled into an output folder and its box coordinates are
// rescaled by the same factors. The stage processes one image per pull, so
// the conversion keeps its single-image memory bound.

import (
	"iter"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// ResizeOptions configures a resize stage.
type ResizeOptions struct {
	OutputDir   string // Destination folder for the resampled images.
	LongerSide  int    // Target length of the longer image side; 0 keeps the aspect ratio.
	ShorterSide int    // Target length of the shorter image side; 0 keeps the aspect ratio.
	DownFilter  string // One of nearest, box, linear, gaussian, lanczos. Empty selects box.
	UpFilter    string // Same choices as DownFilter. Empty selects linear.
	Encoding    string // Output encoding, jpg or png. Empty selects jpg.
	JPEGQuality int    // Quality for jpg outputs [1, 100]. 0 selects 90.
}

type resizeInput struct {
	in       Input[ImageLabels]
	imageDir string
	opts     ResizeOptions
	down, up imaging.ResampleFilter
	fileExt  string
	diag     *Diagnostics
}

// NewResizeInput wraps in with a resize stage. Source images are read from
// imageDir (resolved against each label's image filename), resampled per opts
// and written to opts.OutputDir. Images that cannot be read or decoded are
// skipped with a warning together with their labels.
func NewResizeInput(in Input[ImageLabels], imageDir string, opts ResizeOptions,
	diag *Diagnostics) (Input[ImageLabels], error) {

	if opts.OutputDir == "" {
		return nil, configErrf("resizing images requires an image output directory")
	}
	if opts.LongerSide <= 0 && opts.ShorterSide <= 0 {
		return nil, configErrf("resizing images requires a target side length")
	}
	if opts.DownFilter == "" {
		opts.DownFilter = "box"
	}
	if opts.UpFilter == "" {
		opts.UpFilter = "linear"
	}
	down, err := resampleFilterByName(opts.DownFilter)
	if err != nil {
		return nil, err
	}
	up, err := resampleFilterByName(opts.UpFilter)
	if err != nil {
		return nil, err
	}

	var fileExt string
	switch opts.Encoding {
	case "", "jpg", "jpeg":
		fileExt = ".jpg"
	case "png":
		fileExt = ".png"
	default:
		return nil, configErrf("unsupported output encoding %q", opts.Encoding)
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = 90
	}

	if diag == nil {
		diag = NewDiagnostics(nil)
	}

	return &resizeInput{
		in:       in,
		imageDir: imageDir,
		opts:     opts,
		down:     down,
		up:       up,
		fileExt:  fileExt,
		diag:     diag,
	}, nil
}

func (r *resizeInput) Categories() []Category {
	return r.in.Categories()
}

func (r *resizeInput) Labels() iter.Seq2[ImageLabels, error] {
	return func(yield func(ImageLabels, error) bool) {
		for label, err := range r.in.Labels() {
			if err != nil {
				yield(ImageLabels{}, err)
				return
			}

			resized, ok := r.resizeOne(label)
			if !ok {
				continue
			}
			if !yield(resized, nil) {
				return
			}
		}
	}
}

// resizeOne resamples the label's image file and rescales its boxes. Returns
// false if the image was skipped.
func (r *resizeInput) resizeOne(label ImageLabels) (ImageLabels, bool) {
	srcPath := filepath.Join(r.imageDir, label.Image.Filename)
	img, _, err := loadImage(srcPath)
	if err != nil {
		r.diag.SkipImage(label.Image.Filename, err)
		return ImageLabels{}, false
	}

	resized, scaleWidth, scaleHeight := resizeImage(
		img, r.opts.LongerSide, r.opts.ShorterSide, r.down, r.up)

	outName := withSuffix(label.Image.Filename, r.fileExt)
	outPath := filepath.Join(r.opts.OutputDir, outName)
	if err := ensureParentDir(outPath); err != nil {
		r.diag.SkipImage(label.Image.Filename, err)
		return ImageLabels{}, false
	}
	if err := saveImage(outPath, resized, r.opts.JPEGQuality); err != nil {
		r.diag.SkipImage(label.Image.Filename, err)
		return ImageLabels{}, false
	}

	bounds := resized.Bounds()
	outImage, err := NewImage(label.Image.ID, outName, bounds.Dx(), bounds.Dy())
	if err != nil {
		r.diag.SkipImage(label.Image.Filename, err)
		return ImageLabels{}, false
	}

	objects := make([]ObjectLabel, 0, len(label.Objects))
	for _, obj := range label.Objects {
		box, err := BoxFromCorners(
			obj.Box.XMin*scaleWidth, obj.Box.YMin*scaleHeight,
			obj.Box.XMax*scaleWidth, obj.Box.YMax*scaleHeight)
		if err != nil {
			r.diag.SkipLine(label.Image.Filename, -1, err)
			continue
		}
		objects = append(objects, ObjectLabel{Category: obj.Category, Box: box})
	}

	return ImageLabels{Image: outImage, Objects: objects}, true
}
