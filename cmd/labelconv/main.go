// Converts object detection and instance segmentation labels between the
// COCO, YOLO, PascalVOC, KITTI, Labelbox and Lightly formats, with optional
// TFRecord output and image resizing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sensorable/labelconv"
)

var (
	task         string // The conversion task.
	inputFormat  format // The source format.
	outputFormat format // The target format.

	inputFile    string // The input label file (coco, yolo, labelbox).
	inputFolder  string // The input label folder (pascalvoc, kitti, lightly).
	outputFile   string // The output label file (coco, yolo, tfrecord).
	outputFolder string // The output label folder (pascalvoc, kitti, lightly).

	categoryNames          []string // Names for formats without a category table.
	imagesRelPath          string   // Images folder relative to the label folder (kitti, lightly).
	filenameKey            string   // The data row field used as the filename (labelbox).
	inputSplit             string   // The dataset split to read (yolo).
	outputSplit            string   // The dataset split to write (yolo).
	skipLabelsWithoutImage bool     // Skip label files without an image (lightly).

	tfRecordLabelMapFile string // The TFRecord label map file.
	tfRecordImagesDir    string // The images embedded into TFRecords.
	numShardFiles        int    // The number of TFRecord shard files.

	imageDirPath            string // The input directory with the labeled images.
	imageOutDirPath         string // The output directory for resized images.
	imageOutEncoding        string // The file type for image outputs.
	imageResizeLonger       int    // The target length for the longer side of the image.
	imageResizeShorter      int    // The target length for the shorter side of the image.
	imageDownsamplingFilter string // The algorithm to use when downsampling.
	imageUpsamplingFilter   string // The algorithm to use when upsampling.
	imageJPEGQuality        int    // The JPEG quality for JPEG outputs.
)

type format int

// The known label formats.
const (
	Unknown format = iota
	COCO
	YOLO
	PascalVOC
	Kitti
	Labelbox
	Lightly
	TFRecord
)

// Versioned YOLO names (yolov5 through yolov26) share the same dataset
// layout.
var yoloVersioned = regexp.MustCompile(`^yolov\d+$`)

func formatFrom(s string) format {
	switch s {
	case "coco":
		return COCO
	case "yolo":
		return YOLO
	case "pascalvoc", "voc":
		return PascalVOC
	case "kitti":
		return Kitti
	case "labelbox":
		return Labelbox
	case "lightly":
		return Lightly
	case "tfrecord":
		return TFRecord
	}
	if yoloVersioned.MatchString(s) {
		return YOLO
	}
	return Unknown
}

var inputFormats = map[string][]format{
	"detect":  {COCO, YOLO, PascalVOC, Kitti, Labelbox, Lightly},
	"segment": {COCO, YOLO},
}

var outputFormats = map[string][]format{
	"detect":  {COCO, YOLO, PascalVOC, Kitti, Lightly, TFRecord},
	"segment": {COCO, YOLO},
}

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  coco input/output options:\t-input-file / -output-file")
		_, _ = fmt.Fprintln(os.Stderr, "  yolo input/output options:\t-input-file / -output-file"+
			" (the data.yaml) [-input-split] [-output-split]")
		_, _ = fmt.Fprintln(os.Stderr, "  pascalvoc input options:\t-input-folder -category-names")
		_, _ = fmt.Fprintln(os.Stderr, "  pascalvoc output options:\t-output-folder")
		_, _ = fmt.Fprintln(os.Stderr, "  kitti input options:\t\t-input-folder -category-names"+
			" [-images-rel-path]")
		_, _ = fmt.Fprintln(os.Stderr, "  kitti output options:\t\t-output-folder")
		_, _ = fmt.Fprintln(os.Stderr, "  labelbox input options:\t-input-file -category-names"+
			" [-filename-key]")
		_, _ = fmt.Fprintln(os.Stderr, "  lightly input options:\t-input-folder [-images-rel-path]"+
			" [-skip-labels-without-image]")
		_, _ = fmt.Fprintln(os.Stderr, "  lightly output options:\t-output-folder")
		_, _ = fmt.Fprintln(os.Stderr, "  tfrecord output options:\t-output-file -tfrecord-images"+
			" [-tfrecord-label-map-file] [-num-shards]")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Task and format arguments.
	flag.StringVar(&task, "task", "detect",
		"The conversion `task` {detect, segment}")
	from := flag.String("input-format", "", "The source `format`")
	to := flag.String("output-format", "", "The target `format`")

	// Path arguments.
	flag.StringVar(&inputFile, "input-file", inputFile,
		"The `path` to the label input file (coco, yolo, labelbox)")
	flag.StringVar(&inputFolder, "input-folder", inputFolder,
		"The `path` to the label input folder (pascalvoc, kitti, lightly)")
	flag.StringVar(&outputFile, "output-file", outputFile,
		"The `path` to the label output file (coco, yolo, tfrecord)")
	flag.StringVar(&outputFolder, "output-folder", outputFolder,
		"The `path` to the label output folder (pascalvoc, kitti, lightly)")

	// Registry and format-specific arguments.
	names := flag.String("category-names", "",
		"Comma-separated category `names` in id order, for input formats without"+
			" a category table (pascalvoc, kitti, labelbox)")
	flag.StringVar(&imagesRelPath, "images-rel-path", "../images",
		"The `path` from the label folder to the images folder (kitti, lightly)")
	flag.StringVar(&filenameKey, "filename-key", "",
		"The data row `field` used as the image filename (labelbox)"+
			" {global_key, external_id, id}")
	flag.StringVar(&inputSplit, "input-split", "train",
		"The dataset `split` to read (yolo)")
	flag.StringVar(&outputSplit, "output-split", "train",
		"The dataset `split` to write (yolo)")
	flag.BoolVar(&skipLabelsWithoutImage, "skip-labels-without-image", false,
		"Skip label files whose image is missing instead of failing (lightly)")

	// TFRecord arguments.
	flag.StringVar(&tfRecordLabelMapFile, "tfrecord-label-map-file", tfRecordLabelMapFile,
		"The TFRecord label map file `path` (defaults to the record path with a .pbtxt suffix)")
	flag.StringVar(&tfRecordImagesDir, "tfrecord-images", tfRecordImagesDir,
		"The `path` to the folder with the images embedded into TFRecords")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")

	// Image processing arguments.
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the image input directory (required when resizing)")
	flag.StringVar(&imageOutDirPath, "images-out", imageOutDirPath,
		"The `path` to the image output directory (required when resizing)")
	flag.StringVar(&imageOutEncoding, "image-enc", "jpg",
		"The `encoding` for output images {jpg, png}")
	flag.IntVar(&imageResizeLonger, "resize-longer", imageResizeLonger,
		"The target `length` for the longer side of the image (zero to keep aspect ratio)")
	flag.IntVar(&imageResizeShorter, "resize-shorter", imageResizeShorter,
		"The target `length` for the shorter side of the image (zero to keep aspect ratio)")
	flag.StringVar(&imageDownsamplingFilter, "downsample-filter", "box",
		"The filter to use when downsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.StringVar(&imageUpsamplingFilter, "upsample-filter", "linear",
		"The filter to use when upsampling an image {nearest, box, linear, gaussian, lanczos}")
	flag.IntVar(&imageJPEGQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEGs [1, 100]")

	// Parse and validate flags.
	flag.Parse()

	if task != "detect" && task != "segment" {
		printUsageAndExit("Unsupported task: ", task)
	}

	inputFormat = formatFrom(*from)
	outputFormat = formatFrom(*to)

	// Validate the conversion direction for the task.
	validInFormat := false
	for _, f := range inputFormats[task] {
		if f == inputFormat {
			validInFormat = true
			break
		}
	}
	validOutFormat := false
	for _, f := range outputFormats[task] {
		if f == outputFormat {
			validOutFormat = true
			break
		}
	}
	if !validInFormat {
		printUsageAndExit("Unsupported input format for task ", task)
	} else if !validOutFormat {
		printUsageAndExit("Unsupported output format for task ", task)
	}

	// Validate input and output path arguments.
	switch inputFormat {
	case COCO, YOLO, Labelbox:
		if inputFile == "" {
			printUsageAndExit("Missing -input-file argument")
		}
		inputFile = filepath.Clean(inputFile)
	default:
		if inputFolder == "" {
			printUsageAndExit("Missing -input-folder argument")
		}
		inputFolder = filepath.Clean(inputFolder)
	}
	switch outputFormat {
	case COCO, YOLO, TFRecord:
		if outputFile == "" {
			printUsageAndExit("Missing -output-file argument")
		}
		outputFile = filepath.Clean(outputFile)
		if outputFile == inputFile {
			printUsageAndExit("The label input and output paths cannot be identical")
		}
	default:
		if outputFolder == "" {
			printUsageAndExit("Missing -output-folder argument")
		}
		outputFolder = filepath.Clean(outputFolder)
		if outputFolder == inputFolder {
			printUsageAndExit("The label input and output paths cannot be identical")
		}
	}

	if *names != "" {
		categoryNames = splitNonEmpty(*names)
	}

	// Image processing arguments.
	if imageResizeLonger > 0 || imageResizeShorter > 0 {
		if task != "detect" {
			printUsageAndExit("Image resizing is only supported for task detect")
		}
		if imageDirPath == "" || imageOutDirPath == "" {
			printUsageAndExit("Missing image input or output directory path")
		}
		imageDirPath = filepath.Clean(imageDirPath)
		imageOutDirPath = filepath.Clean(imageOutDirPath)
		if imageDirPath == imageOutDirPath {
			printUsageAndExit("The image input and output paths cannot be identical")
		}
	}
	if imageJPEGQuality < 1 || imageJPEGQuality > 100 {
		imageJPEGQuality = 92
		log.Print("Invalid JPEG quality, setting it to ", imageJPEGQuality)
	}
}

// splitNonEmpty splits a comma-separated flag value, dropping empty elements.
func splitNonEmpty(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to initialise the logger: ", err)
	}
	defer func() { _ = logger.Sync() }()
	diag := labelconv.NewDiagnostics(logger)

	switch task {
	case "detect":
		err = runDetection(diag)
	case "segment":
		err = runSegmentation(diag)
	}
	if err != nil {
		logger.Fatal("Conversion failed", zap.Error(err))
	}
	logger.Info("Conversion complete")
}

func runDetection(diag *labelconv.Diagnostics) error {
	in, err := newDetectionInput(diag)
	if err != nil {
		return err
	}

	if imageResizeLonger > 0 || imageResizeShorter > 0 {
		in, err = labelconv.NewResizeInput(in, imageDirPath, labelconv.ResizeOptions{
			OutputDir:   imageOutDirPath,
			LongerSide:  imageResizeLonger,
			ShorterSide: imageResizeShorter,
			DownFilter:  imageDownsamplingFilter,
			UpFilter:    imageUpsamplingFilter,
			Encoding:    imageOutEncoding,
			JPEGQuality: imageJPEGQuality,
		}, diag)
		if err != nil {
			return err
		}
	}

	out, err := newDetectionOutput(diag)
	if err != nil {
		return err
	}
	return labelconv.Convert(in, out, diag)
}

func runSegmentation(diag *labelconv.Diagnostics) error {
	var in labelconv.InstanceSegmentationInput
	var err error
	switch inputFormat {
	case COCO:
		in, err = labelconv.NewCOCOSegmentationInput(inputFile, diag)
	case YOLO:
		in, err = labelconv.NewYOLOSegmentationInput(inputFile, inputSplit, diag)
	}
	if err != nil {
		return err
	}

	var out labelconv.InstanceSegmentationOutput
	switch outputFormat {
	case COCO:
		out = labelconv.NewCOCOSegmentationOutput(outputFile, diag)
	case YOLO:
		out = labelconv.NewYOLOSegmentationOutput(outputFile, outputSplit, diag)
	}
	return labelconv.Convert(in, out, diag)
}

func newDetectionInput(diag *labelconv.Diagnostics) (labelconv.ObjectDetectionInput, error) {
	switch inputFormat {
	case COCO:
		return labelconv.NewCOCODetectionInput(inputFile, diag)
	case YOLO:
		return labelconv.NewYOLOInput(inputFile, inputSplit, diag)
	case PascalVOC:
		return labelconv.NewPascalVOCInput(inputFolder, categoryNames, diag)
	case Kitti:
		return labelconv.NewKITTIInput(inputFolder, categoryNames, imagesRelPath, diag)
	case Labelbox:
		return labelconv.NewLabelboxInput(inputFile, categoryNames, filenameKey, diag)
	case Lightly:
		return labelconv.NewLightlyInput(inputFolder, imagesRelPath, skipLabelsWithoutImage, diag)
	}
	return nil, fmt.Errorf("unsupported input format")
}

func newDetectionOutput(diag *labelconv.Diagnostics) (labelconv.ObjectDetectionOutput, error) {
	switch outputFormat {
	case COCO:
		return labelconv.NewCOCODetectionOutput(outputFile), nil
	case YOLO:
		return labelconv.NewYOLOOutput(outputFile, outputSplit), nil
	case PascalVOC:
		return labelconv.NewPascalVOCOutput(outputFolder), nil
	case Kitti:
		return labelconv.NewKITTIOutput(outputFolder), nil
	case Lightly:
		return labelconv.NewLightlyOutput(outputFolder), nil
	case TFRecord:
		return labelconv.NewTFRecordOutput(outputFile, tfRecordLabelMapFile, tfRecordImagesDir,
			numShardFiles, diag)
	}
	return nil, fmt.Errorf("unsupported output format")
}
