package labelconv

// KITTI specific functionality. One .txt label file per image with 15
// whitespace-separated fields per line (type, truncated, occluded, alpha,
// bbox x4, dimensions x3, location x3, rotation_y); only the type and the
// bbox corners carry information here, the rest are written as the KITTI
// "DontCare" placeholder values. The format has no category table, so the
// registry comes from caller-supplied names.

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// KITTIInput reads object detection labels from a folder of KITTI label
// files. Image dimensions come from the images folder, resolved via
// imagesRelPath relative to the label folder.
type KITTIInput struct {
	inputFolder   string
	imagesRelPath string
	categories    []Category
	diag          *Diagnostics
}

// NewKITTIInput reads the label files in inputFolder. The categoryNames list
// supplies the registry, in declaration order; imagesRelPath is the relative
// path from the label folder to the images folder (empty selects
// "../images").
func NewKITTIInput(inputFolder string, categoryNames []string, imagesRelPath string,
	diag *Diagnostics) (*KITTIInput, error) {

	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	if imagesRelPath == "" {
		imagesRelPath = "../images"
	}
	categories, err := categoriesFromNames(categoryNames)
	if err != nil {
		return nil, err
	}
	return &KITTIInput{
		inputFolder:   inputFolder,
		imagesRelPath: imagesRelPath,
		categories:    categories,
		diag:          diag,
	}, nil
}

func (k *KITTIInput) Categories() []Category { return k.categories }

// Labels yields one ImageLabels per image found in the images folder, in
// discovery order. Images without a label file and unreadable label files
// are skipped with a warning, as are lines with too few fields or
// non-numeric coordinates. An unknown category name is fatal.
func (k *KITTIInput) Labels() iter.Seq2[ImageLabels, error] {
	return func(yield func(ImageLabels, error) bool) {
		byName := categoriesByName(k.categories)

		images, err := imagesFromFolder(filepath.Join(k.inputFolder, k.imagesRelPath), k.diag)
		if err != nil {
			yield(ImageLabels{}, err)
			return
		}

		for _, image := range images {
			labelPath := withSuffix(filepath.Join(k.inputFolder, image.Filename), ".txt")
			lines, err := readLines(labelPath)
			if err != nil {
				k.diag.SkipImage(image.Filename, err)
				continue
			}

			objects := make([]ObjectLabel, 0, len(lines))
			for lineNo, line := range lines {
				if strings.TrimSpace(line) == "" {
					continue
				}
				obj, err := parseKITTILine(line, byName)
				if err != nil {
					if IsMalformed(err) {
						k.diag.SkipLine(labelPath, lineNo+1, err)
						continue
					}
					yield(ImageLabels{}, err)
					return
				}
				objects = append(objects, obj)
			}

			if !yield(ImageLabels{Image: image, Objects: objects}, nil) {
				return
			}
		}
	}
}

// parseKITTILine parses one label line. The trailing 14 tokens are floats;
// everything before them is the category name, which may contain spaces.
func parseKITTILine(line string, byName map[string]Category) (ObjectLabel, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 15 {
		return ObjectLabel{}, malformedf("expected 15 fields, got %d in %q", len(tokens), line)
	}

	name := strings.Join(tokens[:len(tokens)-14], " ")
	category, ok := byName[name]
	if !ok {
		return ObjectLabel{}, categoryRefErrf(
			"label line references category %q absent from the category set", name)
	}

	// bbox left, top, right, bottom.
	var coords [4]float64
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(tokens[len(tokens)-11+i], 64)
		if err != nil {
			return ObjectLabel{}, malformedf("non-numeric bbox value in %q: %v", line, err)
		}
		coords[i] = v
	}

	box, err := BoxFromCorners(coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		return ObjectLabel{}, err
	}

	return ObjectLabel{Category: category, Box: box}, nil
}

// KITTIOutput writes object detection labels as one KITTI label file per
// image.
type KITTIOutput struct {
	outputFolder string
}

// NewKITTIOutput writes the label files to outputFolder.
func NewKITTIOutput(outputFolder string) *KITTIOutput {
	return &KITTIOutput{outputFolder: outputFolder}
}

func (k *KITTIOutput) Begin(categories []Category) error {
	if err := requireContiguousIDs(categories); err != nil {
		return err
	}
	return os.MkdirAll(k.outputFolder, 0755)
}

func (k *KITTIOutput) Write(label ImageLabels) (err error) {
	path := withSuffix(filepath.Join(k.outputFolder, label.Image.Filename), ".txt")
	if err := ensureParentDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	for _, obj := range label.Objects {
		// Unknown values match the KITTI dataset "DontCare" label values.
		_, err = fmt.Fprintf(file, "%s -1 -1 -10 %s %s %s %s -1 -1 -1 -1000 -1000 -1000 -10\n",
			obj.Category.Name,
			kittiFloat(obj.Box.XMin), kittiFloat(obj.Box.YMin),
			kittiFloat(obj.Box.XMax), kittiFloat(obj.Box.YMax))
		if err != nil {
			return err
		}
	}

	return nil
}

func (k *KITTIOutput) Finish() error { return nil }

// kittiFloat formats a coordinate with two decimals, the precision used by
// the KITTI devkit.
func kittiFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
