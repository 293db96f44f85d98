package labelconv

// PascalVOC specific functionality. One XML file per image with the object
// names and absolute pixel corner coordinates; the format has no category
// table, so the registry comes from caller-supplied names.

import (
	"encoding/xml"
	"iter"
	"os"
	"path/filepath"
)

type vocSize struct {
	Width  int `xml:"width"`
	Height int `xml:"height"`
	Depth  int `xml:"depth"`
}

type vocBndBox struct {
	XMin float64 `xml:"xmin"`
	YMin float64 `xml:"ymin"`
	XMax float64 `xml:"xmax"`
	YMax float64 `xml:"ymax"`
}

type vocObject struct {
	Name      string    `xml:"name"`
	Pose      string    `xml:"pose"`
	Truncated int       `xml:"truncated"`
	Occluded  int       `xml:"occluded"`
	Difficult int       `xml:"difficult"`
	BndBox    vocBndBox `xml:"bndbox"`
}

type vocAnnotation struct {
	XMLName   xml.Name    `xml:"annotation"`
	Folder    string      `xml:"folder"`
	Filename  string      `xml:"filename"`
	Size      vocSize     `xml:"size"`
	Segmented int         `xml:"segmented"`
	Objects   []vocObject `xml:"object"`
}

// PascalVOCInput reads object detection labels from a folder of PascalVOC
// XML files.
type PascalVOCInput struct {
	inputFolder string
	categories  []Category
	diag        *Diagnostics
}

// NewPascalVOCInput reads the XML files directly in inputFolder. The
// categoryNames list supplies the registry, in declaration order.
func NewPascalVOCInput(inputFolder string, categoryNames []string, diag *Diagnostics) (*PascalVOCInput, error) {
	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	info, err := os.Stat(inputFolder)
	if err != nil || !info.IsDir() {
		return nil, configErrf("input folder %q is not a directory", inputFolder)
	}
	categories, err := categoriesFromNames(categoryNames)
	if err != nil {
		return nil, err
	}
	return &PascalVOCInput{inputFolder: inputFolder, categories: categories, diag: diag}, nil
}

func (p *PascalVOCInput) Categories() []Category { return p.categories }

// Labels yields one ImageLabels per XML file, in lexical file order. Image
// ids are assigned in that order. An XML document that does not parse is
// fatal; an object with a non-positive box is skipped with a warning; an
// unknown object name is fatal.
func (p *PascalVOCInput) Labels() iter.Seq2[ImageLabels, error] {
	return func(yield func(ImageLabels, error) bool) {
		byName := categoriesByName(p.categories)

		xmlFiles, err := filesByExtInDir(p.inputFolder, ".xml")
		if err != nil {
			yield(ImageLabels{}, configErrf("%v", err))
			return
		}

		imageID := 0
		for _, path := range xmlFiles {
			enc, err := os.ReadFile(path)
			if err != nil {
				yield(ImageLabels{}, structuralErr(path, err))
				return
			}
			var ann vocAnnotation
			if err := xml.Unmarshal(enc, &ann); err != nil {
				yield(ImageLabels{}, structuralErr(path, err))
				return
			}

			img, err := NewImage(imageID, ann.Filename, ann.Size.Width, ann.Size.Height)
			if err != nil {
				p.diag.SkipImage(ann.Filename, err)
				continue
			}
			imageID++

			objects := make([]ObjectLabel, 0, len(ann.Objects))
			for _, obj := range ann.Objects {
				category, ok := byName[obj.Name]
				if !ok {
					yield(ImageLabels{}, categoryRefErrf(
						"file %q references category %q absent from the category set", path, obj.Name))
					return
				}
				box, err := BoxFromCorners(obj.BndBox.XMin, obj.BndBox.YMin, obj.BndBox.XMax, obj.BndBox.YMax)
				if err != nil {
					p.diag.SkipLine(path, -1, err)
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

// PascalVOCOutput writes object detection labels as one XML file per image.
type PascalVOCOutput struct {
	outputFolder string
}

// NewPascalVOCOutput writes the XML files to outputFolder.
func NewPascalVOCOutput(outputFolder string) *PascalVOCOutput {
	return &PascalVOCOutput{outputFolder: outputFolder}
}

func (p *PascalVOCOutput) Begin(categories []Category) error {
	return os.MkdirAll(p.outputFolder, 0755)
}

func (p *PascalVOCOutput) Write(label ImageLabels) error {
	ann := vocAnnotation{
		Folder:   filepath.Base(p.outputFolder),
		Filename: label.Image.Filename,
		Size: vocSize{
			Width:  label.Image.Width,
			Height: label.Image.Height,
			Depth:  3, // Assuming RGB images.
		},
	}
	for _, obj := range label.Objects {
		ann.Objects = append(ann.Objects, vocObject{
			Name: obj.Category.Name,
			Pose: "Unspecified",
			BndBox: vocBndBox{
				XMin: obj.Box.XMin,
				YMin: obj.Box.YMin,
				XMax: obj.Box.XMax,
				YMax: obj.Box.YMax,
			},
		})
	}

	enc, err := xml.MarshalIndent(ann, "", "  ")
	if err != nil {
		return err
	}

	path := withSuffix(filepath.Join(p.outputFolder, label.Image.Filename), ".xml")
	if err := ensureParentDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, append(enc, '\n'), 0644)
}

func (p *PascalVOCOutput) Finish() error { return nil }
