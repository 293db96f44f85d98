package labelconv

// TFRecord object detection specific functionality. Writes tensorflow.Example
// records with the feature names used by the TensorFlow Object Detection API,
// plus a label map in prototxt format. Input is not supported.

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
)

// TFFeatureMap maps feature names to their values. Values must be convertible
// to tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFRecordOutput writes object detection labels to one or more TFRecord
// files, plus a label map file. With more than one shard, records are
// distributed round-robin and the shard files carry a -NNNNN-of-NNNNN suffix.
type TFRecordOutput struct {
	recordFile   string
	labelMapFile string
	imagesDir    string
	numShards    int
	diag         *Diagnostics

	// CustomiseFeature, when set, may modify the feature map of each record
	// before it is serialised, as long as all of its values can be converted
	// to tensorflow.Feature.
	CustomiseFeature func(label ImageLabels, m TFFeatureMap)

	shards  []*os.File
	nextIdx int
}

// NewTFRecordOutput writes the records to recordFile and the label map to
// labelMapFile. Image data is embedded in the records and read from
// imagesDir, resolved per label filename.
func NewTFRecordOutput(recordFile, labelMapFile, imagesDir string, numShards int,
	diag *Diagnostics) (*TFRecordOutput, error) {

	if diag == nil {
		diag = NewDiagnostics(nil)
	}
	if labelMapFile == "" {
		labelMapFile = withSuffix(recordFile, ".pbtxt")
	}
	if imagesDir == "" {
		return nil, configErrf("an images folder is required to embed the image data")
	}
	if numShards <= 0 {
		numShards = 1
	}
	return &TFRecordOutput{
		recordFile:   recordFile,
		labelMapFile: labelMapFile,
		imagesDir:    imagesDir,
		numShards:    numShards,
		diag:         diag,
	}, nil
}

func (t *TFRecordOutput) Begin(categories []Category) error {
	if err := t.writeLabelMap(categories); err != nil {
		return err
	}

	t.shards = make([]*os.File, t.numShards)
	for i := range t.shards {
		path := t.recordFile
		if t.numShards > 1 {
			path += fmt.Sprintf("-%05d-of-%05d", i, t.numShards)
		}
		if err := ensureParentDir(path); err != nil {
			return err
		}
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create shard at %q: %v", path, err)
		}
		t.shards[i] = file
	}
	return nil
}

// Write converts the label to a tensorflow.Example and appends it to the next
// shard. An image that cannot be read or decoded is skipped with a warning.
func (t *TFRecordOutput) Write(label ImageLabels) error {
	features, err := t.featureMap(label)
	if err != nil {
		t.diag.SkipImage(label.Image.Filename, err)
		return nil
	}
	if t.CustomiseFeature != nil {
		t.CustomiseFeature(label, features)
	}

	shard := t.shards[t.nextIdx]
	t.nextIdx = (t.nextIdx + 1) % len(t.shards)

	return writeTFRecordExample(shard, features)
}

func (t *TFRecordOutput) Finish() (err error) {
	for _, shard := range t.shards {
		closeWithErrCheck(shard, &err)
	}
	t.shards = nil
	return err
}

// featureMap builds the default feature map for one labelled image.
func (t *TFRecordOutput) featureMap(label ImageLabels) (TFFeatureMap, error) {
	imagePath := filepath.Join(t.imagesDir, label.Image.Filename)
	_, format, err := decodeImageConfig(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to decode the image metadata: %v", err)
	}
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read the image: %v", err)
	}

	f := make(TFFeatureMap, 16)
	f["image/height"] = label.Image.Height
	f["image/width"] = label.Image.Width
	f["image/filename"] = label.Image.Filename
	f["image/source_id"] = label.Image.Filename
	f["image/encoded"] = imgData
	f["image/format"] = format

	width := float32(label.Image.Width)
	height := float32(label.Image.Height)
	numLabels := len(label.Objects)
	xmins := make([]float32, numLabels)
	ymins := make([]float32, numLabels)
	xmaxs := make([]float32, numLabels)
	ymaxs := make([]float32, numLabels)
	classes := make([]string, numLabels)
	classIDs := make([]int64, numLabels)
	for i, obj := range label.Objects {
		xmins[i] = float32(obj.Box.XMin) / width
		ymins[i] = float32(obj.Box.YMin) / height
		xmaxs[i] = float32(obj.Box.XMax) / width
		ymaxs[i] = float32(obj.Box.YMax) / height
		classes[i] = obj.Category.Name
		classIDs[i] = tfRecordClassID(obj.Category)
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return f, nil
}

// writeLabelMap writes the categories as a StringIntLabelMap in prototxt
// format.
func (t *TFRecordOutput) writeLabelMap(categories []Category) (err error) {
	if err := ensureParentDir(t.labelMapFile); err != nil {
		return err
	}
	file, err := os.Create(t.labelMapFile)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", t.labelMapFile, err)
	}
	defer closeWithErrCheck(file, &err)

	var sb strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&sb, "item {\n  name: %q\n  id: %d\n}\n", c.Name, tfRecordClassID(c))
	}
	_, err = io.WriteString(file, sb.String())
	return err
}

// tfRecordClassID maps a category to its label map id. Label map ids start at
// 1; 0 is reserved for the background class.
func tfRecordClassID(c Category) int64 {
	return int64(c.ID) + 1
}

// writeTFRecordExample serialises the feature map as a tensorflow.Example and
// writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, features TFFeatureMap) error {
	enc, err := proto.Marshal(example.New(features))
	if err != nil {
		return err
	}
	return tfrecord.Write(w, enc)
}
