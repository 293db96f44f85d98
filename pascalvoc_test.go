package labelconv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vocFixture = `<annotation>
  <folder>images</folder>
  <filename>img1.jpg</filename>
  <size>
    <width>640</width>
    <height>480</height>
    <depth>3</depth>
  </size>
  <object>
    <name>car</name>
    <pose>Unspecified</pose>
    <bndbox>
      <xmin>10</xmin>
      <ymin>20</ymin>
      <xmax>110</xmax>
      <ymax>220</ymax>
    </bndbox>
  </object>
  <object>
    <name>person</name>
    <bndbox>
      <xmin>300</xmin>
      <ymin>100</ymin>
      <xmax>350</xmax>
      <ymax>250</ymax>
    </bndbox>
  </object>
</annotation>
`

func TestPascalVOCInput(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "img1.xml"), vocFixture)

	in, err := NewPascalVOCInput(dir, []string{"car", "person"}, nil)
	require.NoError(t, err)

	labels, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)
	require.Len(t, labels, 1)
	assert.Equal(t, Image{ID: 0, Filename: "img1.jpg", Width: 640, Height: 480}, labels[0].Image)

	require.Len(t, labels[0].Objects, 2)
	assert.Equal(t, Category{ID: 0, Name: "car"}, labels[0].Objects[0].Category)
	assert.Equal(t, BoundingBox{XMin: 10, YMin: 20, XMax: 110, YMax: 220}, labels[0].Objects[0].Box)
	assert.Equal(t, Category{ID: 1, Name: "person"}, labels[0].Objects[1].Category)
}

func TestPascalVOCInputRequiresDirectory(t *testing.T) {
	_, err := NewPascalVOCInput(filepath.Join(t.TempDir(), "missing"), []string{"car"}, nil)
	require.Error(t, err)
	assert.True(t, IsConfiguration(err))
}

func TestPascalVOCInputUnparseableXMLIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "img1.xml"), "<annotation><object>")

	in, err := NewPascalVOCInput(dir, []string{"car"}, nil)
	require.NoError(t, err)

	_, err = collectLabels[ImageLabels](in)
	require.Error(t, err)
	assert.True(t, IsStructuralParse(err))
}

func TestPascalVOCInputUnknownNameIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "img1.xml"), vocFixture)

	in, err := NewPascalVOCInput(dir, []string{"car"}, nil)
	require.NoError(t, err)

	_, err = collectLabels[ImageLabels](in)
	require.Error(t, err)
	assert.True(t, IsCategoryReference(err))
}

func TestPascalVOCRoundTrip(t *testing.T) {
	dir := t.TempDir()
	inDir := filepath.Join(dir, "in")
	writeTestFile(t, filepath.Join(inDir, "img1.xml"), vocFixture)

	in, err := NewPascalVOCInput(inDir, []string{"car", "person"}, nil)
	require.NoError(t, err)
	want, err := collectLabels[ImageLabels](in)
	require.NoError(t, err)

	outDir := filepath.Join(dir, "out")
	in2, err := NewPascalVOCInput(inDir, []string{"car", "person"}, nil)
	require.NoError(t, err)
	require.NoError(t, Convert[ImageLabels](in2, NewPascalVOCOutput(outDir), nil))

	reread, err := NewPascalVOCInput(outDir, []string{"car", "person"}, nil)
	require.NoError(t, err)
	got, err := collectLabels[ImageLabels](reread)
	require.NoError(t, err)

	assert.Equal(t, want, got)
}
