package labelconv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoxConstructorsRejectEmptyBoxes(t *testing.T) {
	tests := []struct {
		name string
		make func() (BoundingBox, error)
	}{
		{"corners zero width", func() (BoundingBox, error) {
			return BoxFromCorners(10, 10, 10, 20)
		}},
		{"corners negative height", func() (BoundingBox, error) {
			return BoxFromCorners(10, 30, 20, 20)
		}},
		{"xywh zero height", func() (BoundingBox, error) {
			return BoxFromXYWH(5, 5, 10, 0)
		}},
		{"center negative width", func() (BoundingBox, error) {
			return BoxFromCenter(50, 50, -10, 10)
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.make()
			require.Error(t, err)
			assert.True(t, IsMalformed(err))
		})
	}
}

func TestBoxConversionsRoundTrip(t *testing.T) {
	box, err := BoxFromCorners(150, 200, 200, 280)
	require.NoError(t, err)

	x, y, w, h := box.XYWH()
	assert.Equal(t, 150.0, x)
	assert.Equal(t, 200.0, y)
	assert.Equal(t, 50.0, w)
	assert.Equal(t, 80.0, h)

	cx, cy, cw, ch := box.Center()
	assert.Equal(t, 175.0, cx)
	assert.Equal(t, 240.0, cy)
	assert.Equal(t, 50.0, cw)
	assert.Equal(t, 80.0, ch)

	fromCenter, err := BoxFromCenter(cx, cy, cw, ch)
	require.NoError(t, err)
	assert.Equal(t, box, fromCenter)

	fromXYWH, err := BoxFromXYWH(x, y, w, h)
	require.NoError(t, err)
	assert.Equal(t, box, fromXYWH)
}

func TestBoxNormalizedCenter(t *testing.T) {
	// A 50x80 box at (150, 200) in a 640x480 image.
	box, err := BoxFromXYWH(150, 200, 50, 80)
	require.NoError(t, err)

	cx, cy, w, h := box.Center()
	assert.InDelta(t, 0.273438, cx/640, 1e-6)
	assert.InDelta(t, 0.5, cy/480, 1e-6)
	assert.InDelta(t, 0.078125, w/640, 1e-6)
	assert.InDelta(t, 0.166667, h/480, 1e-6)
}

func TestNewImageRejectsNonPositiveDimensions(t *testing.T) {
	_, err := NewImage(0, "a.jpg", 0, 480)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	_, err = NewImage(0, "a.jpg", 640, -1)
	require.Error(t, err)
	assert.True(t, IsMalformed(err))

	img, err := NewImage(7, "a.jpg", 640, 480)
	require.NoError(t, err)
	assert.Equal(t, Image{ID: 7, Filename: "a.jpg", Width: 640, Height: 480}, img)
}

func TestMultiPolygonBoundingBox(t *testing.T) {
	m := MultiPolygon{Polygons: [][]Point{
		{{X: 10, Y: 20}, {X: 30, Y: 20}, {X: 30, Y: 40}},
		{{X: 5, Y: 25}, {X: 12, Y: 50}, {X: 8, Y: 45}},
	}}

	box, err := m.BoundingBox()
	require.NoError(t, err)
	assert.Equal(t, BoundingBox{XMin: 5, YMin: 20, XMax: 30, YMax: 50}, box)

	_, err = MultiPolygon{}.BoundingBox()
	require.Error(t, err)
	assert.True(t, IsMalformed(err))
}
