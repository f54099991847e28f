package main

import (
	"image"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func bound(minx, miny, maxx, maxy float64) orb.Bound {
	return orb.Bound{Min: orb.Point{minx, miny}, Max: orb.Point{maxx, maxy}}
}

func TestClipExtentNeverInverts(t *testing.T) {
	extents := []orb.Bound{
		bound(-1, -1, 1, 1),
		bound(-1e9, -1e9, 1e9, 1e9),
		bound(-500, -200, -300, -100),
		bound(300, 100, 500, 200),
		bound(25e6, 25e6, 30e6, 30e6),
		bound(-30e6, -30e6, -25e6, -25e6),
		bound(170, -95, 190, 95),
	}
	for epsg, valid := range crsBounds {
		for _, e := range extents {
			c := ClipExtent(e, valid)
			assert.LessOrEqual(t, c.Min.X(), c.Max.X(), "epsg:%d %v", epsg, e)
			assert.LessOrEqual(t, c.Min.Y(), c.Max.Y(), "epsg:%d %v", epsg, e)
			assert.True(t, valid.Contains(c.Min) && valid.Contains(c.Max), "epsg:%d %v", epsg, e)
		}
	}
}

func TestClipExtentGeographic(t *testing.T) {
	c := ClipExtent(bound(-200, -100, 200, 100), crsBounds[EPSGGeographic])
	assert.Equal(t, bound(-180, -90, 180, 90), c)

	// longitude and latitude are clipped to their own limits
	c = ClipExtent(bound(-10, -95, 190, 10), crsBounds[EPSGGeographic])
	assert.Equal(t, bound(-10, -90, 180, 10), c)
}

func TestEmptyExtent(t *testing.T) {
	assert.True(t, EmptyExtent(orb.Bound{}))
	assert.True(t, EmptyExtent(bound(0, 0, 0, 10)))
	assert.True(t, EmptyExtent(bound(1, 1, 0, 2)))
	assert.False(t, EmptyExtent(bound(-1, -1, 1, 1)))
}

func TestResetAspectRatio(t *testing.T) {
	wide := ResetAspectRatio(bound(-1, -1, 1, 1), 200, 100)
	assert.InDelta(t, 4.0, extentWidth(wide), 1e-9)
	assert.InDelta(t, 2.0, extentHeight(wide), 1e-9)
	assert.Equal(t, orb.Point{0, 0}, wide.Center())

	tall := ResetAspectRatio(bound(0, 0, 4, 2), 100, 100)
	assert.InDelta(t, 4.0, extentWidth(tall), 1e-9)
	assert.InDelta(t, 4.0, extentHeight(tall), 1e-9)
	assert.Equal(t, orb.Point{2, 1}, tall.Center())

	// zero size leaves the extent untouched
	assert.Equal(t, bound(0, 0, 4, 2), ResetAspectRatio(bound(0, 0, 4, 2), 0, 100))
}

func TestExpandAndCenter(t *testing.T) {
	assert.Equal(t, bound(-2, -3, 2, 3), ExpandBy(bound(-1, -1, 1, 1), 1, 2))
	assert.Equal(t, bound(9, 18, 11, 22), SetCenter(orb.Point{10, 20}, 2, 4))
}

func TestProjToPixel(t *testing.T) {
	view := bound(0, 0, 100, 100)
	rect := image.Rect(0, 0, 200, 200)

	assert.Equal(t, image.Rect(0, 0, 200, 200), projToPixel(view, view, rect))
	// y axis is flipped
	assert.Equal(t, image.Rect(0, 100, 100, 200), projToPixel(bound(0, 0, 50, 50), view, rect))
	assert.Equal(t, image.Rect(10, 10, 110, 110), projToPixel(bound(0, 50, 50, 100), view, rect.Add(image.Pt(10, 10))))
	assert.True(t, projToPixel(view, orb.Bound{}, rect).Empty())
}

func TestReprojection(t *testing.T) {
	world := crsBounds[EPSGWebMercator]
	geog := toGeographic(world, EPSGWebMercator)
	assert.InDelta(t, -180, geog.Min.X(), 1e-6)
	assert.InDelta(t, 180, geog.Max.X(), 1e-6)
	assert.InDelta(t, webMercatorLatLimit, geog.Max.Y(), 1e-6)

	back := fromGeographic(geog, EPSGWebMercator)
	assert.InDelta(t, MaxWebMercX, back.Max.X(), 1e-3)
	assert.InDelta(t, MaxWebMercY, back.Max.Y(), 1e-3)

	// geographic is the identity
	b := bound(1, 2, 3, 4)
	assert.Equal(t, b, toGeographic(b, EPSGGeographic))
	assert.Equal(t, b, fromGeographic(b, EPSGGeographic))
}
