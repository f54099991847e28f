package main

import (
	"image"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// EPSG codes understood by the tile pipeline.
const (
	EPSGWebMercator = 3857
	EPSGGeographic  = 4326
)

const (
	MinWebMercX = -20037508.342789244
	MaxWebMercX = 20037508.342789244
	MinWebMercY = -20037508.342789244
	MaxWebMercY = 20037508.342789244

	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinLatitude  = -90.0
	MaxLatitude  = 90.0

	webMercatorLatLimit = 85.05112877980659
)

// crsBounds 各坐标系的有效范围,新增坐标系需同时扩展 schemas 和 toGeographic
var crsBounds = map[int]orb.Bound{
	EPSGWebMercator: {Min: orb.Point{MinWebMercX, MinWebMercY}, Max: orb.Point{MaxWebMercX, MaxWebMercY}},
	EPSGGeographic:  {Min: orb.Point{MinLongitude, MinLatitude}, Max: orb.Point{MaxLongitude, MaxLatitude}},
}

//SupportedCRS 是否支持该坐标系
func SupportedCRS(epsg int) bool {
	_, ok := crsBounds[epsg]
	return ok
}

//Clip 将值限制在[min,max]
func Clip(n, minValue, maxValue float64) float64 {
	return math.Min(math.Max(n, minValue), maxValue)
}

//ClipExtent 将范围裁剪到坐标系有效范围内
func ClipExtent(b orb.Bound, valid orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{Clip(b.Min.X(), valid.Min.X(), valid.Max.X()), Clip(b.Min.Y(), valid.Min.Y(), valid.Max.Y())},
		Max: orb.Point{Clip(b.Max.X(), valid.Min.X(), valid.Max.X()), Clip(b.Max.Y(), valid.Min.Y(), valid.Max.Y())},
	}
}

func extentWidth(b orb.Bound) float64  { return b.Max.X() - b.Min.X() }
func extentHeight(b orb.Bound) float64 { return b.Max.Y() - b.Min.Y() }

//EmptyExtent 无面积的范围视为空
func EmptyExtent(b orb.Bound) bool {
	return !(extentWidth(b) > 0) || !(extentHeight(b) > 0)
}

//ExpandBy 四周各扩展dx,dy
func ExpandBy(b orb.Bound, dx, dy float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Min.X() - dx, b.Min.Y() - dy},
		Max: orb.Point{b.Max.X() + dx, b.Max.Y() + dy},
	}
}

//SetCenter 以center为中心,重设宽高
func SetCenter(center orb.Point, width, height float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{center.X() - width/2, center.Y() - height/2},
		Max: orb.Point{center.X() + width/2, center.Y() + height/2},
	}
}

// ResetAspectRatio 按窗口宽高比调整范围,保持中心不变
func ResetAspectRatio(b orb.Bound, width, height int) orb.Bound {
	if width == 0 || height == 0 || EmptyExtent(b) {
		return b
	}
	controlAspect := float64(width) / float64(height)
	envelopeAspect := extentWidth(b) / extentHeight(b)
	center := b.Center()
	if controlAspect > envelopeAspect {
		return SetCenter(center, extentHeight(b)*controlAspect, extentHeight(b))
	}
	return SetCenter(center, extentWidth(b), extentWidth(b)/controlAspect)
}

// projToPixel maps ext into pixel space of rect, where rect displays view.
func projToPixel(ext, view orb.Bound, rect image.Rectangle) image.Rectangle {
	if EmptyExtent(view) {
		return image.Rectangle{}
	}
	sx := float64(rect.Dx()) / extentWidth(view)
	sy := float64(rect.Dy()) / extentHeight(view)
	x0 := int(math.Round((ext.Min.X()-view.Min.X())*sx)) + rect.Min.X
	y0 := int(math.Round((view.Max.Y()-ext.Max.Y())*sy)) + rect.Min.Y
	x1 := int(math.Round((ext.Max.X()-view.Min.X())*sx)) + rect.Min.X
	y1 := int(math.Round((view.Max.Y()-ext.Min.Y())*sy)) + rect.Min.Y
	return image.Rect(x0, y0, x1, y1)
}

// toGeographic reprojects an extent of the given CRS to lon/lat.
func toGeographic(b orb.Bound, epsg int) orb.Bound {
	if epsg != EPSGWebMercator {
		return b
	}
	min := project.Mercator.ToWGS84(b.Min)
	max := project.Mercator.ToWGS84(b.Max)
	return orb.Bound{Min: min, Max: max}
}

// fromGeographic reprojects a lon/lat extent to the given CRS.
func fromGeographic(b orb.Bound, epsg int) orb.Bound {
	if epsg != EPSGWebMercator {
		return b
	}
	min := project.WGS84.ToMercator(orb.Point{b.Min.X(), Clip(b.Min.Y(), -webMercatorLatLimit, webMercatorLatLimit)})
	max := project.WGS84.ToMercator(orb.Point{b.Max.X(), Clip(b.Max.Y(), -webMercatorLatLimit, webMercatorLatLimit)})
	return orb.Bound{Min: min, Max: max}
}
