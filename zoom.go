package main

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
)

//ErrUnsupportedCRS 不支持的坐标系,图层配置错误
var ErrUnsupportedCRS = errors.New("unsupported coordinate system")

//ErrTooManyTiles 一轮获取所需瓦片数超过MaxRoundTiles
var ErrTooManyTiles = errors.New("too many tiles")

//MaxRoundTiles 一轮获取最多请求的瓦片数
const MaxRoundTiles = 4096

//defaultLevels 瓦片源未声明级别时的候选级别
func defaultLevels() []int {
	levels := make([]int, 0, ZoomMax-ZoomMin+1)
	for z := ZoomMin; z <= ZoomMax; z++ {
		levels = append(levels, z)
	}
	return levels
}

//DetermineZoomLevel 选择分辨率与 geog宽度/像素宽度 最接近的级别,距离相同时取低级别
func DetermineZoomLevel(s Schema, geog orb.Bound, rect image.Rectangle, levels []int) int {
	if len(levels) == 0 {
		levels = defaultLevels()
	}
	target := extentWidth(geog) / float64(rect.Dx())
	best, bestDist := levels[0], math.Inf(1)
	for _, z := range levels {
		d := math.Abs(math.Log2(s.Resolution(z) / target))
		if d < bestDist {
			best, bestDist = z, d
		}
	}
	return best
}

//NeededTiles 计算绘制view所需的瓦片,view为瓦片源坐标系下的范围
//rect或view为空时返回空集;坐标系不支持时返回ErrUnsupportedCRS
func NeededTiles(src TileSource, view orb.Bound, rect image.Rectangle) (int, []TileInfo, error) {
	epsg := src.EPSG()
	s, ok := schemaFor(epsg)
	if !ok {
		return 0, nil, fmt.Errorf("layer %s epsg:%d: %w", src.Name(), epsg, ErrUnsupportedCRS)
	}
	if rect.Empty() || EmptyExtent(view) {
		return 0, nil, nil
	}
	clipped := ClipExtent(view, crsBounds[epsg])
	if EmptyExtent(clipped) {
		return 0, nil, nil
	}
	// the clipped extent may cover only part of rect
	px := projToPixel(clipped, view, rect)
	if px.Empty() {
		return 0, nil, nil
	}
	zoom := DetermineZoomLevel(s, toGeographic(clipped, epsg), px, src.Levels())
	infos, err := src.TileInfos(clipped, zoom)
	if err != nil {
		return 0, nil, err
	}
	return zoom, infos, nil
}
