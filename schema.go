package main

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

//Schema 瓦片切分方案
type Schema interface {
	EPSG() int
	//Resolution 该级别每像素对应的经纬度跨度
	Resolution(level int) float64
	//Count 覆盖extent所需的瓦片数,不分配内存
	Count(extent orb.Bound, level int) int
	//TileInfos 覆盖extent(本坐标系)的瓦片,按行优先排序
	TileInfos(extent orb.Bound, level int) []TileInfo
}

// tileSpan is an inclusive tile index range.
type tileSpan struct {
	x0, x1, y0, y1 uint32
}

func (r tileSpan) count() int {
	return int(r.x1-r.x0+1) * int(r.y1-r.y0+1)
}

func validLevel(level int) bool {
	return level >= ZoomMin && level <= ZoomLimit
}

var schemas = map[int]Schema{
	EPSGWebMercator: mercatorSchema{},
	EPSGGeographic:  geodeticSchema{},
}

func schemaFor(epsg int) (Schema, bool) {
	s, ok := schemas[epsg]
	return s, ok
}

// tileRange returns the index span [lo, hi] covering [a, b) in fractional
// tile units, limited to [0, n).
func tileRange(a, b float64, n uint32) (uint32, uint32) {
	lo := math.Floor(a)
	hi := math.Ceil(b) - 1
	if hi < lo {
		hi = lo
	}
	max := float64(n - 1)
	return uint32(Clip(lo, 0, max)), uint32(Clip(hi, 0, max))
}

//mercatorSchema XYZ 谷歌瓦片方案
type mercatorSchema struct{}

func (mercatorSchema) EPSG() int { return EPSGWebMercator }

func (mercatorSchema) Resolution(level int) float64 {
	return 360.0 / (TileSize * math.Exp2(float64(level)))
}

func (mercatorSchema) cover(extent orb.Bound, level int) (tileSpan, bool) {
	if EmptyExtent(extent) || !validLevel(level) {
		return tileSpan{}, false
	}
	geog := toGeographic(extent, EPSGWebMercator)
	n := uint32(1) << uint32(level)
	fx := func(lon float64) float64 {
		return (Clip(lon, MinLongitude, MaxLongitude) + 180) / 360 * float64(n)
	}
	fy := func(lat float64) float64 {
		lat = Clip(lat, -webMercatorLatLimit, webMercatorLatLimit) * math.Pi / 180
		return (1 - math.Log(math.Tan(lat)+1/math.Cos(lat))/math.Pi) / 2 * float64(n)
	}
	var r tileSpan
	r.x0, r.x1 = tileRange(fx(geog.Min.X()), fx(geog.Max.X()), n)
	r.y0, r.y1 = tileRange(fy(geog.Max.Y()), fy(geog.Min.Y()), n)
	return r, true
}

func (s mercatorSchema) Count(extent orb.Bound, level int) int {
	r, ok := s.cover(extent, level)
	if !ok {
		return 0
	}
	return r.count()
}

func (s mercatorSchema) TileInfos(extent orb.Bound, level int) []TileInfo {
	r, ok := s.cover(extent, level)
	if !ok {
		return nil
	}
	infos := make([]TileInfo, 0, r.count())
	for y := r.y0; y <= r.y1; y++ {
		for x := r.x0; x <= r.x1; x++ {
			t := maptile.New(x, y, maptile.Zoom(level))
			infos = append(infos, TileInfo{T: t, Extent: fromGeographic(t.Bound(), EPSGWebMercator)})
		}
	}
	return infos
}

//geodeticSchema 经纬度瓦片方案,0级为2x1个瓦片,原点位于左上角
type geodeticSchema struct{}

func (geodeticSchema) EPSG() int { return EPSGGeographic }

func (geodeticSchema) Resolution(level int) float64 {
	return 180.0 / (TileSize * math.Exp2(float64(level)))
}

func (geodeticSchema) cover(extent orb.Bound, level int) (tileSpan, bool) {
	if EmptyExtent(extent) || !validLevel(level) {
		return tileSpan{}, false
	}
	size := 180.0 / math.Exp2(float64(level))
	ny := uint32(1) << uint32(level)
	nx := ny * 2
	var r tileSpan
	r.x0, r.x1 = tileRange((extent.Min.X()-MinLongitude)/size, (extent.Max.X()-MinLongitude)/size, nx)
	r.y0, r.y1 = tileRange((MaxLatitude-extent.Max.Y())/size, (MaxLatitude-extent.Min.Y())/size, ny)
	return r, true
}

func (s geodeticSchema) Count(extent orb.Bound, level int) int {
	r, ok := s.cover(extent, level)
	if !ok {
		return 0
	}
	return r.count()
}

func (s geodeticSchema) TileInfos(extent orb.Bound, level int) []TileInfo {
	r, ok := s.cover(extent, level)
	if !ok {
		return nil
	}
	size := 180.0 / math.Exp2(float64(level))
	infos := make([]TileInfo, 0, r.count())
	for y := r.y0; y <= r.y1; y++ {
		for x := r.x0; x <= r.x1; x++ {
			minx := MinLongitude + float64(x)*size
			maxy := MaxLatitude - float64(y)*size
			infos = append(infos, TileInfo{
				T:      maptile.New(x, y, maptile.Zoom(level)),
				Extent: orb.Bound{Min: orb.Point{minx, maxy - size}, Max: orb.Point{minx + size, maxy}},
			})
		}
	}
	return infos
}
