package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

//TileMap 瓦片地图类型
type TileMap struct {
	ID          int
	Name        string
	Description string
	EPSG        int
	Min         int
	Max         int
	Levels      []int //显式级别,为空时使用[Min,Max]
	Format      string
	URL         string
	Token       string
	MBTiles     string
}

//getTileURL 获取瓦片URL
func (m TileMap) getTileURL(t maptile.Tile) string {
	url := strings.Replace(m.URL, "{x}", strconv.Itoa(int(t.X)), -1)
	url = strings.Replace(url, "{y}", strconv.Itoa(int(t.Y)), -1)
	url = strings.Replace(url, "{z}", strconv.Itoa(int(t.Z)), -1)
	url = strings.Replace(url, "{token}", m.Token, -1)
	return url
}

//validate 级别需在[ZoomMin, ZoomLimit]内
func (m TileMap) validate() error {
	for _, z := range m.Levels {
		if !validLevel(z) {
			return fmt.Errorf("layer %s: level %d out of [%d, %d]", m.Name, z, ZoomMin, ZoomLimit)
		}
	}
	if !validLevel(m.Min) || !validLevel(m.Max) || m.Min > m.Max {
		return fmt.Errorf("layer %s: invalid zoom range [%d, %d]", m.Name, m.Min, m.Max)
	}
	return nil
}

//levels 有序级别列表
func (m TileMap) levels() []int {
	if len(m.Levels) > 0 {
		levels := append([]int(nil), m.Levels...)
		sort.Ints(levels)
		return levels
	}
	if m.Min == 0 && m.Max == 0 {
		return nil
	}
	levels := make([]int, 0, m.Max-m.Min+1)
	for z := m.Min; z <= m.Max; z++ {
		levels = append(levels, z)
	}
	return levels
}

//TileSource 瓦片源:坐标系,级别,切分方案与瓦片获取
type TileSource interface {
	Fetcher
	Name() string
	EPSG() int
	Levels() []int
	TileInfos(extent orb.Bound, level int) ([]TileInfo, error)
}

type tileSource struct {
	Fetcher
	m TileMap
}

//NewTileSource 由配置和获取器组合瓦片源
func NewTileSource(m TileMap, f Fetcher) TileSource {
	return &tileSource{Fetcher: f, m: m}
}

func (s *tileSource) Name() string  { return s.m.Name }
func (s *tileSource) EPSG() int     { return s.m.EPSG }
func (s *tileSource) Levels() []int { return s.m.levels() }

func (s *tileSource) TileInfos(extent orb.Bound, level int) ([]TileInfo, error) {
	schema, ok := schemaFor(s.m.EPSG)
	if !ok {
		return nil, fmt.Errorf("epsg:%d: %w", s.m.EPSG, ErrUnsupportedCRS)
	}
	if !validLevel(level) {
		return nil, fmt.Errorf("layer %s: level %d out of [%d, %d]", s.m.Name, level, ZoomMin, ZoomLimit)
	}
	if n := schema.Count(extent, level); n > MaxRoundTiles {
		return nil, fmt.Errorf("layer %s level %d needs %d tiles: %w", s.m.Name, level, n, ErrTooManyTiles)
	}
	return schema.TileInfos(extent, level), nil
}

//OpenTileSource 按配置创建瓦片源,mbtiles优先于url
func OpenTileSource(m TileMap, timeout time.Duration) (TileSource, func() error, error) {
	if m.EPSG == 0 {
		m.EPSG = EPSGWebMercator
	}
	if !rasterFormats[strings.ToLower(m.Format)] {
		return nil, nil, fmt.Errorf("layer %s: format %s is not a raster format", m.Name, m.Format)
	}
	if err := m.validate(); err != nil {
		return nil, nil, err
	}
	if m.MBTiles != "" {
		mb, err := OpenMBTiles(m.MBTiles)
		if err != nil {
			return nil, nil, err
		}
		if len(m.Levels) == 0 && m.Min == 0 && m.Max == 0 {
			if min, max, ok := mb.ZoomRange(); ok && validLevel(min) && validLevel(max) {
				m.Min, m.Max = min, max
			}
		}
		return NewTileSource(m, mb), mb.Close, nil
	}
	if m.URL == "" {
		return nil, nil, fmt.Errorf("layer %s: url or mbtiles required", m.Name)
	}
	return NewTileSource(m, NewHTTPFetcher(m, timeout)), func() error { return nil }, nil
}
