package main

import (
	"fmt"
	"image"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

//TileSize 默认瓦片大小
const TileSize = 256

//ZoomMin 最小级别
const ZoomMin = 0

//ZoomMax 瓦片源未声明级别时使用的最大级别
const ZoomMax = 18

//ZoomLimit 可配置的最大级别,更高级别的行列号超出uint32
const ZoomLimit = 30

//TileInfo 瓦片索引及其覆盖范围(瓦片源坐标系)
type TileInfo struct {
	T      maptile.Tile
	Extent orb.Bound
}

//flipY TMS行号
func (info TileInfo) flipY() uint32 {
	return (1 << uint32(info.T.Z)) - 1 - info.T.Y
}

func tileKey(t maptile.Tile) string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

//TileImage 已解码的瓦片图片,由缓存独占,淘汰或替换时释放
type TileImage interface {
	Image() image.Image
	Release()
}

//Bitmap 默认的瓦片图片
type Bitmap struct {
	mu  sync.RWMutex
	img image.Image
}

//NewBitmap 包装解码后的图片
func NewBitmap(img image.Image) *Bitmap {
	return &Bitmap{img: img}
}

//Image 释放后返回nil
func (b *Bitmap) Image() image.Image {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.img
}

//Release 释放图片内存
func (b *Bitmap) Release() {
	b.mu.Lock()
	b.img = nil
	b.mu.Unlock()
}

//Tile 瓦片缓存项
type Tile struct {
	T      maptile.Tile
	Image  TileImage
	Extent orb.Bound
	Name   string
	NoData bool
}

func (tile *Tile) release() {
	if tile == nil || tile.Image == nil {
		return
	}
	tile.Image.Release()
	tile.Image = nil
}

// Constants representing TileFormat types
const (
	GZIP string = "gzip" // encoding = gzip
	ZLIB        = "zlib" // encoding = deflate
	PNG         = "png"
	JPG         = "jpg"
	PBF         = "pbf"
	WEBP        = "webp"
)

// rasterFormats 可解码的栅格格式
var rasterFormats = map[string]bool{
	"":     true,
	PNG:    true,
	JPG:    true,
	"jpeg": true,
	WEBP:   true,
}
