package main

import (
	"context"
	"image"

	"github.com/paulmach/orb"
)

//Compose 将缓存中与extent相交的瓦片绘制到surface的rect区域,返回绘制数量
//每次绘制前检查ctx,取消后立即返回,已绘制部分保留
func Compose(ctx context.Context, s Surface, rect image.Rectangle, extent orb.Bound, store *TileStore) int {
	if rect.Empty() || EmptyExtent(extent) {
		return 0
	}
	painted := 0
	store.Range(func(tile *Tile) bool {
		if ctx.Err() != nil {
			return false
		}
		if tile.Image == nil || !tile.Extent.Intersects(extent) {
			return true
		}
		img := tile.Image.Image()
		if img == nil {
			return true
		}
		dst := projToPixel(tile.Extent, extent, rect)
		if dst.Empty() {
			return true
		}
		s.DrawImage(img, dst)
		painted++
		return true
	})
	return painted
}
