package main

import (
	"image"
	"image/color"
	"image/draw"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb/maptile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// refImage counts Release calls.
type refImage struct {
	img      image.Image
	released atomic.Int32
}

func newRefImage(c color.Color) *refImage {
	img := image.NewRGBA(image.Rect(0, 0, TileSize, TileSize))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return &refImage{img: img}
}

func (r *refImage) Image() image.Image {
	if r.released.Load() > 0 {
		return nil
	}
	return r.img
}

func (r *refImage) Release() { r.released.Add(1) }

func (r *refImage) Released() int { return int(r.released.Load()) }

func newTile(x, y uint32, z maptile.Zoom, img TileImage) *Tile {
	t := maptile.New(x, y, z)
	return &Tile{T: t, Image: img, Extent: fromGeographic(t.Bound(), EPSGWebMercator), Name: "test"}
}

func infosOf(ts ...maptile.Tile) []TileInfo {
	infos := make([]TileInfo, 0, len(ts))
	for _, t := range ts {
		infos = append(infos, TileInfo{T: t})
	}
	return infos
}

func TestTileStoreInsertOrReplace(t *testing.T) {
	s := NewTileStore()
	first := newRefImage(color.White)
	s.InsertOrReplace(newTile(1, 2, 3, first))
	require.True(t, s.ContainsKey(maptile.New(1, 2, 3)))
	assert.Equal(t, 1, s.Len())

	second := newRefImage(color.Black)
	s.InsertOrReplace(newTile(1, 2, 3, second))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, first.Released())
	assert.Equal(t, 0, second.Released())

	tile, ok := s.TryGet(maptile.New(1, 2, 3))
	require.True(t, ok)
	assert.Same(t, second, tile.Image)

	// re-inserting the same entry does not release it
	s.InsertOrReplace(tile)
	assert.Equal(t, 0, second.Released())
}

func TestTileStoreTryRemove(t *testing.T) {
	s := NewTileStore()
	img := newRefImage(color.White)
	s.InsertOrReplace(newTile(0, 0, 1, img))

	tile, ok := s.TryRemove(maptile.New(0, 0, 1))
	require.True(t, ok)
	assert.Equal(t, 0, img.Released(), "caller owns the removed entry")
	assert.Equal(t, 0, s.Len())
	tile.release()
	assert.Equal(t, 1, img.Released())

	_, ok = s.TryRemove(maptile.New(0, 0, 1))
	assert.False(t, ok)
	_, ok = s.TryGet(maptile.New(0, 0, 1))
	assert.False(t, ok)
}

func TestTileStoreRangeOrder(t *testing.T) {
	s := NewTileStore()
	for x := uint32(0); x < 5; x++ {
		s.InsertOrReplace(newTile(x, 0, 3, nil))
	}
	// replacing moves an entry to the back
	s.InsertOrReplace(newTile(1, 0, 3, nil))

	var xs []uint32
	s.Range(func(tile *Tile) bool {
		xs = append(xs, tile.T.X)
		return true
	})
	assert.Equal(t, []uint32{0, 2, 3, 4, 1}, xs)

	n := 0
	s.Range(func(tile *Tile) bool {
		n++
		return n < 2
	})
	assert.Equal(t, 2, n)
}

func TestEvictCapKeepsNeeded(t *testing.T) {
	s := NewTileStore()
	images := make(map[maptile.Tile]*refImage)
	for x := uint32(0); x < 101; x++ {
		img := newRefImage(color.White)
		tile := newTile(x%32, x/32, 5, img)
		images[tile.T] = img
		s.InsertOrReplace(tile)
	}
	require.Equal(t, 101, s.Len())

	a, b, c := maptile.New(0, 0, 5), maptile.New(1, 0, 5), maptile.New(4, 3, 5)
	removed := s.Evict(infosOf(a, b, c), 100)
	assert.Equal(t, 1, removed)
	assert.LessOrEqual(t, s.Len(), 100)
	for _, k := range []maptile.Tile{a, b, c} {
		assert.True(t, s.ContainsKey(k), "%v", k)
	}
	// the oldest entry that is not needed goes first
	assert.False(t, s.ContainsKey(maptile.New(2, 0, 5)))
	assert.Equal(t, 1, images[maptile.New(2, 0, 5)].Released())

	released := 0
	for _, img := range images {
		released += img.Released()
	}
	assert.Equal(t, 1, released)
}

func TestEvictZoomChange(t *testing.T) {
	s := NewTileStore()
	var images []*refImage
	for x := uint32(0); x < 16; x++ {
		img := newRefImage(color.White)
		images = append(images, img)
		s.InsertOrReplace(newTile(x, 0, 4, img))
	}
	removed := s.Evict(infosOf(maptile.New(10, 10, 6), maptile.New(11, 10, 6)), 100)
	assert.Equal(t, 16, removed)
	assert.Equal(t, 0, s.Len())
	for _, img := range images {
		assert.Equal(t, 1, img.Released())
	}
}

func TestEvictOverCapWhenAllNeeded(t *testing.T) {
	s := NewTileStore()
	var needed []maptile.Tile
	for x := uint32(0); x < 8; x++ {
		tile := newTile(x, 0, 3, newRefImage(color.White))
		needed = append(needed, tile.T)
		s.InsertOrReplace(tile)
	}
	s.Evict(infosOf(needed...), 4)
	assert.Equal(t, 8, s.Len())

	s.InsertOrReplace(newTile(0, 1, 3, nil))
	s.Evict(infosOf(needed...), 4)
	assert.Equal(t, 8, s.Len())
	assert.False(t, s.ContainsKey(maptile.New(0, 1, 3)))
}

func TestEvictEmptyNeeded(t *testing.T) {
	s := NewTileStore()
	s.InsertOrReplace(newTile(0, 0, 2, nil))
	assert.Equal(t, 0, s.Evict(nil, 1))
	assert.Equal(t, 1, s.Len())
}

func TestTileStoreClear(t *testing.T) {
	s := NewTileStore()
	var images []*refImage
	for x := uint32(0); x < 4; x++ {
		img := newRefImage(color.White)
		images = append(images, img)
		s.InsertOrReplace(newTile(x, 0, 2, img))
	}
	s.Clear()
	assert.Equal(t, 0, s.Len())
	for _, img := range images {
		assert.Equal(t, 1, img.Released())
	}
}

func TestTileStoreCounts(t *testing.T) {
	s := NewTileStore()
	s.InsertOrReplace(newTile(0, 0, 2, newRefImage(color.White)))
	nodata := newTile(1, 0, 2, nil)
	nodata.NoData = true
	s.InsertOrReplace(nodata)
	total, n := s.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, n)
}

func TestTileStoreConcurrent(t *testing.T) {
	s := NewTileStore()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				x := uint32(i % 16)
				s.InsertOrReplace(newTile(x, uint32(w), 6, newRefImage(color.White)))
				s.TryGet(maptile.New(x, uint32(w), 6))
				s.Range(func(tile *Tile) bool { return true })
				if i%50 == 0 {
					s.Evict(infosOf(maptile.New(x, uint32(w), 6)), 32)
				}
			}
		}(w)
	}
	wg.Wait()
	s.Evict(infosOf(maptile.New(0, 0, 6)), 32)
	assert.LessOrEqual(t, s.Len(), 32)
}
