package main

import (
	"container/list"
	"sync"

	"github.com/paulmach/orb/maptile"
)

//DefaultCacheSize 默认缓存瓦片数
const DefaultCacheSize = 100

//TileStore 瓦片内存缓存,按插入顺序记录新旧
type TileStore struct {
	sync.RWMutex
	items map[maptile.Tile]*list.Element
	order *list.List
}

//NewTileStore 创建缓存
func NewTileStore() *TileStore {
	return &TileStore{
		items: make(map[maptile.Tile]*list.Element),
		order: list.New(),
	}
}

//TryGet 查找瓦片
func (s *TileStore) TryGet(t maptile.Tile) (*Tile, bool) {
	s.RLock()
	defer s.RUnlock()
	e, ok := s.items[t]
	if !ok {
		return nil, false
	}
	return e.Value.(*Tile), true
}

//ContainsKey 是否已缓存
func (s *TileStore) ContainsKey(t maptile.Tile) bool {
	s.RLock()
	_, ok := s.items[t]
	s.RUnlock()
	return ok
}

//InsertOrReplace 写入瓦片,已存在时先释放旧图片
func (s *TileStore) InsertOrReplace(tile *Tile) {
	s.Lock()
	defer s.Unlock()
	if e, ok := s.items[tile.T]; ok {
		old := e.Value.(*Tile)
		if old != tile {
			old.release()
		}
		e.Value = tile
		s.order.MoveToBack(e)
		return
	}
	s.items[tile.T] = s.order.PushBack(tile)
}

//TryRemove 移除并返回瓦片,由调用方释放
func (s *TileStore) TryRemove(t maptile.Tile) (*Tile, bool) {
	s.Lock()
	defer s.Unlock()
	e, ok := s.items[t]
	if !ok {
		return nil, false
	}
	s.order.Remove(e)
	delete(s.items, t)
	return e.Value.(*Tile), true
}

//Len 缓存数量
func (s *TileStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.items)
}

//Range 由旧到新遍历,fn返回false时停止;fn中不可修改缓存
func (s *TileStore) Range(fn func(tile *Tile) bool) {
	s.RLock()
	defer s.RUnlock()
	for e := s.order.Front(); e != nil; e = e.Next() {
		if !fn(e.Value.(*Tile)) {
			return
		}
	}
}

//Counts 缓存瓦片数及其中的无数据瓦片数
func (s *TileStore) Counts() (total, nodata int) {
	s.Range(func(tile *Tile) bool {
		total++
		if tile.NoData {
			nodata++
		}
		return true
	})
	return
}

func (s *TileStore) removeElement(e *list.Element) {
	tile := e.Value.(*Tile)
	s.order.Remove(e)
	delete(s.items, tile.T)
	tile.release()
}

//Evict 淘汰缓存:先移除与needed[0]级别不同的瓦片,
//仍超过limit时再由旧到新移除不在needed中的瓦片,直到不超过limit
func (s *TileStore) Evict(needed []TileInfo, limit int) int {
	if len(needed) == 0 {
		return 0
	}
	if limit <= 0 {
		limit = DefaultCacheSize
	}
	level := needed[0].T.Z
	keep := make(map[maptile.Tile]struct{}, len(needed))
	for _, info := range needed {
		keep[info.T] = struct{}{}
	}

	s.Lock()
	defer s.Unlock()
	removed := 0
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		if e.Value.(*Tile).T.Z != level {
			s.removeElement(e)
			removed++
		}
		e = next
	}
	for e := s.order.Front(); e != nil && len(s.items) > limit; {
		next := e.Next()
		if _, ok := keep[e.Value.(*Tile).T]; !ok {
			s.removeElement(e)
			removed++
		}
		e = next
	}
	return removed
}

//Clear 清空并释放所有图片
func (s *TileStore) Clear() {
	s.Lock()
	defer s.Unlock()
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		s.removeElement(e)
		e = next
	}
}
