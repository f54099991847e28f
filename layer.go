package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
)

//ViewContext 单次绘制的输入
type ViewContext struct {
	Extent   orb.Bound
	Rect     image.Rectangle
	Surface  Surface
	Progress Progress
}

//Layer 图层
type Layer interface {
	ID() string
	Name() string
	Extent() orb.Bound
	Visible(extent orb.Bound, rect image.Rectangle) bool
	//IsDrawingInitialized 绘制所需数据是否已就绪
	IsDrawingInitialized(view ViewContext) bool
	Draw(ctx context.Context, view ViewContext) error
}

//TileLayerOptions 瓦片图层参数
type TileLayerOptions struct {
	CacheSize int
	Workers   int
	Retry     int
	Progress  ProgressRange
}

//TileLayer 瓦片图层,持有缓存并负责获取和绘制
type TileLayer struct {
	id     string
	src    TileSource
	store  *TileStore
	opts   TileLayerOptions
	group  singleflight.Group
	closer func() error
	mu     sync.Mutex
	hidden bool
	last   *Task
	rounds int
}

//NewTileLayer 创建瓦片图层
func NewTileLayer(src TileSource, opts TileLayerOptions) *TileLayer {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Progress == (ProgressRange{}) {
		opts.Progress = DefaultProgressRange
	}
	return &TileLayer{
		id:    uuid.NewString(),
		src:   src,
		store: NewTileStore(),
		opts:  opts,
	}
}

func (l *TileLayer) ID() string   { return l.id }
func (l *TileLayer) Name() string { return l.src.Name() }

//Store 图层缓存
func (l *TileLayer) Store() *TileStore { return l.store }

//Extent 瓦片源坐标系的有效范围
func (l *TileLayer) Extent() orb.Bound {
	return crsBounds[l.src.EPSG()]
}

//SetVisible 显示/隐藏
func (l *TileLayer) SetVisible(v bool) {
	l.mu.Lock()
	l.hidden = !v
	l.mu.Unlock()
}

//Visible 是否需要绘制
func (l *TileLayer) Visible(extent orb.Bound, rect image.Rectangle) bool {
	l.mu.Lock()
	hidden := l.hidden
	l.mu.Unlock()
	if hidden || rect.Empty() || EmptyExtent(extent) {
		return false
	}
	if !SupportedCRS(l.src.EPSG()) {
		// drawing reports the configuration error
		return true
	}
	return l.Extent().Intersects(extent)
}

//IsDrawingInitialized 所需瓦片是否都已缓存且有数据
func (l *TileLayer) IsDrawingInitialized(view ViewContext) bool {
	_, infos, err := NeededTiles(l.src, view.Extent, view.Rect)
	if err != nil || len(infos) == 0 {
		return false
	}
	for _, info := range infos {
		tile, ok := l.store.TryGet(info.T)
		if !ok || tile.NoData {
			return false
		}
	}
	return true
}

//InitializeDrawing 执行一轮获取,返回任务摘要
func (l *TileLayer) InitializeDrawing(ctx context.Context, view ViewContext) (*Task, error) {
	task := NewTask(l)
	err := task.Run(ctx, view)
	l.mu.Lock()
	l.last = task
	l.rounds++
	l.mu.Unlock()
	return task, err
}

//Rounds 已执行的获取轮数
func (l *TileLayer) Rounds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rounds
}

//LastTask 最近一轮获取
func (l *TileLayer) LastTask() *Task {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

//Draw 获取瓦片后绘制缓存中的瓦片
func (l *TileLayer) Draw(ctx context.Context, view ViewContext) error {
	if _, err := l.InitializeDrawing(ctx, view); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	n := Compose(ctx, view.Surface, view.Rect, view.Extent, l.store)
	log.WithField("layer", l.Name()).Debugf("layer %s painted %d tiles ~", l.Name(), n)
	return nil
}

//Close 清空缓存并关闭瓦片源
func (l *TileLayer) Close() error {
	l.store.Clear()
	if l.closer != nil {
		return l.closer()
	}
	return nil
}

//RasterLayer 单幅带范围的栅格图片
type RasterLayer struct {
	id     string
	name   string
	file   string
	extent orb.Bound
	img    image.Image
}

//NewRasterLayer 读取png/jpeg/tiff/webp图片
func NewRasterLayer(name, file string, extent orb.Bound) (*RasterLayer, error) {
	if EmptyExtent(extent) {
		return nil, fmt.Errorf("raster %s: empty extent", name)
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	return &RasterLayer{id: uuid.NewString(), name: name, file: file, extent: extent, img: img}, nil
}

func (l *RasterLayer) ID() string        { return l.id }
func (l *RasterLayer) Name() string      { return l.name }
func (l *RasterLayer) Extent() orb.Bound { return l.extent }

func (l *RasterLayer) Visible(extent orb.Bound, rect image.Rectangle) bool {
	return !rect.Empty() && l.extent.Intersects(extent)
}

func (l *RasterLayer) IsDrawingInitialized(view ViewContext) bool { return l.img != nil }

func (l *RasterLayer) Draw(ctx context.Context, view ViewContext) error {
	if ctx.Err() != nil {
		return nil
	}
	view.Surface.DrawImage(l.img, projToPixel(l.extent, view.Extent, view.Rect))
	return nil
}

//GroupLayer 图层组,按顺序绘制;坐标系不支持的子图层被单独禁用
type GroupLayer struct {
	id       string
	name     string
	mu       sync.RWMutex
	children []Layer
	disabled map[string]bool
}

//NewGroupLayer 创建图层组
func NewGroupLayer(name string, children ...Layer) *GroupLayer {
	return &GroupLayer{id: uuid.NewString(), name: name, children: children, disabled: make(map[string]bool)}
}

func (g *GroupLayer) ID() string   { return g.id }
func (g *GroupLayer) Name() string { return g.name }

//Children 子图层副本
func (g *GroupLayer) Children() []Layer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Layer(nil), g.children...)
}

//Add 追加子图层
func (g *GroupLayer) Add(l Layer) {
	g.mu.Lock()
	g.children = append(g.children, l)
	g.mu.Unlock()
}

//Disabled 子图层(含嵌套组)是否已被禁用
func (g *GroupLayer) Disabled(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.disabled[id] {
		return true
	}
	for _, c := range g.children {
		if sub, ok := c.(*GroupLayer); ok && sub.Disabled(id) {
			return true
		}
	}
	return false
}

// active returns the children still drawn.
func (g *GroupLayer) active() []Layer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	children := make([]Layer, 0, len(g.children))
	for _, c := range g.children {
		if !g.disabled[c.ID()] {
			children = append(children, c)
		}
	}
	return children
}

func (g *GroupLayer) disable(l Layer) {
	g.mu.Lock()
	g.disabled[l.ID()] = true
	g.mu.Unlock()
}

//Extent 子图层范围合并
func (g *GroupLayer) Extent() orb.Bound {
	var b orb.Bound
	first := true
	for _, c := range g.Children() {
		e := c.Extent()
		if EmptyExtent(e) {
			continue
		}
		if first {
			b, first = e, false
			continue
		}
		b = b.Union(e)
	}
	return b
}

func (g *GroupLayer) Visible(extent orb.Bound, rect image.Rectangle) bool {
	for _, c := range g.active() {
		if c.Visible(extent, rect) {
			return true
		}
	}
	return false
}

func (g *GroupLayer) IsDrawingInitialized(view ViewContext) bool {
	for _, c := range g.active() {
		if c.Visible(view.Extent, view.Rect) && !c.IsDrawingInitialized(view) {
			return false
		}
	}
	return true
}

//Draw 子图层出错不影响其他子图层,坐标系不支持的子图层被禁用且不作为组的错误返回
func (g *GroupLayer) Draw(ctx context.Context, view ViewContext) error {
	var errs []error
	for _, c := range g.active() {
		if ctx.Err() != nil {
			return nil
		}
		if !c.Visible(view.Extent, view.Rect) {
			continue
		}
		err := c.Draw(ctx, view)
		switch {
		case err == nil:
		case errors.Is(err, ErrUnsupportedCRS):
			g.disable(c)
			log.Errorf("layer %s of group %s disabled, details: %s ~", c.Name(), g.name, err)
		default:
			log.Errorf("draw layer %s error, details: %s ~", c.Name(), err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

//Close 关闭子图层
func (g *GroupLayer) Close() error {
	var errs []error
	for _, c := range g.Children() {
		if cl, ok := c.(interface{ Close() error }); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}
