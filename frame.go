package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
)

//ErrFrameEmpty 地图框没有图层或尺寸为0
var ErrFrameEmpty = errors.New("frame is empty")

//FrameEvent 地图框变化通知
type FrameEvent int

//地图框事件
const (
	ViewExtentsChanged FrameEvent = iota
	BackgroundChanged
	LayersChanged
	BufferChanged
)

func (e FrameEvent) String() string {
	switch e {
	case ViewExtentsChanged:
		return "view extents changed"
	case BackgroundChanged:
		return "background changed"
	case LayersChanged:
		return "layers changed"
	case BufferChanged:
		return "buffer changed"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

const minViewSize = 5

// maxExtentEps keeps a point-sized extent drawable.
const maxExtentEps = 1e-7

//DefaultViewExtents 未添加图层时的显示范围
var DefaultViewExtents = orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}

//Frame 地图框,持有图层并维护后台缓冲
type Frame struct {
	ID string

	mu          sync.RWMutex
	width       int
	height      int
	viewBounds  image.Rectangle
	viewExtents orb.Bound
	background  color.Color
	layers      []Layer
	disabled    map[string]bool
	watchers    map[int]chan FrameEvent
	nextWatcher int
	progress    Progress

	gen       atomic.Int64
	bufMu     sync.Mutex
	buffer    *CanvasSurface
	bufGen    int64
	bufExtent orb.Bound
}

//NewFrame 创建地图框
func NewFrame(width, height int) *Frame {
	f := &Frame{
		ID:         uuid.NewString(),
		width:      width,
		height:     height,
		viewBounds: image.Rect(0, 0, width, height),
		background: color.Transparent,
		disabled:   make(map[string]bool),
		watchers:   make(map[int]chan FrameEvent),
	}
	f.viewExtents = ResetAspectRatio(DefaultViewExtents, width, height)
	return f
}

//Subscribe 订阅变化通知,返回取消函数;消费过慢时丢弃通知
func (f *Frame) Subscribe() (<-chan FrameEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextWatcher
	f.nextWatcher++
	ch := make(chan FrameEvent, 16)
	f.watchers[id] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if w, ok := f.watchers[id]; ok {
			delete(f.watchers, id)
			close(w)
		}
	}
}

func (f *Frame) emit(e FrameEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, w := range f.watchers {
		select {
		case w <- e:
		default:
		}
	}
}

//Size 宽高
func (f *Frame) Size() (int, int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.width, f.height
}

//ViewBounds 缓冲中当前视图的像素范围
func (f *Frame) ViewBounds() image.Rectangle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.viewBounds
}

//ViewExtents 当前显示范围
func (f *Frame) ViewExtents() orb.Bound {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.viewExtents
}

//SetViewExtents 按宽高比修正后设置显示范围
func (f *Frame) SetViewExtents(b orb.Bound) {
	if EmptyExtent(b) {
		return
	}
	f.mu.Lock()
	f.viewExtents = ResetAspectRatio(b, f.width, f.height)
	f.mu.Unlock()
	f.emit(ViewExtentsChanged)
}

//SetBackground 设置背景色
func (f *Frame) SetBackground(c color.Color) {
	f.mu.Lock()
	f.background = c
	f.mu.Unlock()
	f.emit(BackgroundChanged)
}

//SetProgress 设置重绘进度回调
func (f *Frame) SetProgress(p Progress) {
	f.mu.Lock()
	f.progress = p
	f.mu.Unlock()
}

//AddLayer 添加图层,首个图层决定初始显示范围
func (f *Frame) AddLayer(l Layer) {
	f.mu.Lock()
	first := len(f.layers) == 0
	f.layers = append(f.layers, l)
	ext := l.Extent()
	if first && !EmptyExtent(ext) {
		f.viewExtents = ResetAspectRatio(ext, f.width, f.height)
	}
	f.mu.Unlock()
	f.emit(LayersChanged)
}

//RemoveLayer 按ID移除图层
func (f *Frame) RemoveLayer(id string) (Layer, bool) {
	f.mu.Lock()
	var removed Layer
	for i, l := range f.layers {
		if l.ID() == id {
			removed = l
			f.layers = append(f.layers[:i], f.layers[i+1:]...)
			delete(f.disabled, id)
			break
		}
	}
	f.mu.Unlock()
	if removed == nil {
		return nil, false
	}
	f.emit(LayersChanged)
	return removed, true
}

//Layers 图层列表副本
func (f *Frame) Layers() []Layer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Layer(nil), f.layers...)
}

//Disabled 图层是否因配置错误被禁用,包括图层组中的子图层
func (f *Frame) Disabled(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.disabled[id] {
		return true
	}
	for _, l := range f.layers {
		if g, ok := l.(*GroupLayer); ok && g.Disabled(id) {
			return true
		}
	}
	return false
}

func (f *Frame) disable(l Layer) {
	f.mu.Lock()
	f.disabled[l.ID()] = true
	f.mu.Unlock()
}

// drawLayer recovers a panicking layer into an error.
func (f *Frame) drawLayer(ctx context.Context, l Layer, view ViewContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("draw layer %s panic: %v", l.Name(), r)
		}
	}()
	return l.Draw(ctx, view)
}

//ResetBuffer 重绘后台缓冲;取消时丢弃本次结果,不返回错误
func (f *Frame) ResetBuffer(ctx context.Context) error {
	gen := f.gen.Add(1)
	f.mu.RLock()
	w, h := f.width, f.height
	ext := f.viewExtents
	bg := f.background
	p := f.progress
	var layers []Layer
	for _, l := range f.layers {
		if !f.disabled[l.ID()] {
			layers = append(layers, l)
		}
	}
	f.mu.RUnlock()
	if w <= 0 || h <= 0 || EmptyExtent(ext) {
		return ErrFrameEmpty
	}

	surface := NewCanvasSurface(w, h)
	surface.Fill(bg)
	rect := image.Rect(0, 0, w, h)
	view := ViewContext{Extent: ext, Rect: rect, Surface: surface, Progress: p}
	for _, l := range layers {
		if ctx.Err() != nil {
			break
		}
		if !l.Visible(ext, rect) {
			continue
		}
		err := f.drawLayer(ctx, l, view)
		switch {
		case errors.Is(err, ErrUnsupportedCRS):
			f.disable(l)
			log.Errorf("layer %s disabled, details: %s ~", l.Name(), err)
		case err != nil:
			log.Errorf("draw layer %s error, details: %s ~", l.Name(), err)
		}
	}
	if ctx.Err() != nil {
		surface.Close()
		log.Debugf("frame %s redraw canceled.", f.ID)
		return nil
	}

	f.bufMu.Lock()
	if gen < f.bufGen {
		f.bufMu.Unlock()
		surface.Close()
		return nil
	}
	old := f.buffer
	f.buffer, f.bufGen, f.bufExtent = surface, gen, ext
	f.bufMu.Unlock()
	if old != nil {
		old.Close()
	}

	f.mu.Lock()
	f.viewBounds = image.Rect(0, 0, f.width, f.height)
	f.mu.Unlock()
	report(p, 100, "done")
	f.emit(BufferChanged)
	return nil
}

//ResetBufferAsync 后台重绘,完成后写入结果
func (f *Frame) ResetBufferAsync(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- f.ResetBuffer(ctx)
		close(done)
	}()
	return done
}

//Run 监听地图框变化并重绘,新的重绘会取消未完成的重绘
func (f *Frame) Run(ctx context.Context) {
	events, unsubscribe := f.Subscribe()
	defer unsubscribe()
	var wg sync.WaitGroup
	cancel := func() {}
	defer func() {
		cancel()
		wg.Wait()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e == BufferChanged {
				continue
			}
			cancel()
			var redrawCtx context.Context
			redrawCtx, cancel = context.WithCancel(ctx)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := f.ResetBuffer(redrawCtx); err != nil && !errors.Is(err, ErrFrameEmpty) {
					log.Errorf("frame %s redraw error, details: %s ~", f.ID, err)
				}
			}()
		}
	}
}

//Draw 将缓冲中rect对应的部分绘制到dst的rect
func (f *Frame) Draw(dst Surface, rect image.Rectangle) {
	clip := f.ParentToView(rect)
	f.bufMu.Lock()
	defer f.bufMu.Unlock()
	if f.buffer == nil || dst == nil {
		return
	}
	img := f.buffer.Image()
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		img = sub.SubImage(clip)
	}
	dst.DrawImage(img, rect)
}

//WritePNG 输出当前缓冲
func (f *Frame) WritePNG(w io.Writer) error {
	f.bufMu.Lock()
	defer f.bufMu.Unlock()
	if f.buffer == nil {
		return ErrFrameEmpty
	}
	return f.buffer.EncodePNG(w)
}

//Resize 调整大小,视图最小5像素,并按新视图重算显示范围
func (f *Frame) Resize(width, height int) {
	f.mu.Lock()
	destWidth := f.viewBounds.Dx() + width - f.width
	destHeight := f.viewBounds.Dy() + height - f.height
	if destWidth < minViewSize {
		destWidth = minViewSize
	}
	if destHeight < minViewSize {
		destHeight = minViewSize
	}
	f.viewBounds = image.Rect(f.viewBounds.Min.X, f.viewBounds.Min.Y, f.viewBounds.Min.X+destWidth, f.viewBounds.Min.Y+destHeight)
	ext := f.bufferToProj(f.viewBounds)
	f.width, f.height = width, height
	f.viewExtents = ResetAspectRatio(ext, width, height)
	f.mu.Unlock()
	f.emit(ViewExtentsChanged)
}

//ResetExtents 由视图像素范围重算显示范围
func (f *Frame) ResetExtents() {
	f.mu.Lock()
	f.viewExtents = ResetAspectRatio(f.bufferToProj(f.viewBounds), f.width, f.height)
	f.mu.Unlock()
	f.emit(ViewExtentsChanged)
}

//ProjToBuffer 地图范围转缓冲像素范围
func (f *Frame) ProjToBuffer(b orb.Bound) image.Rectangle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.width == 0 || f.height == 0 {
		return image.Rectangle{}
	}
	vb := f.viewBounds.Min
	return projToPixel(b, f.viewExtents, image.Rect(vb.X, vb.Y, vb.X+f.width, vb.Y+f.height))
}

//BufferToProj 缓冲像素范围转地图范围
func (f *Frame) BufferToProj(r image.Rectangle) orb.Bound {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bufferToProj(r)
}

func (f *Frame) bufferToProj(r image.Rectangle) orb.Bound {
	if f.width == 0 || f.height == 0 {
		return f.viewExtents
	}
	ext := f.viewExtents
	sx := extentWidth(ext) / float64(f.width)
	sy := extentHeight(ext) / float64(f.height)
	return orb.Bound{
		Min: orb.Point{float64(r.Min.X)*sx + ext.Min.X(), ext.Max.Y() - float64(r.Max.Y)*sy},
		Max: orb.Point{float64(r.Max.X)*sx + ext.Min.X(), ext.Max.Y() - float64(r.Min.Y)*sy},
	}
}

//ParentToView 父窗口像素范围转缓冲像素范围
func (f *Frame) ParentToView(clip image.Rectangle) image.Rectangle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.width == 0 || f.height == 0 {
		return clip
	}
	vb := f.viewBounds
	x := vb.Min.X + clip.Min.X*vb.Dx()/f.width
	y := vb.Min.Y + clip.Min.Y*vb.Dy()/f.height
	return image.Rect(x, y, x+clip.Dx()*vb.Dx()/f.width, y+clip.Dy()*vb.Dy()/f.height)
}

//MaxExtent 所有图层的范围,expand时四周各扩展1/10
func (f *Frame) MaxExtent(expand bool) (orb.Bound, error) {
	f.mu.RLock()
	var ext orb.Bound
	found := false
	for _, l := range f.layers {
		e := l.Extent()
		if e.Min.X() > e.Max.X() || e.Min.Y() > e.Max.Y() || (e == orb.Bound{}) {
			continue
		}
		if !found {
			ext, found = e, true
			continue
		}
		ext = ext.Union(e)
	}
	f.mu.RUnlock()
	if !found {
		return orb.Bound{}, ErrFrameEmpty
	}
	if extentWidth(ext) < maxExtentEps || extentHeight(ext) < maxExtentEps {
		ext = ExpandBy(ext, maxExtentEps, maxExtentEps)
	}
	if expand {
		ext = ExpandBy(ext, extentWidth(ext)/10, extentHeight(ext)/10)
	}
	return ext, nil
}

//ZoomToMaxExtent 显示全部图层
func (f *Frame) ZoomToMaxExtent() error {
	ext, err := f.MaxExtent(true)
	if err != nil {
		return err
	}
	f.SetViewExtents(ext)
	return nil
}

//Close 释放缓冲并关闭图层
func (f *Frame) Close() error {
	f.bufMu.Lock()
	buf := f.buffer
	f.buffer = nil
	f.bufMu.Unlock()
	var errs []error
	if buf != nil {
		errs = append(errs, buf.Close())
	}
	for _, l := range f.Layers() {
		if cl, ok := l.(interface{ Close() error }); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}
