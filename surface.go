package main

import (
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/gogpu/gg"
	xdraw "golang.org/x/image/draw"
)

//Surface 绘制目标
type Surface interface {
	Bounds() image.Rectangle
	Fill(c color.Color)
	//DrawImage 将img缩放绘制到dst
	DrawImage(img image.Image, dst image.Rectangle)
}

//RGBASurface 内存画布
type RGBASurface struct {
	*image.RGBA
}

//NewRGBASurface 创建w*h画布
func NewRGBASurface(w, h int) *RGBASurface {
	return &RGBASurface{RGBA: image.NewRGBA(image.Rect(0, 0, w, h))}
}

//Fill 填充颜色
func (s *RGBASurface) Fill(c color.Color) {
	draw.Draw(s.RGBA, s.RGBA.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

//DrawImage 双线性缩放后叠加
func (s *RGBASurface) DrawImage(img image.Image, dst image.Rectangle) {
	if img == nil || dst.Empty() {
		return
	}
	xdraw.ApproxBiLinear.Scale(s.RGBA, dst, img, img.Bounds(), xdraw.Over, nil)
}

//CanvasSurface gg画布,用作地图框的后台缓冲
type CanvasSurface struct {
	dc *gg.Context
}

//NewCanvasSurface 创建w*h画布
func NewCanvasSurface(w, h int) *CanvasSurface {
	return &CanvasSurface{dc: gg.NewContext(w, h)}
}

//Bounds 画布范围
func (s *CanvasSurface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.dc.Width(), s.dc.Height())
}

//Fill 填充颜色
func (s *CanvasSurface) Fill(c color.Color) {
	s.dc.ClearWithColor(gg.FromColor(c))
}

//DrawImage 缩放绘制
func (s *CanvasSurface) DrawImage(img image.Image, dst image.Rectangle) {
	if img == nil || dst.Empty() {
		return
	}
	buf := gg.ImageBufFromImage(img)
	if buf == nil {
		return
	}
	s.dc.DrawImageEx(buf, gg.DrawImageOptions{
		X:             float64(dst.Min.X),
		Y:             float64(dst.Min.Y),
		DstWidth:      float64(dst.Dx()),
		DstHeight:     float64(dst.Dy()),
		Interpolation: gg.InterpBilinear,
		Opacity:       1.0,
		BlendMode:     gg.BlendNormal,
	})
}

//Image 画布内容
func (s *CanvasSurface) Image() image.Image {
	_ = s.dc.FlushGPU()
	return s.dc.Image()
}

//EncodePNG 输出png
func (s *CanvasSurface) EncodePNG(w io.Writer) error {
	_ = s.dc.FlushGPU()
	return s.dc.EncodePNG(w)
}

//Close 释放画布
func (s *CanvasSurface) Close() error {
	return s.dc.Close()
}
