package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const maxPreviewSize = 4096

//LayerInfo 图层状态
type LayerInfo struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     string      `json:"type"`
	Disabled bool        `json:"disabled"`
	Cached   int         `json:"cached,omitempty"`
	NoData   int         `json:"nodata,omitempty"`
	Zoom     *int        `json:"zoom,omitempty"`
	Round    string      `json:"round,omitempty"`
	State    string      `json:"state,omitempty"`
	Children []LayerInfo `json:"children,omitempty"`
}

type server struct {
	mu    sync.Mutex // serializes redraws of the shared frame
	frame *Frame
}

// ginLogger writes access logs through logrus.
func ginLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("%s %s %d %.3fs ~", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Seconds())
	}
}

func newRouter(frame *Frame) *gin.Engine {
	s := &server{frame: frame}
	r := gin.New()
	r.Use(gin.Recovery(), ginLogger())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "frame": frame.ID})
	})
	r.GET("/layers", s.layers)
	r.GET("/map.png", s.mapPNG)
	return r
}

func (s *server) layerInfo(l Layer) LayerInfo {
	info := LayerInfo{ID: l.ID(), Name: l.Name(), Disabled: s.frame.Disabled(l.ID())}
	switch v := l.(type) {
	case *TileLayer:
		info.Type = "tile"
		info.Cached, info.NoData = v.Store().Counts()
		if task := v.LastTask(); task != nil {
			zoom := task.Zoom
			info.Zoom, info.Round, info.State = &zoom, task.ID, task.State().String()
		}
	case *RasterLayer:
		info.Type = "raster"
	case *GroupLayer:
		info.Type = "group"
		for _, child := range v.Children() {
			info.Children = append(info.Children, s.layerInfo(child))
		}
	}
	return info
}

func (s *server) layers(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]LayerInfo, 0)
	for _, l := range s.frame.Layers() {
		infos = append(infos, s.layerInfo(l))
	}
	c.JSON(http.StatusOK, infos)
}

func sizeParam(c *gin.Context, key string, def int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > maxPreviewSize {
		return 0, false
	}
	return n, true
}

func (s *server) mapPNG(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w0, h0 := s.frame.Size()
	w, ok1 := sizeParam(c, "width", w0)
	h, ok2 := sizeParam(c, "height", h0)
	if !ok1 || !ok2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "width and height must be in [1, 4096]"})
		return
	}
	if w != w0 || h != h0 {
		s.frame.Resize(w, h)
	}
	if bbox := c.Query("bbox"); bbox != "" {
		b, err := parseBBox(bbox)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.frame.SetViewExtents(b)
	}

	ctx := c.Request.Context()
	if err := s.frame.ResetBuffer(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrFrameEmpty) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if ctx.Err() != nil {
		log.Debugf("map request canceled ~")
		return
	}
	var buf bytes.Buffer
	if err := s.frame.WritePNG(&buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

//serve 启动预览服务,ctx结束后关闭
func serve(ctx context.Context, addr string, frame *Frame) error {
	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{Addr: addr, Handler: newRouter(frame)}
	errc := make(chan error, 1)
	go func() {
		log.Infof("preview server listening on %s ~", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Infof("preview server stopped ~")
	return nil
}
