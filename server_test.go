package main

import (
	"encoding/json"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r http.Handler, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	r.ServeHTTP(w, req)
	return w
}

func testFrame(t *testing.T) (*Frame, *TileLayer) {
	f := NewFrame(64, 64)
	f.SetBackground(color.White)
	l, _ := redLayer(t)
	g := NewGroupLayer("base", l)
	f.AddLayer(g)
	f.SetViewExtents(bound(-1, -1, 1, 1))
	return f, l
}

func TestHealthz(t *testing.T) {
	f, _ := testFrame(t)
	w := get(newRouter(f), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), f.ID)
}

func TestMapPNG(t *testing.T) {
	f, _ := testFrame(t)
	r := newRouter(f)

	w := get(r, "/map.png")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assertColor(t, red, img, 32, 32)

	w = get(r, "/map.png?width=128&height=32&bbox=-2,-1,2,1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	img, err = png.Decode(w.Body)
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
	width, height := f.Size()
	assert.Equal(t, 128, width)
	assert.Equal(t, 32, height)
	// the bbox is widened to the 4:1 window
	assert.Equal(t, bound(-4, -1, 4, 1), f.ViewExtents())
}

func TestMapPNGBadRequest(t *testing.T) {
	f, _ := testFrame(t)
	r := newRouter(f)
	for _, url := range []string{
		"/map.png?width=0",
		"/map.png?height=5000",
		"/map.png?width=abc",
		"/map.png?bbox=1,2,3",
		"/map.png?bbox=0,0,0,0",
	} {
		w := get(r, url)
		assert.Equal(t, http.StatusBadRequest, w.Code, url)
	}
}

func TestMapPNGEmptyFrame(t *testing.T) {
	w := get(newRouter(NewFrame(0, 0)), "/map.png")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLayersEndpoint(t *testing.T) {
	f, l := testFrame(t)
	r := newRouter(f)

	w := get(r, "/layers")
	require.Equal(t, http.StatusOK, w.Code)
	var infos []LayerInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "group", infos[0].Type)
	require.Len(t, infos[0].Children, 1)
	assert.Equal(t, "tile", infos[0].Children[0].Type)
	assert.Nil(t, infos[0].Children[0].Zoom)

	require.Equal(t, http.StatusOK, get(r, "/map.png").Code)
	w = get(r, "/layers")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	child := infos[0].Children[0]
	assert.Equal(t, l.ID(), child.ID)
	assert.Equal(t, l.Store().Len(), child.Cached)
	require.NotNil(t, child.Zoom)
	assert.Equal(t, l.LastTask().Zoom, *child.Zoom)
	assert.Equal(t, "done", child.State)
}
