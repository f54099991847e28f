package main

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readConf(t *testing.T, toml string) *Conf {
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(strings.NewReader(toml)))
	setDefaults(v)
	conf, err := loadConf(v)
	require.NoError(t, err)
	return conf
}

func TestLoadConfDefaults(t *testing.T) {
	conf := readConf(t, "")
	assert.Equal(t, 800, conf.Frame.Width)
	assert.Equal(t, 600, conf.Frame.Height)
	assert.Equal(t, 30*time.Second, conf.Task.Timeout)
	assert.Equal(t, DefaultProgressRange, conf.Progress)
	assert.Equal(t, TileLayerOptions{CacheSize: DefaultCacheSize, Workers: 4, Retry: 1, Progress: DefaultProgressRange}, conf.LayerOptions())
	_, ok, err := conf.ViewBound()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadConf(t *testing.T) {
	conf := readConf(t, `
[output]
logDir = "logs"

[frame]
width = 320
height = 240
background = "#fff"

[view]
minx = -10.0
miny = -5.0
maxx = 10.0
maxy = 5.0

[task]
workers = 2
timeout = "5s"

[progress]
initial = 0
dispatch = 20
complete = 80

[[lrs]]
name = "a"
epsg = 4326
url = "http://localhost/{z}/{x}/{y}.png"
levels = [3, 1, 2]
group = "base"

[[lrs]]
name = "b"
type = "raster"
file = "b.png"
extent = [0.0, 0.0, 1.0, 1.0]
`)
	assert.Equal(t, "logs", conf.Output.LogDir)
	assert.Equal(t, 320, conf.Frame.Width)
	assert.Equal(t, 5*time.Second, conf.Task.Timeout)
	assert.Equal(t, ProgressRange{Initial: 0, Dispatch: 20, Complete: 80}, conf.Progress)

	b, ok, err := conf.ViewBound()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bound(-10, -5, 10, 5), b)

	require.Len(t, conf.Layers, 2)
	m := conf.Layers[0].TileMap()
	assert.Equal(t, "a", m.Name)
	assert.Equal(t, EPSGGeographic, m.EPSG)
	assert.Equal(t, []int{1, 2, 3}, m.levels())
	assert.Equal(t, "base", conf.Layers[0].Group)

	rb, err := conf.Layers[1].Bound()
	require.NoError(t, err)
	assert.Equal(t, bound(0, 0, 1, 1), rb)
	_, err = conf.Layers[0].Bound()
	assert.Error(t, err)
}

func TestViewBoundGeoJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "view.geojson")
	require.NoError(t, os.WriteFile(file, []byte(`{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[100,20]}},
{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[110,30],[120,40]]}}]}`), 0644))
	conf := readConf(t, "")
	conf.View.GeoJSON = file
	conf.View.MaxX = 1

	b, ok, err := conf.ViewBound()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bound(100, 20, 120, 40), b)

	conf.View.GeoJSON = filepath.Join(t.TempDir(), "missing.geojson")
	_, _, err = conf.ViewBound()
	assert.Error(t, err)
}

func TestLoadBound(t *testing.T) {
	dir := t.TempDir()
	geometry := filepath.Join(dir, "geometry.geojson")
	require.NoError(t, os.WriteFile(geometry, []byte(`{"type":"Polygon","coordinates":[[[0,0],[4,0],[4,2],[0,2],[0,0]]]}`), 0644))
	b, err := loadBound(geometry)
	require.NoError(t, err)
	assert.Equal(t, bound(0, 0, 4, 2), b)

	feature := filepath.Join(dir, "feature.geojson")
	require.NoError(t, os.WriteFile(feature, []byte(`{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[1,1],[3,5]]}}`), 0644))
	b, err = loadBound(feature)
	require.NoError(t, err)
	assert.Equal(t, bound(1, 1, 3, 5), b)

	point := filepath.Join(dir, "point.geojson")
	require.NoError(t, os.WriteFile(point, []byte(`{"type":"Point","coordinates":[1,1]}`), 0644))
	_, err = loadBound(point)
	assert.Error(t, err, "a point has no area")

	broken := filepath.Join(dir, "broken.geojson")
	require.NoError(t, os.WriteFile(broken, []byte(`{`), 0644))
	_, err = loadBound(broken)
	assert.Error(t, err)
}

func TestParseColor(t *testing.T) {
	for _, s := range []string{"#fff", "#ffff", "#ffffff", "#ffffffff", "ffffff"} {
		c, err := parseColor(s)
		require.NoError(t, err, s)
		r, g, b, a := c.RGBA()
		assert.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a}, s)
	}
	c, err := parseColor("#ff000080")
	require.NoError(t, err)
	_, _, _, a := c.RGBA()
	assert.InDelta(t, 0x8080, a, 0x100)

	for _, s := range []string{"", "#ff", "#fffffff", "#gggggg"} {
		_, err := parseColor(s)
		assert.Error(t, err, s)
	}
	var _ color.Color = c
}

func TestParseBBox(t *testing.T) {
	b, err := parseBBox("-10, -5,10,5")
	require.NoError(t, err)
	assert.Equal(t, bound(-10, -5, 10, 5), b)

	for _, s := range []string{"", "1,2,3", "a,b,c,d", "0,0,0,1"} {
		_, err := parseBBox(s)
		assert.Error(t, err, s)
	}
}

func TestBuildFrame(t *testing.T) {
	raster := writePNG(t, blue)
	conf := readConf(t, `
[frame]
width = 100
height = 100
background = "#ffffff"

[[lrs]]
name = "a"
epsg = 4326
url = "http://localhost/{z}/{x}/{y}.png"
group = "base"

[[lrs]]
name = "b"
epsg = 4326
url = "http://localhost/b/{z}/{x}/{y}.png"
group = "base"

[[lrs]]
name = "c"
type = "raster"
extent = [0.0, 0.0, 10.0, 10.0]
`)
	conf.Layers[2].File = raster

	frame, err := buildFrame(conf)
	require.NoError(t, err)
	defer frame.Close()

	layers := frame.Layers()
	require.Len(t, layers, 2)
	g, ok := layers[0].(*GroupLayer)
	require.True(t, ok)
	assert.Equal(t, "base", g.Name())
	assert.Len(t, g.Children(), 2)
	_, ok = layers[1].(*RasterLayer)
	assert.True(t, ok)

	// without a configured view the frame shows all layers
	ext, err := frame.MaxExtent(true)
	require.NoError(t, err)
	assert.Equal(t, ResetAspectRatio(ext, 100, 100), frame.ViewExtents())
}

func TestBuildLayerErrors(t *testing.T) {
	opts := TileLayerOptions{}
	_, err := buildLayer(LayerConf{Name: "x", Type: "vector"}, opts, time.Second)
	assert.Error(t, err)
	_, err = buildLayer(LayerConf{Name: "x", Type: "raster"}, opts, time.Second)
	assert.Error(t, err)
	_, err = buildLayer(LayerConf{Name: "x"}, opts, time.Second)
	assert.Error(t, err)

	conf := readConf(t, `
[[lrs]]
name = "bad"
type = "vector"
`)
	_, err = buildFrame(conf)
	assert.Error(t, err)
}
