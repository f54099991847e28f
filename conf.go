package main

import (
	"fmt"
	"os"
	"time"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

//LayerConf 图层配置,对应[[lrs]]
type LayerConf struct {
	Name    string    `mapstructure:"name"`
	Type    string    `mapstructure:"type"` // tile, raster
	URL     string    `mapstructure:"url"`
	MBTiles string    `mapstructure:"mbtiles"`
	File    string    `mapstructure:"file"`
	EPSG    int       `mapstructure:"epsg"`
	Min     int       `mapstructure:"min"`
	Max     int       `mapstructure:"max"`
	Levels  []int     `mapstructure:"levels"`
	Format  string    `mapstructure:"format"`
	Token   string    `mapstructure:"token"`
	Extent  []float64 `mapstructure:"extent"`
	Group   string    `mapstructure:"group"`
}

//Conf 配置
type Conf struct {
	App struct {
		Version string `mapstructure:"version"`
		Title   string `mapstructure:"title"`
	} `mapstructure:"app"`
	Output struct {
		File           string `mapstructure:"file"`
		LogDir         string `mapstructure:"logDir"`
		OutputTerminal bool   `mapstructure:"outputTerminal"`
	} `mapstructure:"output"`
	Frame struct {
		Width      int    `mapstructure:"width"`
		Height     int    `mapstructure:"height"`
		Background string `mapstructure:"background"`
	} `mapstructure:"frame"`
	View struct {
		MinX    float64 `mapstructure:"minx"`
		MinY    float64 `mapstructure:"miny"`
		MaxX    float64 `mapstructure:"maxx"`
		MaxY    float64 `mapstructure:"maxy"`
		GeoJSON string  `mapstructure:"geojson"`
	} `mapstructure:"view"`
	Task struct {
		Workers   int           `mapstructure:"workers"`
		Retry     int           `mapstructure:"retry"`
		CacheSize int           `mapstructure:"cachesize"`
		Timeout   time.Duration `mapstructure:"timeout"`
	} `mapstructure:"task"`
	Progress ProgressRange `mapstructure:"progress"`
	Server   struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Layers []LayerConf `mapstructure:"lrs"`
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.version", version)
	v.SetDefault("app.title", "Tile Frame")
	v.SetDefault("output.file", "output/map.png")
	v.SetDefault("output.outputTerminal", true)
	v.SetDefault("frame.width", 800)
	v.SetDefault("frame.height", 600)
	v.SetDefault("frame.background", "#00000000")
	v.SetDefault("task.workers", 4)
	v.SetDefault("task.retry", 1)
	v.SetDefault("task.cachesize", DefaultCacheSize)
	v.SetDefault("task.timeout", "30s")
	v.SetDefault("progress.initial", DefaultProgressRange.Initial)
	v.SetDefault("progress.dispatch", DefaultProgressRange.Dispatch)
	v.SetDefault("progress.complete", DefaultProgressRange.Complete)
	v.SetDefault("server.addr", ":8080")
}

// initConf 初始化配置
func initConf(cfgFile string) (*Conf, error) {
	v := viper.GetViper()
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		log.Warnf("config file(%s) not exist", cfgFile)
	} else {
		v.SetConfigType("toml")
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			log.Warnf("read config file(%s) error, details: %s", v.ConfigFileUsed(), err)
		}
	}
	v.AutomaticEnv() // read in environment variables that match
	setDefaults(v)
	return loadConf(v)
}

func loadConf(v *viper.Viper) (*Conf, error) {
	var conf Conf
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("parse config error: %w", err)
	}
	return &conf, nil
}

//TileMap 图层配置转瓦片地图
func (lc LayerConf) TileMap() TileMap {
	return TileMap{
		Name:    lc.Name,
		EPSG:    lc.EPSG,
		Min:     lc.Min,
		Max:     lc.Max,
		Levels:  lc.Levels,
		Format:  lc.Format,
		URL:     lc.URL,
		Token:   lc.Token,
		MBTiles: lc.MBTiles,
	}
}

//Bound 配置的范围 [minx,miny,maxx,maxy]
func (lc LayerConf) Bound() (orb.Bound, error) {
	if len(lc.Extent) != 4 {
		return orb.Bound{}, fmt.Errorf("layer %s: extent needs 4 values, got %d", lc.Name, len(lc.Extent))
	}
	return orb.Bound{Min: orb.Point{lc.Extent[0], lc.Extent[1]}, Max: orb.Point{lc.Extent[2], lc.Extent[3]}}, nil
}

//ViewBound 配置的初始显示范围,未配置时返回false
func (c *Conf) ViewBound() (orb.Bound, bool, error) {
	if c.View.GeoJSON != "" {
		b, err := loadBound(c.View.GeoJSON)
		if err != nil {
			return orb.Bound{}, false, err
		}
		return b, true, nil
	}
	b := orb.Bound{Min: orb.Point{c.View.MinX, c.View.MinY}, Max: orb.Point{c.View.MaxX, c.View.MaxY}}
	if EmptyExtent(b) {
		return orb.Bound{}, false, nil
	}
	return b, true, nil
}

//LayerOptions 瓦片图层参数
func (c *Conf) LayerOptions() TileLayerOptions {
	return TileLayerOptions{
		CacheSize: c.Task.CacheSize,
		Workers:   c.Task.Workers,
		Retry:     c.Task.Retry,
		Progress:  c.Progress,
	}
}
