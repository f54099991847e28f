package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

var version = "v0.1.0"

// flag
var (
	hf bool
	sf bool
	cf string
	lf string
)

func init() {
	flag.BoolVar(&hf, "h", false, "this help")
	flag.BoolVar(&sf, "s", false, "serve http preview instead of rendering once")
	flag.StringVar(&cf, "c", "conf.toml", "set config `file`")
	flag.StringVar(&lf, "l", "info", "set log `level`")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintf(os.Stderr, `tileframe version: tileframe/%s
Usage: tileframe [-h] [-s] [-c filename] [-l level]
`, version)
	flag.PrintDefaults()
}

//buildLayer 按配置创建图层
func buildLayer(lc LayerConf, opts TileLayerOptions, timeout time.Duration) (Layer, error) {
	switch strings.ToLower(lc.Type) {
	case "", "tile":
		src, closer, err := OpenTileSource(lc.TileMap(), timeout)
		if err != nil {
			return nil, err
		}
		l := NewTileLayer(src, opts)
		l.closer = closer
		return l, nil
	case "raster":
		b, err := lc.Bound()
		if err != nil {
			return nil, err
		}
		return NewRasterLayer(lc.Name, lc.File, b)
	}
	return nil, fmt.Errorf("layer %s: unknown type %s", lc.Name, lc.Type)
}

//buildFrame 按配置创建地图框,同组图层合并为图层组
func buildFrame(conf *Conf) (*Frame, error) {
	frame := NewFrame(conf.Frame.Width, conf.Frame.Height)
	if bg, err := parseColor(conf.Frame.Background); err != nil {
		log.Warnf("frame background %s ~", err)
	} else {
		frame.SetBackground(bg)
	}

	opts := conf.LayerOptions()
	groups := make(map[string]*GroupLayer)
	for _, lc := range conf.Layers {
		l, err := buildLayer(lc, opts, conf.Task.Timeout)
		if err != nil {
			frame.Close()
			return nil, err
		}
		if lc.Group == "" {
			frame.AddLayer(l)
			continue
		}
		g, ok := groups[lc.Group]
		if !ok {
			g = NewGroupLayer(lc.Group)
			groups[lc.Group] = g
			frame.AddLayer(g)
		}
		g.Add(l)
	}

	b, ok, err := conf.ViewBound()
	if err != nil {
		frame.Close()
		return nil, err
	}
	if ok {
		frame.SetViewExtents(b)
	} else if err := frame.ZoomToMaxExtent(); err != nil {
		log.Warnf("frame has no layers ~")
	}
	return frame, nil
}

// logRounds prints the last acquisition round of every tile layer.
func logRounds(layers []Layer) {
	for _, l := range layers {
		switch v := l.(type) {
		case *TileLayer:
			if task := v.LastTask(); task != nil {
				log.Info(task.String())
			}
		case *GroupLayer:
			logRounds(v.Children())
		}
	}
}

//render 重绘一次并输出png
func render(ctx context.Context, conf *Conf, frame *Frame) error {
	start := time.Now()
	bar := NewBarProgress("Frame : ")
	frame.SetProgress(bar)
	err := <-frame.ResetBufferAsync(ctx)
	bar.Finish(fmt.Sprintf("frame %s finished ~", frame.ID))
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		log.Infof("frame %s got canceled.", frame.ID)
		return nil
	}
	logRounds(frame.Layers())

	if dir := filepath.Dir(conf.Output.File); dir != "" {
		os.MkdirAll(dir, os.ModePerm)
	}
	file, err := os.Create(conf.Output.File)
	if err != nil {
		return err
	}
	defer file.Close()
	if err := frame.WritePNG(file); err != nil {
		return err
	}
	log.Infof("%s saved, %.3fs ~", conf.Output.File, time.Since(start).Seconds())
	return nil
}

func main() {
	flag.Parse()
	if hf {
		flag.Usage()
		return
	}
	if cf == "" {
		cf = "conf.toml"
	}
	conf, err := initConf(cf)
	if err != nil {
		log.Fatal(err)
	}
	if err := initLog(conf, lf); err != nil {
		log.Fatal(err)
	}

	frame, err := buildFrame(conf)
	if err != nil {
		log.Fatalf("build frame error, details: %s", err)
	}
	defer frame.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sf {
		err = serve(ctx, conf.Server.Addr, frame)
	} else {
		err = render(ctx, conf, frame)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error(err)
	}
}
