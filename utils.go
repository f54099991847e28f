package main

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// loadCollection reads a Feature, FeatureCollection or bare geometry.
func loadCollection(path string) (orb.Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read file: %w", err)
	}

	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil && len(fc.Features) > 0 {
		var collection orb.Collection
		for _, f := range fc.Features {
			collection = append(collection, f.Geometry)
		}
		return collection, nil
	}
	if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		return orb.Collection{f.Geometry}, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal geojson: %w", err)
	}
	return orb.Collection{g.Geometry()}, nil
}

//loadBound geojson的外包范围
func loadBound(path string) (orb.Bound, error) {
	c, err := loadCollection(path)
	if err != nil {
		return orb.Bound{}, err
	}
	b := c.Bound()
	if EmptyExtent(b) {
		return orb.Bound{}, fmt.Errorf("%s: empty bound", path)
	}
	return b, nil
}

//parseColor 解析 #RGB, #RGBA, #RRGGBB, #RRGGBBAA
func parseColor(s string) (color.Color, error) {
	hex := strings.TrimPrefix(s, "#")
	switch len(hex) {
	case 3, 4, 6, 8:
	default:
		return nil, fmt.Errorf("invalid color %q", s)
	}
	if _, err := strconv.ParseUint(hex, 16, 64); err != nil {
		return nil, fmt.Errorf("invalid color %q", s)
	}
	return gg.Hex(hex).Color(), nil
}

//parseBBox 解析 minx,miny,maxx,maxy
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if EmptyExtent(b) {
		return orb.Bound{}, fmt.Errorf("bbox %s is empty", s)
	}
	return b, nil
}
