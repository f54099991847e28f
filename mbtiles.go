package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

//MBTilesFetcher 从本地mbtiles读取瓦片
type MBTilesFetcher struct {
	File string
	db   *sql.DB
}

//OpenMBTiles 只读打开mbtiles
func OpenMBTiles(file string) (*MBTilesFetcher, error) {
	if _, err := os.Stat(file); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", file))
	if err != nil {
		return nil, err
	}
	// pragmas are per connection
	db.SetMaxOpenConns(1)
	if err := optimizeConnection(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	return &MBTilesFetcher{File: file, db: db}, nil
}

func optimizeConnection(db *sql.DB) error {
	_, err := db.Exec("PRAGMA query_only=1")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA temp_store=MEMORY")
	if err != nil {
		return err
	}
	_, err = db.Exec("PRAGMA cache_size=-8000")
	if err != nil {
		return err
	}
	return nil
}

//Fetch 读取瓦片,行号按TMS翻转
func (m *MBTilesFetcher) Fetch(ctx context.Context, info TileInfo, retry int) (TileImage, bool, error) {
	var data []byte
	var err error
	for attempt := 0; attempt <= retry; attempt++ {
		err = m.db.QueryRowContext(ctx, "select tile_data from tiles where zoom_level = ? and tile_column = ? and tile_row = ?",
			info.T.Z, info.T.X, info.flipY()).Scan(&data)
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		if err == nil || errors.Is(err, sql.ErrNoRows) {
			break
		}
	}
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Debugf("read %v tile from %s error ~ %s", info.T, m.File, err)
		}
		return nil, true, nil
	}
	img, err := decodeTile(data)
	if err != nil {
		log.Debugf("decode %v tile from %s error ~ %s", info.T, m.File, err)
		return nil, true, nil
	}
	return NewBitmap(img), false, nil
}

//Metadata 读取metadata表
func (m *MBTilesFetcher) Metadata() (map[string]string, error) {
	rows, err := m.db.Query("select name, value from metadata")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	md := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		md[name] = value
	}
	return md, rows.Err()
}

//ZoomRange metadata中的minzoom,maxzoom
func (m *MBTilesFetcher) ZoomRange() (int, int, bool) {
	md, err := m.Metadata()
	if err != nil {
		return 0, 0, false
	}
	min, err1 := strconv.Atoi(md["minzoom"])
	max, err2 := strconv.Atoi(md["maxzoom"])
	if err1 != nil || err2 != nil || min > max {
		return 0, 0, false
	}
	return min, max, true
}

//Close 关闭连接
func (m *MBTilesFetcher) Close() error {
	return m.db.Close()
}
