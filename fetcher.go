package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
)

//ErrNoTileData 瓦片无数据
var ErrNoTileData = errors.New("no tile data")

//ErrTileTooLarge 瓦片数据超过大小上限
var ErrTileTooLarge = errors.New("tile too large")

//MaxTileBytes 单个瓦片(含解压后)的默认大小上限
const MaxTileBytes = 8 << 20

// readLimited reads at most limit bytes from r.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("more than %d bytes: %w", limit, ErrTileTooLarge)
	}
	return body, nil
}

//Fetcher 获取单个瓦片
//返回 (图片, 是否无数据, 错误);错误仅在ctx取消时返回,此时结果应丢弃
type Fetcher interface {
	Fetch(ctx context.Context, info TileInfo, retry int) (TileImage, bool, error)
}

//FetcherFunc 函数适配
type FetcherFunc func(ctx context.Context, info TileInfo, retry int) (TileImage, bool, error)

//Fetch 调用f
func (f FetcherFunc) Fetch(ctx context.Context, info TileInfo, retry int) (TileImage, bool, error) {
	return f(ctx, info, retry)
}

// decodeTile inflates gzip payloads and decodes a raster tile.
func decodeTile(body []byte) (image.Image, error) {
	if len(body) == 0 {
		return nil, ErrNoTileData
	}
	if len(body) > 2 && body[0] == 0x1f && body[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		body, err = readLimited(zr, MaxTileBytes)
		if err != nil {
			return nil, err
		}
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	return img, err
}

//HTTPFetcher 网络瓦片
type HTTPFetcher struct {
	Client    *http.Client
	TileMap   TileMap
	UserAgent string
	Backoff   time.Duration
	MaxBytes  int64
}

//NewHTTPFetcher 创建网络瓦片获取器
func NewHTTPFetcher(m TileMap, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: timeout},
		TileMap:   m,
		UserAgent: "tileframe/" + version,
		Backoff:   200 * time.Millisecond,
		MaxBytes:  MaxTileBytes,
	}
}

// errRetryable marks failures worth another attempt.
type errRetryable struct{ err error }

func (e errRetryable) Error() string { return e.err.Error() }

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errRetryable{err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, errRetryable{fmt.Errorf("status code: %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code: %d", resp.StatusCode)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = MaxTileBytes
	}
	body, err := readLimited(resp.Body, limit)
	if errors.Is(err, ErrTileTooLarge) {
		return nil, err
	}
	if err != nil {
		return nil, errRetryable{err}
	}
	return body, nil
}

//Fetch 下载并解码瓦片,失败重试retry次
func (f *HTTPFetcher) Fetch(ctx context.Context, info TileInfo, retry int) (TileImage, bool, error) {
	url := f.TileMap.getTileURL(info.T)
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		body, err := f.get(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, ctx.Err()
			}
			var re errRetryable
			if !errors.As(err, &re) || attempt >= retry {
				log.Debugf("fetch %s error, details: %s ~", url, err)
				return nil, true, nil
			}
			select {
			case <-time.After(f.Backoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
			continue
		}
		img, err := decodeTile(body)
		if err != nil {
			log.Debugf("decode %s error, details: %s ~", url, err)
			return nil, true, nil
		}
		return NewBitmap(img), false, nil
	}
}
