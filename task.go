package main

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/teris-io/shortid"
	"golang.org/x/sync/singleflight"
)

//State 获取任务状态
type State int

//任务状态
const (
	Idle State = iota
	ComputingIndices
	Dispatching
	Awaiting
	Reconciling
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ComputingIndices:
		return "computing"
	case Dispatching:
		return "dispatching"
	case Awaiting:
		return "awaiting"
	case Reconciling:
		return "reconciling"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type fetchOutcome int

const (
	outcomeSkipped fetchOutcome = iota
	outcomeFetched
	outcomeNoData
)

//Task 一轮瓦片获取:计算所需瓦片,并发获取缺失及无数据瓦片,写入缓存后淘汰
type Task struct {
	ID         string
	Layer      string
	Zoom       int
	Tiles      []TileInfo
	Total      int
	Current    int
	Dispatched int
	Fetched    int
	NoData     int
	Evicted    int
	Elapsed    time.Duration

	mu        sync.Mutex
	state     State
	src       TileSource
	store     *TileStore
	group     *singleflight.Group
	retry     int
	cacheSize int
	progress  ProgressRange
	wg        sync.WaitGroup
	workers   chan struct{}
}

//NewTask 创建获取任务
func NewTask(l *TileLayer) *Task {
	id, _ := shortid.Generate()
	workers := l.opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Task{
		ID:        id,
		Layer:     l.Name(),
		src:       l.src,
		store:     l.store,
		group:     &l.group,
		retry:     l.opts.Retry,
		cacheSize: l.opts.CacheSize,
		progress:  l.opts.Progress,
		workers:   make(chan struct{}, workers),
	}
}

//State 当前状态
func (task *Task) State() State {
	task.mu.Lock()
	defer task.mu.Unlock()
	return task.state
}

func (task *Task) setState(s State) {
	task.mu.Lock()
	task.state = s
	task.mu.Unlock()
}

func (task *Task) String() string {
	task.mu.Lock()
	defer task.mu.Unlock()
	return fmt.Sprintf("task %s layer %s zoom %d: %d tiles, %d dispatched, %d fetched, %d nodata, %d evicted, %s (%.3fs)",
		task.ID, task.Layer, task.Zoom, task.Total, task.Dispatched, task.Fetched, task.NoData, task.Evicted, task.state, task.Elapsed.Seconds())
}

// complete counts one finished tile and reports progress.
func (task *Task) complete(p Progress, outcome fetchOutcome) {
	task.mu.Lock()
	task.Current++
	switch outcome {
	case outcomeFetched:
		task.Fetched++
	case outcomeNoData:
		task.NoData++
	}
	percent := task.progress.at(task.Current, task.Total)
	task.mu.Unlock()
	report(p, percent, "")
}

//Run 执行一轮获取;取消不视为错误,坐标系不支持时返回ErrUnsupportedCRS
func (task *Task) Run(ctx context.Context, view ViewContext) error {
	start := time.Now()
	defer func() {
		task.mu.Lock()
		task.Elapsed = time.Since(start)
		task.mu.Unlock()
	}()
	logger := log.WithFields(log.Fields{"layer": task.Layer, "round": task.ID})

	task.setState(ComputingIndices)
	if ctx.Err() != nil {
		task.setState(Cancelled)
		logger.Debugf("task %s got canceled.", task.ID)
		return nil
	}
	zoom, infos, err := NeededTiles(task.src, view.Extent, view.Rect)
	if err != nil {
		task.setState(Done)
		logger.Errorf("compute tiles error, details: %s ~", err)
		return err
	}
	task.mu.Lock()
	task.Zoom, task.Tiles, task.Total = zoom, infos, len(infos)
	task.mu.Unlock()
	report(view.Progress, task.progress.Initial, "")
	if len(infos) == 0 {
		task.setState(Done)
		return nil
	}
	logger = logger.WithField("zoom", zoom)

	task.setState(Dispatching)
	report(view.Progress, task.progress.Dispatch, "")
	for _, info := range infos {
		if tile, ok := task.store.TryGet(info.T); ok && !tile.NoData {
			task.complete(view.Progress, outcomeSkipped)
			continue
		}
		if ctx.Err() != nil {
			break
		}
		select {
		case task.workers <- struct{}{}:
			task.mu.Lock()
			task.Dispatched++
			task.mu.Unlock()
			task.wg.Add(1)
			go task.tileFetcher(ctx, info, view.Progress)
		case <-ctx.Done():
		}
	}

	task.setState(Awaiting)
	task.wg.Wait()
	if ctx.Err() != nil {
		task.setState(Cancelled)
		logger.Infof("task %s got canceled.", task.ID)
		return nil
	}

	task.setState(Reconciling)
	evicted := task.store.Evict(infos, task.cacheSize)
	task.mu.Lock()
	task.Evicted = evicted
	task.mu.Unlock()
	task.setState(Done)
	logger.Debugf("task %s finished ~", task.ID)
	return nil
}

//tileFetcher 获取单个瓦片并立即写入缓存,同一瓦片同时只有一个请求
//加入其他轮次的请求时,本轮取消后立即返回
func (task *Task) tileFetcher(ctx context.Context, info TileInfo, p Progress) {
	defer task.wg.Done()
	defer func() {
		<-task.workers
	}()
	ch := task.group.DoChan(tileKey(info.T), func() (interface{}, error) {
		if tile, ok := task.store.TryGet(info.T); ok && !tile.NoData {
			return outcomeSkipped, nil
		}
		img, nodata, err := task.safeFetch(ctx, info)
		if err != nil {
			return nil, err
		}
		return task.save(info, img, nodata), nil
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return
	}
	v, err := res.Val, res.Err
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			log.Errorf("fetch %v tile error, details: %s ~", info.T, err)
		}
		return
	}
	task.complete(p, v.(fetchOutcome))
}

// safeFetch turns a panicking fetcher into a no-data outcome.
func (task *Task) safeFetch(ctx context.Context, info TileInfo) (img TileImage, nodata bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("fetch %v tile panic: %v\n%s", info.T, r, debug.Stack())
			img, nodata, err = nil, true, nil
		}
	}()
	img, nodata, err = task.src.Fetch(ctx, info, task.retry)
	if err != nil && img != nil {
		img.Release()
		img = nil
	}
	return
}

// save writes a fetch result. A failed refetch keeps the existing entry.
func (task *Task) save(info TileInfo, img TileImage, nodata bool) fetchOutcome {
	tile := &Tile{T: info.T, Image: img, Extent: info.Extent, Name: task.src.Name(), NoData: nodata || img == nil}
	if tile.NoData {
		if task.store.ContainsKey(info.T) {
			tile.release()
			return outcomeNoData
		}
	}
	task.store.InsertOrReplace(tile)
	if tile.NoData {
		return outcomeNoData
	}
	return outcomeFetched
}
