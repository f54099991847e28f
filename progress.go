package main

import (
	"sync"

	pb "gopkg.in/cheggaaa/pb.v1"
)

//Progress 进度回调,percent取值0-100
type Progress interface {
	Progress(percent int, message string)
}

//ProgressFunc 函数适配
type ProgressFunc func(percent int, message string)

//Progress 调用f
func (f ProgressFunc) Progress(percent int, message string) { f(percent, message) }

//ProgressRange 一轮获取的进度刻度:计算索引后Initial,开始分发Dispatch,全部完成Complete
type ProgressRange struct {
	Initial  int `mapstructure:"initial"`
	Dispatch int `mapstructure:"dispatch"`
	Complete int `mapstructure:"complete"`
}

//DefaultProgressRange 10% -> 30% -> 30-90%
var DefaultProgressRange = ProgressRange{Initial: 10, Dispatch: 30, Complete: 90}

//at 完成done/total时的进度
func (r ProgressRange) at(done, total int) int {
	if total <= 0 {
		return r.Complete
	}
	return r.Dispatch + done*(r.Complete-r.Dispatch)/total
}

func report(p Progress, percent int, message string) {
	if p != nil {
		p.Progress(percent, message)
	}
}

//BarProgress 终端进度条
type BarProgress struct {
	mu  sync.Mutex
	bar *pb.ProgressBar
}

//NewBarProgress 创建并启动进度条
func NewBarProgress(prefix string) *BarProgress {
	bar := pb.New(100).Prefix(prefix)
	bar.ShowCounters = false
	bar.Start()
	return &BarProgress{bar: bar}
}

//Progress 设置进度
func (b *BarProgress) Progress(percent int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar.Set(percent)
	if message != "" {
		b.bar.Postfix(" " + message)
	}
}

//Finish 结束进度条
func (b *BarProgress) Finish(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bar.FinishPrint(msg)
}
