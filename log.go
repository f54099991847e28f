package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/shiena/ansicolor"
	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		FieldsOrder:     []string{"layer", "round", "zoom"},
	})
	log.SetOutput(ansicolor.NewAnsiColorWriter(os.Stdout))
}

// initLog 日志输出到终端和/或日志目录
func initLog(conf *Conf, level string) error {
	logIO := make([]io.Writer, 0, 2)
	if conf.Output.LogDir != "" {
		if err := os.MkdirAll(conf.Output.LogDir, os.ModePerm); err != nil {
			return err
		}
		filename := filepath.Join(conf.Output.LogDir, time.Now().Format("2006-01-02.log"))
		file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return err
		}
		logIO = append(logIO, file)
	}
	if conf.Output.OutputTerminal || len(logIO) == 0 {
		logIO = append(logIO, os.Stdout)
	}
	// 融合日志输出
	log.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(logIO...)))

	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		log.Warnf("invalid log level %s, fall back to info", level)
		return nil
	}
	log.SetLevel(lvl)
	return nil
}
