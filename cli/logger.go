package cli

import (
	"io"

	glog "github.com/goliatone/go-logger/glog"
)

func newLogger(w io.Writer, verbose bool) glog.Logger {
	level := glog.Info
	if verbose {
		level = glog.Debug
	}
	return glog.NewLogger(glog.WithWriter(w), glog.WithLevel(level), glog.WithLoggerTypeConsole())
}
