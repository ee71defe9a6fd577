package logger

import (
	"fmt"
	"io"
	"sync/atomic"

	echolog "github.com/labstack/gommon/log"
)

// EchoAdapter routes echo's internal log calls into a module logger.
// Records below the configured echo level are dropped; output, prefix and
// header settings belong to the central logger and are ignored.
type EchoAdapter struct {
	log   Logger
	level atomic.Uint32
}

// NewEchoAdapter returns an echo.Logger backed by l.
func NewEchoAdapter(l Logger) *EchoAdapter {
	if l == nil {
		l = Global().Module("echo")
	}
	a := &EchoAdapter{log: l}
	a.level.Store(uint32(echolog.INFO))
	return a
}

func (a *EchoAdapter) Output() io.Writer   { return io.Discard }
func (a *EchoAdapter) SetOutput(io.Writer) {}
func (a *EchoAdapter) Prefix() string      { return "" }
func (a *EchoAdapter) SetPrefix(string)    {}
func (a *EchoAdapter) SetHeader(string)    {}

// Level returns the minimum echo level that is forwarded.
func (a *EchoAdapter) Level() echolog.Lvl { return echolog.Lvl(a.level.Load()) }

// SetLevel changes the minimum forwarded level.
func (a *EchoAdapter) SetLevel(v echolog.Lvl) { a.level.Store(uint32(v)) }

func (a *EchoAdapter) enabled(v echolog.Lvl) bool {
	return a.Level() != echolog.OFF && v >= a.Level()
}

func (a *EchoAdapter) emit(v echolog.Lvl, msg string, fields ...Field) {
	if !a.enabled(v) {
		return
	}
	switch v {
	case echolog.DEBUG:
		a.log.Debug(msg, fields...)
	case echolog.WARN:
		a.log.Warn(msg, fields...)
	case echolog.ERROR:
		a.log.Error(msg, fields...)
	default:
		a.log.Info(msg, fields...)
	}
}

func (a *EchoAdapter) Print(i ...any)                 { a.emit(echolog.INFO, fmt.Sprint(i...)) }
func (a *EchoAdapter) Printf(format string, i ...any) { a.emit(echolog.INFO, fmt.Sprintf(format, i...)) }
func (a *EchoAdapter) Printj(j echolog.JSON)          { a.emit(echolog.INFO, "echo", Any("data", j)) }
func (a *EchoAdapter) Debug(i ...any)                 { a.emit(echolog.DEBUG, fmt.Sprint(i...)) }
func (a *EchoAdapter) Debugf(format string, i ...any) { a.emit(echolog.DEBUG, fmt.Sprintf(format, i...)) }
func (a *EchoAdapter) Debugj(j echolog.JSON)          { a.emit(echolog.DEBUG, "echo", Any("data", j)) }
func (a *EchoAdapter) Info(i ...any)                  { a.emit(echolog.INFO, fmt.Sprint(i...)) }
func (a *EchoAdapter) Infof(format string, i ...any)  { a.emit(echolog.INFO, fmt.Sprintf(format, i...)) }
func (a *EchoAdapter) Infoj(j echolog.JSON)           { a.emit(echolog.INFO, "echo", Any("data", j)) }
func (a *EchoAdapter) Warn(i ...any)                  { a.emit(echolog.WARN, fmt.Sprint(i...)) }
func (a *EchoAdapter) Warnf(format string, i ...any)  { a.emit(echolog.WARN, fmt.Sprintf(format, i...)) }
func (a *EchoAdapter) Warnj(j echolog.JSON)           { a.emit(echolog.WARN, "echo", Any("data", j)) }
func (a *EchoAdapter) Error(i ...any)                 { a.emit(echolog.ERROR, fmt.Sprint(i...)) }
func (a *EchoAdapter) Errorf(format string, i ...any) { a.emit(echolog.ERROR, fmt.Sprintf(format, i...)) }
func (a *EchoAdapter) Errorj(j echolog.JSON)          { a.emit(echolog.ERROR, "echo", Any("data", j)) }

// Fatal and Panic log at error level and panic; the server's recover
// middleware or the caller decides what happens next.
func (a *EchoAdapter) Fatal(i ...any) { a.fail(fmt.Sprint(i...)) }
func (a *EchoAdapter) Fatalf(format string, i ...any) {
	a.fail(fmt.Sprintf(format, i...))
}
func (a *EchoAdapter) Fatalj(j echolog.JSON) { a.fail(fmt.Sprint(j)) }
func (a *EchoAdapter) Panic(i ...any)        { a.fail(fmt.Sprint(i...)) }
func (a *EchoAdapter) Panicf(format string, i ...any) {
	a.fail(fmt.Sprintf(format, i...))
}
func (a *EchoAdapter) Panicj(j echolog.JSON) { a.fail(fmt.Sprint(j)) }

func (a *EchoAdapter) fail(msg string) {
	a.log.Error(msg)
	panic("echo: " + msg)
}
