package log

import (
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	levelFound = "found"

	colorGreen = "\x1b[32m"
	colorRed   = "\x1b[31m"
	colorReset = "\x1b[0m"
)

// ConsoleOptions configures NewConsoleLogger.
type ConsoleOptions struct {
	// Out receives console lines. Defaults to stdout.
	Out io.Writer

	// Debug enables [D] lines on the console.
	Debug bool

	// NoColor disables ANSI colors. Colors are also off when Out is not a terminal.
	NoColor bool

	// LogFile, when set, receives every event at debug level as JSON,
	// rotated by size.
	LogFile string
}

// NewConsoleLogger returns the operator-facing logger. Each line starts with
// a prefix for its kind: [*] info, [+] finding, [!] warning or error and
// [D] debug. Findings are printed in green.
func NewConsoleLogger(opts ConsoleOptions) *ZerologAdapter {
	out := opts.Out
	noColor := opts.NoColor
	if out == nil {
		out = colorable.NewColorableStdout()
		noColor = noColor || !isTerminal(os.Stdout)
	} else if f, ok := out.(*os.File); ok {
		out = colorable.NewColorable(f)
		noColor = noColor || !isTerminal(f)
	}

	console := zerolog.ConsoleWriter{
		Out:           out,
		NoColor:       noColor,
		PartsOrder:    []string{zerolog.LevelFieldName, zerolog.MessageFieldName},
		FieldsExclude: []string{FindingKey},
		FormatPrepare: func(evt map[string]interface{}) error {
			if found, _ := evt[FindingKey].(bool); found {
				evt[zerolog.LevelFieldName] = levelFound
				if !noColor {
					if msg, ok := evt[zerolog.MessageFieldName].(string); ok {
						evt[zerolog.MessageFieldName] = colorGreen + msg + colorReset
					}
				}
			}
			return nil
		},
		FormatLevel: func(i interface{}) string {
			level, _ := i.(string)
			return levelPrefix(level, noColor)
		},
	}

	minLevel := zerolog.InfoLevel
	if opts.Debug {
		minLevel = zerolog.DebugLevel
	}

	var (
		w       io.Writer = levelFilter{w: console, min: minLevel}
		closers []io.Closer
	)
	if opts.LogFile != "" {
		file := &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
		}
		closers = append(closers, file)
		w = zerolog.MultiLevelWriter(w, file)
		minLevel = zerolog.DebugLevel
	}

	logger := zerolog.New(w).Level(minLevel).With().Timestamp().Logger()
	return &ZerologAdapter{logger: logger, closers: closers}
}

func levelPrefix(level string, noColor bool) string {
	switch level {
	case levelFound:
		if noColor {
			return "[+]"
		}
		return colorGreen + "[+]" + colorReset
	case zerolog.LevelDebugValue, zerolog.LevelTraceValue:
		return "[D]"
	case zerolog.LevelWarnValue, zerolog.LevelErrorValue, zerolog.LevelFatalValue, zerolog.LevelPanicValue:
		if noColor {
			return "[!]"
		}
		return colorRed + "[!]" + colorReset
	default:
		return "[*]"
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// levelFilter drops events below min for one output of a multi-writer.
type levelFilter struct {
	w   io.Writer
	min zerolog.Level
}

func (f levelFilter) Write(p []byte) (int, error) {
	return f.w.Write(p)
}

func (f levelFilter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < f.min {
		return len(p), nil
	}
	return f.w.Write(p)
}
