package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// ConsoleWriter turns zerolog's JSON events into short, coloured lines.
type ConsoleWriter struct {
	out      io.Writer
	colorize colorstring.Colorize
	debug    bool
	buffer   strings.Builder
	lock     sync.Mutex
}

func NewConsoleWriter(out io.Writer, color bool) *ConsoleWriter {
	return &ConsoleWriter{
		out: out,
		colorize: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !color,
			Reset:   true,
		},
		debug: os.Getenv("BUILDSYS_DEBUG") != "",
	}
}

func (w *ConsoleWriter) Write(p []byte) (n int, err error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	var evt map[string]interface{}
	d := json.NewDecoder(bytes.NewReader(p))
	d.UseNumber()
	err = d.Decode(&evt)
	if err != nil {
		return 0, eris.Wrapf(err, "cannot decode event: %s", p)
	}

	level, _ := evt[zerolog.LevelFieldName].(string)

	w.buffer.Reset()
	switch level {
	case "fatal", "error":
		w.buffer.WriteString("[red]")
	case "warn":
		w.buffer.WriteString("[yellow]")
	case "debug", "trace":
		w.buffer.WriteString("[blue]")
	default:
		w.buffer.WriteString("[green]")
	}

	if task, ok := evt["task"].(string); ok {
		w.buffer.WriteString(task + ": ")
	}

	if level == "error" {
		w.buffer.WriteString("Error: ")
	}

	if isCmd, _ := evt["command"].(bool); isCmd {
		w.buffer.WriteString("[bold]$ ")
	}

	msg, _ := evt[zerolog.MessageFieldName].(string)
	if path, ok := evt["path"].(string); ok {
		// simplify the path
		relPath, err := filepath.Rel(".", path)
		if err == nil {
			msg = strings.ReplaceAll(msg, path, relPath)
		}
	}

	w.buffer.WriteString(msg)

	if errorDetails, ok := evt[zerolog.ErrorFieldName].(string); ok {
		w.buffer.WriteString("\n")
		w.buffer.WriteString(errorDetails)
	}

	if w.debug {
		names := make([]string, 0, len(evt))
		for name := range evt {
			names = append(names, name)
		}
		sort.Strings(names)

		w.buffer.WriteString("\n")
		for _, name := range names {
			w.buffer.WriteString(fmt.Sprintf("  %s: %+v\n", name, evt[name]))
		}
	}

	w.buffer.WriteString("\n")
	_, err = io.WriteString(w.out, w.colorize.Color(w.buffer.String()))
	if err != nil {
		return 0, err
	}

	return len(p), nil
}

// useColor reports whether out is an interactive terminal. CI and NO_COLOR always disable colours.
func useColor(out io.Writer) bool {
	if os.Getenv("CI") == "true" || os.Getenv("NO_COLOR") != "" {
		return false
	}

	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// NewLogger returns the logger used by the CLI. jsonOutput switches to plain JSON lines.
func NewLogger(out io.Writer, level zerolog.Level, jsonOutput bool) zerolog.Logger {
	var writer io.Writer = out
	if !jsonOutput {
		writer = NewConsoleWriter(out, useColor(out))
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func init() {
	zerolog.ErrorMarshalFunc = func(err error) interface{} {
		return eris.ToString(err, os.Getenv("BUILDSYS_DEBUG") != "")
	}
}
