package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

var titleCaser = cases.Title(language.English)

// workerDisplayName turns a flag name like worker_extract_hooks_v2 into
// "Extract Hooks".
func workerDisplayName(worker string) string {
	name := strings.TrimPrefix(worker, "worker_")
	name = strings.TrimSuffix(name, "_v2")
	return titleCaser.String(strings.ReplaceAll(name, "_", " "))
}

func enabledBadge(enabled, colorize bool) string {
	if enabled {
		return maybeColor("enabled", ansiGreen, colorize)
	}
	return maybeColor("disabled", ansiYellow, colorize)
}

func runStatusBadge(status string, colorize bool) string {
	switch status {
	case "success":
		return maybeColor(status, ansiGreen, colorize)
	case "failure":
		return maybeColor(status, ansiRed, colorize)
	case "never_run", "":
		return "-"
	default:
		return status
	}
}

func maybeColor(value, color string, colorize bool) string {
	if !colorize {
		return value
	}
	return color + value + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatTimestamp(value *time.Time) string {
	if value == nil || value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func formatDurationMS(millis int64) string {
	if millis <= 0 {
		return "-"
	}
	return fmt.Sprintf("%dms", millis)
}
