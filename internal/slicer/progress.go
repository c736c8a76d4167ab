package slicer

import (
	"regexp"
	"strconv"
	"strings"
)

var percentPattern = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)

// Coarse stages recognised in slicer output, mapped from line prefixes.
var stageKeywords = []struct {
	keyword string
	stage   string
}{
	{"arrang", "arranging"},
	{"process triangulated mesh", "preparing"},
	{"generating perimeters", "slicing"},
	{"infilling layer", "slicing"},
	{"slicing", "slicing"},
	{"generating support", "supports"},
	{"generating g-code", "gcode"},
	{"exporting", "exporting"},
}

// ParseProgressLine extracts a progress update from a line of slicer
// output. Lines without a recognisable stage or percentage report nothing.
func ParseProgressLine(line string) (ProgressUpdate, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ProgressUpdate{}, false
	}

	update := ProgressUpdate{Percent: -1}
	lower := strings.ToLower(trimmed)
	for _, entry := range stageKeywords {
		if strings.Contains(lower, entry.keyword) {
			update.Stage = entry.stage
			break
		}
	}

	if match := percentPattern.FindStringSubmatch(trimmed); match != nil {
		if percent, err := strconv.ParseFloat(match[1], 64); err == nil && percent <= 100 {
			update.Percent = percent
		}
	}

	if update.Stage == "" && update.Percent < 0 {
		return ProgressUpdate{}, false
	}
	update.Message = trimmed
	return update, true
}
