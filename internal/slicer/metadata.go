package slicer

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"slicerd/internal/store"
)

var (
	totalTimePattern      = regexp.MustCompile(`total estimated time:\s+([0-9hms ]+)`)
	modelTimePattern      = regexp.MustCompile(`model printing time:\s+([0-9hms ]+);`)
	firstLayerTimePattern = regexp.MustCompile(`first layer printing time.*?=\s+([0-9hms ]+)`)
	maxZHeightPattern     = regexp.MustCompile(`max_z_height:\s+([0-9.]+)`)
	changeLayerPattern    = regexp.MustCompile(`;\s*CHANGE_LAYER`)
	layerCommentPattern   = regexp.MustCompile(`(?i);\s*layer\s+\d+`)

	hoursPattern   = regexp.MustCompile(`(\d+)h`)
	minutesPattern = regexp.MustCompile(`(\d+)m`)
	secondsPattern = regexp.MustCompile(`(\d+)s`)
)

// ExtractMetadata reads the fixed metadata schema out of a job's artifacts.
// G-code supplies print times, layer count, and max height; the 3MF project
// archive supplies filament usage. Missing artifacts simply leave fields
// unset.
func ExtractMetadata(gcodePath, projectPath string) (*store.SliceMetadata, error) {
	metadata := &store.SliceMetadata{}

	if gcodePath != "" {
		if err := parseGCodeMetadata(gcodePath, metadata); err != nil {
			return nil, err
		}
	}
	if projectPath != "" {
		if _, err := os.Stat(projectPath); err == nil {
			if err := parse3MFMetadata(projectPath, metadata); err != nil {
				return nil, err
			}
		}
	}
	if metadata.IsZero() {
		return nil, nil
	}
	return metadata, nil
}

func parseGCodeMetadata(path string, metadata *store.SliceMetadata) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read gcode: %w", err)
	}
	content := string(data)

	if match := totalTimePattern.FindStringSubmatch(content); match != nil {
		seconds := timeStringToSeconds(match[1])
		metadata.EstimatedPrintTimeSeconds = &seconds
	}
	if match := modelTimePattern.FindStringSubmatch(content); match != nil {
		seconds := timeStringToSeconds(match[1])
		metadata.ModelPrintTimeSeconds = &seconds
	}
	if match := firstLayerTimePattern.FindStringSubmatch(content); match != nil {
		seconds := timeStringToSeconds(match[1])
		metadata.FirstLayerPrintTimeSeconds = &seconds
	}
	if match := maxZHeightPattern.FindStringSubmatch(content); match != nil {
		if maxZ, err := strconv.ParseFloat(match[1], 64); err == nil {
			metadata.BoundingBoxMM = &store.BoundingBox{Z: maxZ}
		}
	}

	if count := len(changeLayerPattern.FindAllStringIndex(content, -1)); count > 0 {
		metadata.LayerCount = &count
	} else if count := len(layerCommentPattern.FindAllStringIndex(content, -1)); count > 0 {
		metadata.LayerCount = &count
	}
	return nil
}

// sliceInfo mirrors the Metadata/slice_info.config XML embedded in the 3MF
// archive the slicer produces.
type sliceInfo struct {
	XMLName xml.Name `xml:"config"`
	Plate   struct {
		Filament struct {
			UsedM string `xml:"used_m,attr"`
			UsedG string `xml:"used_g,attr"`
			Type  string `xml:"type,attr"`
		} `xml:"filament"`
	} `xml:"plate"`
}

func parse3MFMetadata(path string, metadata *store.SliceMetadata) error {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open 3mf archive: %w", err)
	}
	defer archive.Close()

	var configFile *zip.File
	for _, file := range archive.File {
		if file.Name == "Metadata/slice_info.config" {
			configFile = file
			break
		}
	}
	if configFile == nil {
		return nil
	}

	reader, err := configFile.Open()
	if err != nil {
		return fmt.Errorf("open slice_info.config: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read slice_info.config: %w", err)
	}

	var info sliceInfo
	if err := xml.Unmarshal(data, &info); err != nil {
		return fmt.Errorf("parse slice_info.config: %w", err)
	}

	filament := info.Plate.Filament
	if filament.UsedM != "" {
		if meters, err := strconv.ParseFloat(filament.UsedM, 64); err == nil {
			mm := meters * 1000
			metadata.FilamentUsedMM = &mm
		}
	}
	if filament.UsedG != "" {
		if grams, err := strconv.ParseFloat(filament.UsedG, 64); err == nil {
			metadata.FilamentUsedG = &grams
		}
	}
	if filament.Type != "" {
		filamentType := filament.Type
		metadata.FilamentType = &filamentType
	}
	return nil
}

// timeStringToSeconds parses slicer durations like "1h 16m 56s".
func timeStringToSeconds(value string) int64 {
	value = strings.TrimSpace(value)
	var total int64
	if match := hoursPattern.FindStringSubmatch(value); match != nil {
		hours, _ := strconv.ParseInt(match[1], 10, 64)
		total += hours * 3600
	}
	if match := minutesPattern.FindStringSubmatch(value); match != nil {
		minutes, _ := strconv.ParseInt(match[1], 10, 64)
		total += minutes * 60
	}
	if match := secondsPattern.FindStringSubmatch(value); match != nil {
		seconds, _ := strconv.ParseInt(match[1], 10, 64)
		total += seconds
	}
	return total
}
