package slicer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Settings the slicer expects as plain numeric strings (e.g. "0.2").
var numericStringSettings = map[string]struct{}{
	"layer_height":                {},
	"initial_layer_print_height":  {},
	"line_width":                  {},
	"inner_wall_line_width":       {},
	"outer_wall_line_width":       {},
	"top_surface_line_width":      {},
	"sparse_infill_line_width":    {},
	"support_line_width":          {},
	"first_layer_extrusion_width": {},
	"min_layer_height":            {},
	"max_layer_height":            {},
}

// Settings the slicer expects as percent strings (e.g. "25%").
var percentSettings = map[string]struct{}{
	"sparse_infill_density":   {},
	"infill_density":          {},
	"internal_bridge_density": {},
	"skin_infill_density":     {},
	"skeleton_infill_density": {},
}

// Settings the slicer expects as "0"/"1" strings.
var boolStringSettings = map[string]struct{}{
	"enable_support":    {},
	"detect_thin_wall":  {},
	"only_one_wall_top": {},
	"spiral_mode":       {},
	"overhang_reverse":  {},
}

// MergeSettings layers job overrides on top of profile overrides. Neither
// input map is modified.
func MergeSettings(profileSettings, jobOverrides map[string]any) map[string]any {
	merged := make(map[string]any, len(profileSettings)+len(jobOverrides))
	for key, value := range profileSettings {
		merged[key] = value
	}
	for key, value := range jobOverrides {
		merged[key] = value
	}
	return merged
}

// NormalizeSettings converts setting values into the string formats the
// slicer expects: numeric strings, percent strings, "0"/"1" booleans. It
// also resolves the infill_density alias and ensures layer G-code resets
// the extruder to avoid relative-extrusion errors.
func NormalizeSettings(settings map[string]any) map[string]any {
	result := make(map[string]any, len(settings))
	for key, value := range settings {
		result[key] = value
	}

	if value, ok := result["infill_density"]; ok {
		if _, exists := result["sparse_infill_density"]; !exists {
			result["sparse_infill_density"] = value
		}
		delete(result, "infill_density")
	}

	for key, value := range result {
		if value == nil {
			continue
		}
		switch {
		case hasKey(numericStringSettings, key):
			if formatted, ok := formatNumber(value); ok {
				result[key] = formatted
			}
		case hasKey(percentSettings, key):
			if formatted, ok := formatNumber(value); ok {
				result[key] = formatted + "%"
			} else if str, ok := value.(string); ok && !strings.HasSuffix(str, "%") {
				result[key] = str + "%"
			}
		case hasKey(boolStringSettings, key):
			switch v := value.(type) {
			case bool:
				if v {
					result[key] = "1"
				} else {
					result[key] = "0"
				}
			case float64:
				result[key] = strconv.Itoa(int(v))
			case int:
				result[key] = strconv.Itoa(v)
			}
		}
	}

	switch gcode := result["layer_gcode"].(type) {
	case nil:
		result["layer_gcode"] = "G92 E0"
	case string:
		if !strings.Contains(gcode, "G92 E0") {
			result["layer_gcode"] = gcode + "\nG92 E0"
		}
	}

	return result
}

// WriteSettingsFile renders a settings payload the slicer can load. The
// slicer requires type, name, from, and version metadata fields alongside
// the actual settings.
func WriteSettingsFile(workDir, profileName string, settings map[string]any) (string, error) {
	if profileName == "" {
		profileName = "API Generated Profile"
	}
	payload := map[string]any{
		"type":    "process",
		"name":    profileName,
		"from":    "user",
		"version": "1.0.0",
	}
	for key, value := range NormalizeSettings(settings) {
		payload[key] = value
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal settings: %w", err)
	}
	path := filepath.Join(workDir, "settings.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write settings file: %w", err)
	}
	return path, nil
}

func hasKey(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}

// formatNumber renders ints and floats without a trailing ".0" for whole
// values, matching what the slicer parses.
func formatNumber(value any) (string, bool) {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return formatNumber(float64(v))
	default:
		return "", false
	}
}
