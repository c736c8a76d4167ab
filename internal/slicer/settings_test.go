package slicer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestMergeSettingsJobOverridesWin(t *testing.T) {
	profile := map[string]any{"layer_height": "0.2", "wall_loops": "2"}
	overrides := map[string]any{"layer_height": "0.28"}

	merged := MergeSettings(profile, overrides)
	if merged["layer_height"] != "0.28" {
		t.Fatalf("layer_height = %v, want job override", merged["layer_height"])
	}
	if merged["wall_loops"] != "2" {
		t.Fatalf("wall_loops = %v, want profile value", merged["wall_loops"])
	}
	if profile["layer_height"] != "0.2" {
		t.Fatal("input map mutated")
	}
}

func TestNormalizeSettings(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		want  any
	}{
		{"numeric float to string", "layer_height", 0.2, "0.2"},
		{"numeric whole float", "line_width", 0.0, "0"},
		{"numeric int to string", "min_layer_height", 1, "1"},
		{"percent number gains suffix", "sparse_infill_density", 25, "25%"},
		{"percent string gains suffix", "internal_bridge_density", "50", "50%"},
		{"percent string kept", "skin_infill_density", "15%", "15%"},
		{"bool true", "enable_support", true, "1"},
		{"bool false", "spiral_mode", false, "0"},
		{"bool already numeric", "detect_thin_wall", 1, "1"},
		{"unknown key untouched", "wall_loops", 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeSettings(map[string]any{tt.key: tt.value})
			if result[tt.key] != tt.want {
				t.Fatalf("NormalizeSettings[%s] = %v (%T), want %v", tt.key, result[tt.key], result[tt.key], tt.want)
			}
		})
	}
}

func TestNormalizeSettingsInfillAlias(t *testing.T) {
	result := NormalizeSettings(map[string]any{"infill_density": 30})
	if _, ok := result["infill_density"]; ok {
		t.Fatal("alias key should be removed")
	}
	if result["sparse_infill_density"] != "30%" {
		t.Fatalf("sparse_infill_density = %v", result["sparse_infill_density"])
	}

	// Explicit sparse_infill_density wins over the alias.
	result = NormalizeSettings(map[string]any{
		"infill_density":        30,
		"sparse_infill_density": "40%",
	})
	if result["sparse_infill_density"] != "40%" {
		t.Fatalf("sparse_infill_density = %v, want explicit value", result["sparse_infill_density"])
	}
}

func TestNormalizeSettingsLayerGCode(t *testing.T) {
	result := NormalizeSettings(map[string]any{})
	if result["layer_gcode"] != "G92 E0" {
		t.Fatalf("layer_gcode = %v", result["layer_gcode"])
	}

	result = NormalizeSettings(map[string]any{"layer_gcode": ";LAYER_CHANGE"})
	if result["layer_gcode"] != ";LAYER_CHANGE\nG92 E0" {
		t.Fatalf("layer_gcode = %q", result["layer_gcode"])
	}

	result = NormalizeSettings(map[string]any{"layer_gcode": "G92 E0\n;LAYER"})
	if result["layer_gcode"] != "G92 E0\n;LAYER" {
		t.Fatalf("layer_gcode should be untouched, got %q", result["layer_gcode"])
	}
}

func TestWriteSettingsFile(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteSettingsFile(dir, "Draft PLA", map[string]any{"layer_height": 0.28})
	if err != nil {
		t.Fatalf("write settings: %v", err)
	}
	if path != filepath.Join(dir, "settings.json") {
		t.Fatalf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("settings file is not valid JSON: %v", err)
	}
	for key, want := range map[string]any{
		"type":         "process",
		"name":         "Draft PLA",
		"from":         "user",
		"version":      "1.0.0",
		"layer_height": "0.28",
	} {
		if payload[key] != want {
			t.Fatalf("payload[%s] = %v, want %v", key, payload[key], want)
		}
	}
}
