// Package slicer wraps the external slicing CLI: command construction,
// settings-file generation, progress scraping from process output, and
// metadata extraction from the produced G-code and 3MF artifacts.
package slicer
