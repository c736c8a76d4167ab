package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSlicer(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeSlicer() error {
	if c.Slicer.Binary == "" {
		if value, ok := os.LookupEnv("SLICER_BINARY"); ok {
			c.Slicer.Binary = value
		}
	}
	c.Slicer.Binary = strings.TrimSpace(c.Slicer.Binary)
	if c.Slicer.Binary == "" {
		c.Slicer.Binary = defaultSlicerBinary
	}

	if c.Slicer.DataDir == "" {
		if value, ok := os.LookupEnv("SLICER_DATADIR"); ok {
			c.Slicer.DataDir = value
		}
	}
	var err error
	if strings.TrimSpace(c.Slicer.DataDir) == "" {
		c.Slicer.DataDir = defaultSlicerDataDir
	}
	if c.Slicer.DataDir, err = expandPath(c.Slicer.DataDir); err != nil {
		return fmt.Errorf("slicer.data_dir: %w", err)
	}

	if c.Slicer.TimeoutSeconds == 0 {
		c.Slicer.TimeoutSeconds = defaultSlicerTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Uploads.MaxSizeMiB == 0 {
		c.Uploads.MaxSizeMiB = defaultUploadMaxSizeMiB
	}
}
