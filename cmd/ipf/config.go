package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-ini/ini"
	"github.com/spf13/pflag"

	"github.com/meigma/ipf"
	"github.com/meigma/ipf/internal/inflate"
)

// Cache kinds accepted by [cache] type and --cache.
const (
	cacheNone   = "none"
	cacheMemory = "memory"
	cacheDisk   = "disk"
)

// config holds the settings shared by every command. Values come from
// the defaults, then the INI file named by --config, then flags.
type config struct {
	Archive archiveConfig
	Cache   cacheConfig
	Extract extractConfig
	Verbose bool
}

// archiveConfig is the [archive] section.
type archiveConfig struct {
	MaxFileSize    uint64
	SpillThreshold int64
	TempDir        string
	NameEncoding   string
}

// cacheConfig is the [cache] section.
type cacheConfig struct {
	Type          string
	Dir           string
	MaxBytes      int64
	MemoryEntries int
}

// extractConfig is the [extract] section.
type extractConfig struct {
	Workers   int
	Overwrite bool
}

func defaultConfig() config {
	return config{
		Archive: archiveConfig{
			MaxFileSize:    inflate.DefaultMaxFileSize,
			SpillThreshold: ipf.DefaultSpillThreshold,
		},
		Cache: cacheConfig{Type: cacheNone},
	}
}

// flagValues are the raw flag destinations. Sizes are parsed with
// go-humanize so "64MiB" and "1GB" are accepted.
type flagValues struct {
	configPath     string
	verbose        bool
	maxFileSize    string
	spillThreshold string
	tempDir        string
	nameEncoding   string
	cacheType      string
	cacheDir       string
	cacheMaxBytes  string
	workers        int
	overwrite      bool
}

func (v *flagValues) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&v.configPath, "config", "", "read settings from this INI file")
	flagSet.BoolVarP(&v.verbose, "verbose", "v", false, "log debug records to stderr")
	flagSet.StringVar(&v.maxFileSize, "max-file-size", "", "largest record size to decompress (0 = unlimited)")
	flagSet.StringVar(&v.spillThreshold, "spill-threshold", "", "largest content kept in memory; larger contents use a temp file")
	flagSet.StringVar(&v.tempDir, "temp-dir", "", "directory for temporary content files")
	flagSet.StringVar(&v.nameEncoding, "name-encoding", "", "character set of record names, e.g. windows-1252")
	flagSet.StringVar(&v.cacheType, "cache", "", "content cache: none, memory, or disk")
	flagSet.StringVar(&v.cacheDir, "cache-dir", "", "disk cache directory")
	flagSet.StringVar(&v.cacheMaxBytes, "cache-max-bytes", "", "cache size limit (0 = unlimited)")
	flagSet.IntVar(&v.workers, "workers", 0, "parallel extraction workers (0 = one per CPU)")
	flagSet.BoolVar(&v.overwrite, "overwrite", false, "overwrite existing files when extracting")
}

// loadConfig builds the effective configuration. Only flags the user set
// override values from the file.
func loadConfig(flagSet *pflag.FlagSet, v *flagValues) (config, error) {
	cfg := defaultConfig()
	if v.configPath != "" {
		if err := cfg.readFile(v.configPath); err != nil {
			return config{}, err
		}
	}

	var err error
	if flagSet.Changed("verbose") {
		cfg.Verbose = v.verbose
	}
	if flagSet.Changed("max-file-size") {
		if cfg.Archive.MaxFileSize, err = humanize.ParseBytes(v.maxFileSize); err != nil {
			return config{}, fmt.Errorf("--max-file-size: %w", err)
		}
	}
	if flagSet.Changed("spill-threshold") {
		if cfg.Archive.SpillThreshold, err = parseSignedSize(v.spillThreshold); err != nil {
			return config{}, fmt.Errorf("--spill-threshold: %w", err)
		}
	}
	if flagSet.Changed("temp-dir") {
		cfg.Archive.TempDir = v.tempDir
	}
	if flagSet.Changed("name-encoding") {
		cfg.Archive.NameEncoding = v.nameEncoding
	}
	if flagSet.Changed("cache") {
		cfg.Cache.Type = v.cacheType
	}
	if flagSet.Changed("cache-dir") {
		cfg.Cache.Dir = v.cacheDir
		if !flagSet.Changed("cache") && cfg.Cache.Type == cacheNone {
			cfg.Cache.Type = cacheDisk
		}
	}
	if flagSet.Changed("cache-max-bytes") {
		if cfg.Cache.MaxBytes, err = parseSignedSize(v.cacheMaxBytes); err != nil {
			return config{}, fmt.Errorf("--cache-max-bytes: %w", err)
		}
	}
	if flagSet.Changed("workers") {
		cfg.Extract.Workers = v.workers
	}
	if flagSet.Changed("overwrite") {
		cfg.Extract.Overwrite = v.overwrite
	}
	return cfg, cfg.validate()
}

// readFile applies the [archive], [cache], and [extract] sections of an
// INI file. Missing sections and keys keep their current values.
func (c *config) readFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file: %w", err)
	}
	file, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	if file.HasSection("archive") {
		section := file.Section("archive")
		if section.HasKey("max_file_size") {
			if c.Archive.MaxFileSize, err = humanize.ParseBytes(section.Key("max_file_size").String()); err != nil {
				return fmt.Errorf("[archive] max_file_size: %w", err)
			}
		}
		if section.HasKey("spill_threshold") {
			if c.Archive.SpillThreshold, err = parseSignedSize(section.Key("spill_threshold").String()); err != nil {
				return fmt.Errorf("[archive] spill_threshold: %w", err)
			}
		}
		if section.HasKey("temp_dir") {
			c.Archive.TempDir = section.Key("temp_dir").String()
		}
		if section.HasKey("name_encoding") {
			c.Archive.NameEncoding = section.Key("name_encoding").String()
		}
	}

	if file.HasSection("cache") {
		section := file.Section("cache")
		if section.HasKey("dir") {
			c.Cache.Dir = section.Key("dir").String()
			c.Cache.Type = cacheDisk
		}
		if section.HasKey("type") {
			c.Cache.Type = section.Key("type").String()
		}
		if section.HasKey("max_bytes") {
			if c.Cache.MaxBytes, err = parseSignedSize(section.Key("max_bytes").String()); err != nil {
				return fmt.Errorf("[cache] max_bytes: %w", err)
			}
		}
		if section.HasKey("memory_entries") {
			if c.Cache.MemoryEntries, err = section.Key("memory_entries").Int(); err != nil {
				return fmt.Errorf("[cache] memory_entries: %w", err)
			}
		}
	}

	if file.HasSection("extract") {
		section := file.Section("extract")
		if section.HasKey("workers") {
			if c.Extract.Workers, err = section.Key("workers").Int(); err != nil {
				return fmt.Errorf("[extract] workers: %w", err)
			}
		}
		if section.HasKey("overwrite") {
			if c.Extract.Overwrite, err = section.Key("overwrite").Bool(); err != nil {
				return fmt.Errorf("[extract] overwrite: %w", err)
			}
		}
	}
	return nil
}

func (c *config) validate() error {
	switch c.Cache.Type {
	case cacheNone, cacheMemory:
	case cacheDisk:
		if c.Cache.Dir == "" {
			return errors.New("disk cache requires a cache directory")
		}
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	if c.Cache.MaxBytes < 0 {
		return errors.New("cache max bytes must be >= 0")
	}
	if c.Cache.MemoryEntries < 0 {
		return errors.New("cache memory entries must be >= 0")
	}
	return nil
}

// parseSignedSize parses a humanized size, allowing a leading minus sign
// for settings where a negative value has a meaning.
func parseSignedSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	n, err := humanize.ParseBytes(strings.TrimPrefix(s, "-"))
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("size %q too large", s)
	}
	if neg {
		return -int64(n), nil
	}
	return int64(n), nil
}
