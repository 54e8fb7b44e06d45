package filehashcache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/jmgilman/go/errors"
	"github.com/natefinch/atomic"
)

// Config represents the fhcache configuration file
type Config struct {
	configPath string
	ini        *ini.File
}

// HashConfig represents hash algorithm configuration
type HashConfig struct {
	Default string // Default hash algorithm
}

// CacheConfig represents cache engine and path policy configuration
type CacheConfig struct {
	Engine             string   // loading, skiplist or combo
	CompareEngines     bool     // shorthand for engine = combo
	CheckIgnoredPaths  bool     // reject ignored paths instead of reading through
	StrictInvalidation bool     // discard loads overtaken by an invalidate
	ArchiveExtensions  []string // suffixes hashed as archives
	OutputDir          string   // when set, only paths below it are trusted
}

// VerboseConfig represents verbosity configuration
type VerboseConfig struct {
	Level int    // Default verbose level (0=quiet, 1=basic, 2=detailed, 3=trace)
	Debug string // Default debug flags (comma-separated)
}

// PerformanceConfig represents performance-related configuration
type PerformanceConfig struct {
	HashWorkers int // Concurrent file reads per cache (default: 4)
}

// AllConfig represents all configuration options
type AllConfig struct {
	Hash        *HashConfig
	Cache       *CacheConfig
	Verbose     *VerboseConfig
	Performance *PerformanceConfig
}

// DefaultConfigPath returns root/.fhcache/config
func DefaultConfigPath(root string) string {
	return filepath.Join(root, StateDirName, ConfigFileName)
}

// LoadConfig loads configuration from configPath. A missing file yields
// the defaults; nothing is written until Save is called.
func LoadConfig(configPath string) (*Config, error) {
	cfg := &Config{
		configPath: configPath,
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.ini = ini.Empty()
		if err := cfg.setDefaults(); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to set default config")
		}
		return cfg, nil
	}

	iniFile, err := ini.Load(configPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to load config file")
	}
	cfg.ini = iniFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigData parses configuration from memory
func LoadConfigData(data []byte) (*Config, error) {
	iniFile, err := ini.Load(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse config")
	}
	cfg := &Config{ini: iniFile}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() error {
	defaults := []struct {
		section, key, value string
	}{
		{"filehash", "default", DefaultHashAlgorithm},
		{"cache", "engine", EngineLoading.String()},
		{"cache", "compare_engines", "false"},
		{"cache", "check_ignored_paths", "false"},
		{"cache", "strict_invalidation", "false"},
		{"cache", "archive_extensions", strings.Join(DefaultArchiveExtensions, ",")},
		{"cache", "output_dir", ""},
		{"performance", "hash_workers", fmt.Sprintf("%d", DefaultHashWorkers)},
		{"verbose", "level", "0"},
		{"verbose", "debug", ""},
	}
	for _, d := range defaults {
		if _, err := c.ini.Section(d.section).NewKey(d.key, d.value); err != nil {
			return fmt.Errorf("failed to set default %s.%s: %w", d.section, d.key, err)
		}
	}
	return nil
}

// GetHashConfig returns the hash configuration
func (c *Config) GetHashConfig() *HashConfig {
	hashConfig := &HashConfig{
		Default: DefaultHashAlgorithm, // fallback default
	}

	if c.ini.HasSection("filehash") {
		section := c.ini.Section("filehash")
		if section.HasKey("default") {
			hashConfig.Default = section.Key("default").String()
		}
	}

	return hashConfig
}

// GetCacheConfig returns the cache configuration
func (c *Config) GetCacheConfig() *CacheConfig {
	cacheConfig := &CacheConfig{
		Engine:            EngineLoading.String(),
		ArchiveExtensions: DefaultArchiveExtensions,
	}

	if !c.ini.HasSection("cache") {
		return cacheConfig
	}
	section := c.ini.Section("cache")
	if section.HasKey("engine") {
		cacheConfig.Engine = section.Key("engine").String()
	}
	if section.HasKey("compare_engines") {
		if v, err := section.Key("compare_engines").Bool(); err == nil {
			cacheConfig.CompareEngines = v
		}
	}
	if section.HasKey("check_ignored_paths") {
		if v, err := section.Key("check_ignored_paths").Bool(); err == nil {
			cacheConfig.CheckIgnoredPaths = v
		}
	}
	if section.HasKey("strict_invalidation") {
		if v, err := section.Key("strict_invalidation").Bool(); err == nil {
			cacheConfig.StrictInvalidation = v
		}
	}
	if section.HasKey("archive_extensions") {
		var exts []string
		for _, ext := range section.Key("archive_extensions").Strings(",") {
			if ext = strings.ToLower(strings.TrimSpace(ext)); ext != "" {
				exts = append(exts, ext)
			}
		}
		cacheConfig.ArchiveExtensions = exts
	}
	if section.HasKey("output_dir") {
		cacheConfig.OutputDir = section.Key("output_dir").String()
	}

	return cacheConfig
}

// GetVerboseConfig returns the verbose configuration
func (c *Config) GetVerboseConfig() *VerboseConfig {
	verboseConfig := &VerboseConfig{}

	if c.ini.HasSection("verbose") {
		section := c.ini.Section("verbose")
		if section.HasKey("level") {
			if level, err := section.Key("level").Int(); err == nil {
				verboseConfig.Level = level
			}
		}
		if section.HasKey("debug") {
			verboseConfig.Debug = section.Key("debug").String()
		}
	}

	return verboseConfig
}

// GetPerformanceConfig returns the performance configuration
func (c *Config) GetPerformanceConfig() *PerformanceConfig {
	performanceConfig := &PerformanceConfig{
		HashWorkers: DefaultHashWorkers, // fallback default
	}

	if c.ini.HasSection("performance") {
		section := c.ini.Section("performance")
		if section.HasKey("hash_workers") {
			if workers, err := section.Key("hash_workers").Int(); err == nil {
				performanceConfig.HashWorkers = workers
			}
		}
	}

	return performanceConfig
}

// GetAllConfig returns all configuration options
func (c *Config) GetAllConfig() *AllConfig {
	return &AllConfig{
		Hash:        c.GetHashConfig(),
		Cache:       c.GetCacheConfig(),
		Verbose:     c.GetVerboseConfig(),
		Performance: c.GetPerformanceConfig(),
	}
}

// Options converts the configuration into cache construction options.
// Logger output goes to stderr.
func (c *Config) Options() (Options, error) {
	if err := c.Validate(); err != nil {
		return Options{}, err
	}
	all := c.GetAllConfig()
	engine, err := ParseEngineKind(all.Cache.Engine)
	if err != nil {
		return Options{}, err
	}
	if all.Cache.CompareEngines {
		engine = EngineCombo
	}
	return Options{
		Engine:             engine,
		CheckIgnoredPaths:  all.Cache.CheckIgnoredPaths,
		StrictInvalidation: all.Cache.StrictInvalidation,
		Algorithm:          all.Hash.Default,
		HashWorkers:        all.Performance.HashWorkers,
		ArchiveExtensions:  all.Cache.ArchiveExtensions,
		Logger:             NewLogger(nil, all.Verbose.Level, all.Verbose.Debug),
	}, nil
}

// Set stores one value as section.key
func (c *Config) Set(section, key, value string) {
	c.ini.Section(section).Key(key).SetValue(value)
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.New(errors.CodeInvalidConfig, "config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0755); err != nil {
		return errors.Wrap(err, CodeIO, "failed to create config directory")
	}
	var buf bytes.Buffer
	if _, err := c.ini.WriteTo(&buf); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "failed to render config")
	}
	if err := atomic.WriteFile(c.configPath, &buf); err != nil {
		return errors.Wrap(err, CodeIO, "failed to save config")
	}
	return nil
}

// ApplyOverrides applies command-line overrides to the configuration
// Accepts strings like "default:sha256", "engine:combo", "level:2", "hash_workers:8"
func (c *Config) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		parts := strings.SplitN(override, ":", 2)
		if len(parts) != 2 {
			return errors.Newf(errors.CodeInvalidConfig, "invalid override format '%s', expected 'key:value'", override)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "default":
			c.Set("filehash", "default", value)
		case "engine", "compare_engines", "check_ignored_paths", "strict_invalidation", "archive_extensions", "output_dir":
			c.Set("cache", key, value)
		case "level", "debug":
			c.Set("verbose", key, value)
		case "hash_workers":
			c.Set("performance", "hash_workers", value)
		default:
			return errors.Newf(errors.CodeInvalidConfig, "unsupported override key '%s' (supported: default, engine, compare_engines, check_ignored_paths, strict_invalidation, archive_extensions, output_dir, level, debug, hash_workers)", key)
		}
	}

	return c.Validate()
}

// Validate checks every option for a supported value
func (c *Config) Validate() error {
	all := c.GetAllConfig()
	if err := ValidateHashAlgorithm(all.Hash.Default); err != nil {
		return err
	}
	if _, err := ParseEngineKind(all.Cache.Engine); err != nil {
		return err
	}
	if err := ValidateVerboseLevel(all.Verbose.Level); err != nil {
		return err
	}
	if err := ValidateHashWorkers(all.Performance.HashWorkers); err != nil {
		return err
	}
	if all.Cache.OutputDir != "" && isAbsolutePath(all.Cache.OutputDir) {
		return errors.Newf(errors.CodeInvalidConfig, "output_dir must be relative to the project root: %s", all.Cache.OutputDir)
	}
	return nil
}

// ValidateHashAlgorithm validates that a hash algorithm is supported
func ValidateHashAlgorithm(algorithm string) error {
	if _, ok := HashTypeFromName(algorithm); !ok {
		return errors.Newf(errors.CodeInvalidConfig, "unsupported hash algorithm: %s (supported: sha1, sha256, sha512)", algorithm)
	}
	return nil
}

// ValidateVerboseLevel validates that a verbose level is valid
func ValidateVerboseLevel(level int) error {
	if level < 0 || level > 3 {
		return errors.Newf(errors.CodeInvalidConfig, "invalid verbose level: %d (supported: 0-3)", level)
	}
	return nil
}

// ValidateHashWorkers validates that the hash worker count is reasonable
func ValidateHashWorkers(workers int) error {
	if workers < 1 {
		return errors.Newf(errors.CodeInvalidConfig, "hash workers must be at least 1, got: %d", workers)
	}
	if workers > 64 {
		return errors.Newf(errors.CodeInvalidConfig, "hash workers should not exceed 64, got: %d", workers)
	}
	return nil
}
