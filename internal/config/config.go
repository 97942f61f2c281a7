package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SafetyConfig tunes confirmation strictness.
type SafetyConfig struct {
	Level           string `yaml:"level"`            // strict / moderate / permissive
	AutoApproveLow  bool   `yaml:"auto_approve_low"` // LOW risk proceeds without a prompt
	CodeLength      int    `yaml:"code_length"`      // MEDIUM confirmation code length
	HighCodeGroups  int    `yaml:"high_code_groups"` // groups in a HIGH composite code
	HighCodeGroupLn int    `yaml:"high_code_group_len"`
}

// GatesConfig enables or disables optional gates. Pre-flight, confirmation,
// and backup cannot be disabled; only analysis-side gates are optional.
type GatesConfig struct {
	DependencyAnalysis bool `yaml:"dependency_analysis"`
	PostValidation     bool `yaml:"post_validation"`
}

// BackupConfig controls snapshot retention.
type BackupConfig struct {
	RetentionDays int `yaml:"retention_days"`
	MaxAuditDays  int `yaml:"max_audit_days"`
}

// ScanConfig controls the dependency checkers.
type ScanConfig struct {
	ExcludeGlobs  []string `yaml:"exclude_globs"`
	CriticalFiles []string `yaml:"critical_files"` // additions to the built-in set
	MaxFileBytes  int64    `yaml:"max_file_bytes"` // files larger than this are skipped
}

type Config struct {
	Safety  SafetyConfig `yaml:"safety"`
	Gates   GatesConfig  `yaml:"gates"`
	Backup  BackupConfig `yaml:"backup"`
	Scan    ScanConfig   `yaml:"scan"`
	BaseDir string       `yaml:"-"`
}

func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Safety: SafetyConfig{
			Level:           "moderate",
			AutoApproveLow:  true,
			CodeLength:      8,
			HighCodeGroups:  3,
			HighCodeGroupLn: 4,
		},
		Gates: GatesConfig{
			DependencyAnalysis: true,
			PostValidation:     true,
		},
		Backup: BackupConfig{
			RetentionDays: 30,
			MaxAuditDays:  90,
		},
		Scan: ScanConfig{
			ExcludeGlobs: []string{
				".git/**", "node_modules/**", "vendor/**", "target/**",
				"dist/**", "build/**", "__pycache__/**", ".cache/**",
				"*.pyc", "*.o", "*.so", "*.exe",
			},
			MaxFileBytes: 2 << 20,
		},
		BaseDir: filepath.Join(home, ".sweep"),
	}
}

// Load reads the config file at path, falling back to defaults for a missing
// file and backfilling zero values. The result is a snapshot: the pipeline
// copies it at run start and never re-reads the file mid-run.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	// Ensure defaults for zero values
	if cfg.Safety.Level == "" {
		cfg.Safety.Level = "moderate"
	}
	if cfg.Safety.CodeLength == 0 {
		cfg.Safety.CodeLength = 8
	}
	if cfg.Safety.HighCodeGroups == 0 {
		cfg.Safety.HighCodeGroups = 3
	}
	if cfg.Safety.HighCodeGroupLn == 0 {
		cfg.Safety.HighCodeGroupLn = 4
	}
	if cfg.Backup.RetentionDays == 0 {
		cfg.Backup.RetentionDays = 30
	}
	if cfg.Backup.MaxAuditDays == 0 {
		cfg.Backup.MaxAuditDays = 90
	}
	if cfg.Scan.MaxFileBytes == 0 {
		cfg.Scan.MaxFileBytes = 2 << 20
	}
	if len(cfg.Scan.ExcludeGlobs) == 0 {
		cfg.Scan.ExcludeGlobs = Default().Scan.ExcludeGlobs
	}
	if cfg.BaseDir == "" {
		home, _ := os.UserHomeDir()
		cfg.BaseDir = filepath.Join(home, ".sweep")
	}

	return cfg, nil
}

// Strict reports whether the strict safety level is active. Strict disables
// LOW auto-approval regardless of the auto_approve_low flag.
func (c Config) Strict() bool {
	return c.Safety.Level == "strict"
}

func (c Config) BackupDir() string {
	return filepath.Join(c.BaseDir, "backups")
}

func (c Config) AuditDir() string {
	return filepath.Join(c.BaseDir, "audit")
}

func (c Config) LockDir() string {
	return filepath.Join(c.BaseDir, "locks")
}

func (c Config) StateDBPath() string {
	return filepath.Join(c.BaseDir, "state.db")
}

func (c Config) OverridePath() string {
	return filepath.Join(c.BaseDir, "override")
}

func (c Config) EnsureDirs() error {
	dirs := []string{
		c.BackupDir(),
		c.AuditDir(),
		c.LockDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}
