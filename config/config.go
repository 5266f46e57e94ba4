package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhcgn/homework-intake/archive"
	"github.com/dhcgn/homework-intake/filter"
	"github.com/dhcgn/homework-intake/report"
	"github.com/dhcgn/homework-intake/roster"
	"github.com/dhcgn/homework-intake/state"
)

// EnvPrefix prefixes every environment override, e.g. INTAKE_COURSE_NAME or
// INTAKE_ROSTER_PATH.
const EnvPrefix = "INTAKE"

var ErrConfiguration = errors.New("invalid configuration")

// MissingKeysError lists every required key that has no value.
type MissingKeysError struct {
	Keys []string
}

func (e *MissingKeysError) Error() string {
	return "missing required configuration keys: " + strings.Join(e.Keys, ", ")
}

func (e *MissingKeysError) Unwrap() error {
	return ErrConfiguration
}

// Config captures everything needed to run an intake pass.
type Config struct {
	CourseName        string       `mapstructure:"course_name"`
	CourseAliases     []string     `mapstructure:"course_aliases"`
	AssignmentName    string       `mapstructure:"assignment_name"`
	AssignmentAliases []string     `mapstructure:"assignment_aliases"`
	EmailDir          string       `mapstructure:"email_dir"`
	OutputDir         string       `mapstructure:"output_dir"`
	ArchiveFolder     string       `mapstructure:"archive_folder"`
	AttachmentFolder  string       `mapstructure:"attachment_folder"`
	Roster            RosterConfig `mapstructure:"roster"`
	Ledger            LedgerConfig `mapstructure:"ledger"`
	Report            ReportConfig `mapstructure:"report"`
	MetricsFile       string       `mapstructure:"metrics_file"`
	LogLevel          string       `mapstructure:"log_level"`
	LogDir            string       `mapstructure:"log_dir"`
	DryRun            bool         `mapstructure:"dry_run"`
	Progress          bool         `mapstructure:"progress"`
}

type RosterConfig struct {
	Path       string `mapstructure:"path"`
	Sheet      string `mapstructure:"sheet"`
	IDColumn   string `mapstructure:"id_column"`
	NameColumn string `mapstructure:"name_column"`
	StartRow   int    `mapstructure:"start_row"`
}

type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type ReportConfig struct {
	Format string `mapstructure:"format"`
}

var bindings = []struct {
	key, flag string
}{
	{"course_name", "course"},
	{"course_aliases", "course-alias"},
	{"assignment_name", "assignment"},
	{"assignment_aliases", "assignment-alias"},
	{"email_dir", "email-dir"},
	{"output_dir", "output-dir"},
	{"archive_folder", "archive-folder"},
	{"attachment_folder", "attachment-folder"},
	{"roster.path", "roster"},
	{"roster.sheet", "roster-sheet"},
	{"roster.id_column", "roster-id-column"},
	{"roster.name_column", "roster-name-column"},
	{"roster.start_row", "roster-start-row"},
	{"ledger.backend", "ledger-backend"},
	{"ledger.path", "ledger-path"},
	{"report.format", "report-format"},
	{"metrics_file", "metrics-file"},
	{"log_level", "log-level"},
	{"log_dir", "log-dir"},
	{"dry_run", "dry-run"},
	{"progress", "progress"},
}

var requiredKeys = []string{"course_name", "assignment_name", "email_dir", "output_dir", "roster.path"}

// RegisterFlags attaches the configuration flags to cmd as persistent flags,
// so every subcommand shares them.
func RegisterFlags(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a YAML, TOML or JSON config file (default ./intake.yaml if present)")
	flags.String("course", "", "Course name a submission must mention")
	flags.StringSlice("course-alias", nil, "Alternative course name (repeatable)")
	flags.String("assignment", "", "Assignment name a submission must mention")
	flags.StringSlice("assignment-alias", nil, "Alternative assignment name (repeatable)")
	flags.String("email-dir", "", "Intake directory holding delivered .eml files")
	flags.String("output-dir", "", "Output root for archived messages, attachments, ledger and report")
	flags.String("archive-folder", "archive", "Archive subfolder below the output root")
	flags.String("attachment-folder", "attachments", "Attachment subfolder below the output root")
	flags.String("roster", "", "Roster spreadsheet (.xlsx, .xlsm or .csv)")
	flags.String("roster-sheet", "", "Roster sheet name (default: first sheet)")
	flags.String("roster-id-column", "B", "Roster column holding student IDs")
	flags.String("roster-name-column", "C", "Roster column holding student names")
	flags.Int("roster-start-row", 6, "First roster row holding a student (1-based)")
	flags.String("ledger-backend", state.BackendJSON, "Ledger store: json or sqlite")
	flags.String("ledger-path", "", "Ledger location (default <output-dir>/processed_emails.json or .db)")
	flags.String("report-format", report.FormatXLSX, "Report format: xlsx or csv")
	flags.String("metrics-file", "", "Write Prometheus text metrics to this file after each pass")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Also write logs to a timestamped file in this directory")
	flags.Bool("dry-run", false, "Evaluate messages without archiving or recording them")
	flags.Bool("progress", false, "Show a progress bar")
	return nil
}

// LoadConfig merges flags, environment, config file and defaults, in that
// order of precedence, and validates the result.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	v := viper.New()
	setDefaults(v)

	flags := cmd.Flags()
	for _, b := range bindings {
		if f := flags.Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", b.flag, err)
			}
		}
		if err := v.BindEnv(b.key, envName(b.key)); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", b.key, err)
		}
	}

	configFile, _ := flags.GetString("config")
	if err := readConfigFile(v, configFile); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	cfg = normalize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("archive_folder", "archive")
	v.SetDefault("attachment_folder", "attachments")
	v.SetDefault("roster.id_column", "B")
	v.SetDefault("roster.name_column", "C")
	v.SetDefault("roster.start_row", 6)
	v.SetDefault("ledger.backend", state.BackendJSON)
	v.SetDefault("report.format", report.FormatXLSX)
	v.SetDefault("log_level", "info")
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: read config file %s: %w", ErrConfiguration, path, err)
		}
		return nil
	}

	v.SetConfigName("intake")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("%w: read config file: %w", ErrConfiguration, err)
		}
	}
	return nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func normalize(cfg Config) Config {
	cfg.CourseName = strings.TrimSpace(cfg.CourseName)
	cfg.AssignmentName = strings.TrimSpace(cfg.AssignmentName)
	cfg.CourseAliases = compact(cfg.CourseAliases)
	cfg.AssignmentAliases = compact(cfg.AssignmentAliases)
	cfg.Roster.IDColumn = strings.ToUpper(strings.TrimSpace(cfg.Roster.IDColumn))
	cfg.Roster.NameColumn = strings.ToUpper(strings.TrimSpace(cfg.Roster.NameColumn))
	cfg.Ledger.Backend = strings.ToLower(strings.TrimSpace(cfg.Ledger.Backend))
	cfg.Report.Format = strings.ToLower(strings.TrimSpace(cfg.Report.Format))

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}

	for _, p := range []*string{&cfg.EmailDir, &cfg.OutputDir, &cfg.Roster.Path, &cfg.Ledger.Path, &cfg.LogDir, &cfg.MetricsFile} {
		if s := strings.TrimSpace(*p); s != "" {
			*p = filepath.Clean(s)
		} else {
			*p = ""
		}
	}

	if cfg.Ledger.Path == "" && cfg.OutputDir != "" {
		name := "processed_emails.json"
		if cfg.Ledger.Backend == state.BackendSQLite {
			name = "processed_emails.db"
		}
		cfg.Ledger.Path = filepath.Join(cfg.OutputDir, name)
	}
	return cfg
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate reports all missing required keys at once, then checks the
// enumerated settings.
func (c Config) Validate() error {
	values := map[string]string{
		"course_name":     c.CourseName,
		"assignment_name": c.AssignmentName,
		"email_dir":       c.EmailDir,
		"output_dir":      c.OutputDir,
		"roster.path":     c.Roster.Path,
	}
	var missing []string
	for _, key := range requiredKeys {
		if values[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &MissingKeysError{Keys: missing}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: invalid log_level %q", ErrConfiguration, c.LogLevel)
	}
	switch c.Ledger.Backend {
	case state.BackendJSON, state.BackendSQLite:
	default:
		return fmt.Errorf("%w: invalid ledger.backend %q", ErrConfiguration, c.Ledger.Backend)
	}
	switch c.Report.Format {
	case report.FormatXLSX, report.FormatCSV:
	default:
		return fmt.Errorf("%w: invalid report.format %q", ErrConfiguration, c.Report.Format)
	}
	if c.Roster.StartRow < 1 {
		return fmt.Errorf("%w: roster.start_row must be at least 1", ErrConfiguration)
	}
	if c.ArchiveFolder == "" || c.AttachmentFolder == "" {
		return fmt.Errorf("%w: archive_folder and attachment_folder must not be empty", ErrConfiguration)
	}
	return nil
}

// CourseNames is the course name followed by its aliases.
func (c Config) CourseNames() []string {
	return append([]string{c.CourseName}, c.CourseAliases...)
}

// AssignmentNames is the assignment name followed by its aliases.
func (c Config) AssignmentNames() []string {
	return append([]string{c.AssignmentName}, c.AssignmentAliases...)
}

func (c Config) FilterOptions() filter.Options {
	return filter.Options{CourseNames: c.CourseNames(), AssignmentNames: c.AssignmentNames()}
}

func (c Config) RosterOptions() roster.Options {
	return roster.Options{
		Path:       c.Roster.Path,
		Sheet:      c.Roster.Sheet,
		IDColumn:   c.Roster.IDColumn,
		NameColumn: c.Roster.NameColumn,
		StartRow:   c.Roster.StartRow,
	}
}

func (c Config) ArchiveOptions() archive.Options {
	return archive.Options{
		OutputRoot:       c.OutputDir,
		ArchiveFolder:    c.ArchiveFolder,
		AttachmentFolder: c.AttachmentFolder,
		Course:           c.CourseName,
		Assignment:       c.AssignmentName,
	}
}

func (c Config) LedgerOptions() state.Options {
	return state.Options{Backend: c.Ledger.Backend, Path: c.Ledger.Path}
}

func (c Config) ReportPath() string {
	return report.Path(c.OutputDir, c.CourseName, c.AssignmentName, c.Report.Format)
}
