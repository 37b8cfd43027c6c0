package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/allyourbase/oraclone/internal/indexes"
	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/oci/ocisql"
	"github.com/allyourbase/oraclone/internal/schemas"
	"github.com/allyourbase/oraclone/internal/tables"
)

// DefaultFile is the config file name looked up in the working directory or
// in the per-database directory.
const DefaultFile = "oraclone.toml"

// Config is the top-level oraclone configuration.
type Config struct {
	Source      DatabaseConfig `toml:"source"`
	Destination DatabaseConfig `toml:"destination"`
	Transfer    TransferConfig `toml:"transfer"`
	Schemas     []SchemaConfig `toml:"schemas"`
	SchemasFile string         `toml:"schemas_file"`
	Logging     LoggingConfig  `toml:"logging"`
	Journal     JournalConfig  `toml:"journal"`
	Archive     ArchiveConfig  `toml:"archive"`
	Notify      NotifyConfig   `toml:"notify"`
	Status      StatusConfig   `toml:"status"`
}

type DatabaseConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Driver   string `toml:"driver"`  // "godror" (default) or "go-ora"
	Charset  string `toml:"charset"` // WE8ISO8859P1, EE8ISO8859P2 or AL32UTF8
}

type TransferConfig struct {
	BufferSizeMB    int    `toml:"buffer_size_mb"`
	LobChunkSize    int    `toml:"lob_chunk_size"`
	LunaCalc        int    `toml:"luna_calc"` // 0 disables the filter
	DataTablespace  string `toml:"data_tablespace"`
	TempTablespace  string `toml:"temp_tablespace"`
	IndexTablespace string `toml:"index_tablespace"`
	IndexQueue      int    `toml:"index_queue"`
	IOTMaxRows      int    `toml:"iot_max_rows"`
	IOTMaxColumns   int    `toml:"iot_max_columns"`
}

// SchemaConfig is one schema to migrate.
type SchemaConfig struct {
	Name         string   `toml:"name"`
	Password     string   `toml:"password"`
	AssumeExists bool     `toml:"assume_exists"`
	Exclusions   []string `toml:"exclusions"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Dir    string `toml:"dir"` // migrate.log, errors.log and oraclone.jsonl
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // file path, or a postgres:// URL
}

type ArchiveConfig struct {
	Enabled   bool   `toml:"enabled"`
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	Prefix    string `toml:"prefix"`
}

type NotifyConfig struct {
	SNSTopicARN  string   `toml:"sns_topic_arn"`
	SNSRegion    string   `toml:"sns_region"`
	SMTPHost     string   `toml:"smtp_host"`
	SMTPPort     int      `toml:"smtp_port"`
	SMTPUsername string   `toml:"smtp_username"`
	SMTPPassword string   `toml:"smtp_password"`
	From         string   `toml:"from"`
	To           []string `toml:"to"`
}

type StatusConfig struct {
	Addr string `toml:"addr"` // empty disables the endpoint
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Source:      DatabaseConfig{Driver: ocisql.DriverGodror, Charset: "WE8ISO8859P1"},
		Destination: DatabaseConfig{Driver: ocisql.DriverGodror, Charset: "EE8ISO8859P2"},
		Transfer: TransferConfig{
			BufferSizeMB:    16,
			LobChunkSize:    1 << 20,
			DataTablespace:  "DATA",
			TempTablespace:  "TEMP",
			IndexTablespace: "GRAND_INDEX",
			IndexQueue:      600,
			IOTMaxRows:      5000,
			IOTMaxColumns:   6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Dir:    ".",
		},
		Journal: JournalConfig{
			Path: "oraclone.db",
		},
		Archive: ArchiveConfig{
			Prefix: "oraclone",
			UseSSL: true,
		},
		Notify: NotifyConfig{
			SMTPPort: 587,
		},
	}
}

// Dir returns the per-database directory used when a database name is given
// on the command line, or "" for the working directory.
func Dir(db string) string {
	if db == "" {
		return ""
	}
	return filepath.Join("config", db)
}

// Load builds the configuration: defaults, then the TOML file, then .env
// and ORACLONE_* variables, then flags, then the schema list file.
func Load(configPath string, flags map[string]string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = DefaultFile
	}
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	envFile := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	applyFlags(cfg, flags)

	if cfg.SchemasFile != "" {
		path := cfg.SchemasFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(filepath.Dir(configPath), path)
		}
		list, err := LoadSchemasFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Schemas = append(cfg.Schemas, list...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

type legacySchema struct {
	Name         string   `json:"name"`
	Password     *string  `json:"pw"`
	AssumeExists *bool    `json:"assumexists"`
	Exclusions   []string `json:"exclusions"`
}

// LoadSchemasFile reads a JSON schema list of the form
// [{"name": "APP", "pw": "secret", "assumexists": false, "exclusions": ["LOG"]}].
func LoadSchemasFile(path string) ([]SchemaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schemas file: %w", err)
	}
	var raw []legacySchema
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing schemas file %s: %w", path, err)
	}
	out := make([]SchemaConfig, 0, len(raw))
	for _, r := range raw {
		s := SchemaConfig{Name: r.Name, Exclusions: r.Exclusions}
		if r.Password != nil {
			s.Password = *r.Password
		}
		if r.AssumeExists != nil {
			s.AssumeExists = *r.AssumeExists
		}
		out = append(out, s)
	}
	return out, nil
}

func (c *Config) Validate() error {
	if err := c.Source.validate("source"); err != nil {
		return err
	}
	if err := c.Destination.validate("destination"); err != nil {
		return err
	}
	if c.Transfer.BufferSizeMB < 1 {
		return fmt.Errorf("transfer.buffer_size_mb must be at least 1, got %d", c.Transfer.BufferSizeMB)
	}
	if c.Transfer.LobChunkSize < 1 {
		return fmt.Errorf("transfer.lob_chunk_size must be at least 1, got %d", c.Transfer.LobChunkSize)
	}
	if c.Transfer.LunaCalc < 0 {
		return fmt.Errorf("transfer.luna_calc must be non-negative, got %d", c.Transfer.LunaCalc)
	}
	if c.Transfer.IndexQueue < 1 {
		return fmt.Errorf("transfer.index_queue must be at least 1, got %d", c.Transfer.IndexQueue)
	}
	if c.Transfer.IOTMaxRows < 0 {
		return fmt.Errorf("transfer.iot_max_rows must be non-negative, got %d", c.Transfer.IOTMaxRows)
	}
	if c.Transfer.IOTMaxColumns < 0 {
		return fmt.Errorf("transfer.iot_max_columns must be non-negative, got %d", c.Transfer.IOTMaxColumns)
	}
	if c.Transfer.DataTablespace == "" {
		return fmt.Errorf("transfer.data_tablespace is required")
	}
	if c.Transfer.TempTablespace == "" {
		return fmt.Errorf("transfer.temp_tablespace is required")
	}
	if c.Transfer.IndexTablespace == "" {
		return fmt.Errorf("transfer.index_tablespace is required")
	}
	if len(c.Schemas) == 0 {
		return fmt.Errorf("at least one schema is required (schemas or schemas_file)")
	}
	seen := map[string]bool{}
	for i, s := range c.Schemas {
		if s.Name == "" {
			return fmt.Errorf("schemas[%d].name is required", i)
		}
		if strings.ToUpper(s.Name) != s.Name {
			return fmt.Errorf("schemas[%d].name must be upper case, got %q", i, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("schema %q is listed twice", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Logging.Level != "" {
		switch c.Logging.Level {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("logging.level must be one of: debug, info, warn, error; got %q", c.Logging.Level)
		}
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.path is required when journal is enabled")
	}
	if c.Archive.Enabled {
		if c.Archive.Endpoint == "" {
			return fmt.Errorf("archive.endpoint is required when archive is enabled")
		}
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required when archive is enabled")
		}
		if c.Archive.AccessKey == "" || c.Archive.SecretKey == "" {
			return fmt.Errorf("archive.access_key and archive.secret_key are required when archive is enabled")
		}
	}
	if c.Notify.SMTPHost != "" {
		if c.Notify.From == "" {
			return fmt.Errorf("notify.from is required when notify.smtp_host is set")
		}
		if len(c.Notify.To) == 0 {
			return fmt.Errorf("notify.to is required when notify.smtp_host is set")
		}
		if c.Notify.SMTPPort < 1 || c.Notify.SMTPPort > 65535 {
			return fmt.Errorf("notify.smtp_port must be between 1 and 65535, got %d", c.Notify.SMTPPort)
		}
	}
	return nil
}

func (d DatabaseConfig) validate(section string) error {
	if d.URI == "" {
		return fmt.Errorf("%s.uri is required", section)
	}
	if d.User == "" {
		return fmt.Errorf("%s.user is required", section)
	}
	switch d.Driver {
	case "", ocisql.DriverGodror, ocisql.DriverGoOra:
	default:
		return fmt.Errorf("%s.driver must be %q or %q, got %q", section, ocisql.DriverGodror, ocisql.DriverGoOra, d.Driver)
	}
	if _, err := oci.ParseCharset(d.Charset); err != nil {
		return fmt.Errorf("%s.charset: %w", section, err)
	}
	return nil
}

// Addr returns the connection address of d.
func (d DatabaseConfig) Addr() ocisql.Addr {
	cs, _ := oci.ParseCharset(d.Charset)
	return ocisql.Addr{Driver: d.Driver, URI: d.URI, User: d.User, Password: d.Password, Charset: cs}
}

// TableOptions returns the table pipeline settings. Write binds use the
// destination character set.
func (c *Config) TableOptions() tables.Options {
	opts := tables.DefaultOptions()
	opts.BufferSize = c.Transfer.BufferSizeMB << 20
	opts.LobChunkSize = c.Transfer.LobChunkSize
	opts.LunaCalc = c.Transfer.LunaCalc
	opts.DataTablespace = c.Transfer.DataTablespace
	opts.IOTMaxRows = c.Transfer.IOTMaxRows
	opts.IOTMaxColumns = c.Transfer.IOTMaxColumns
	if cs, err := oci.ParseCharset(c.Destination.Charset); err == nil {
		opts.BindCharset = cs
	}
	return opts
}

// IndexConfig returns the index builder settings.
func (c *Config) IndexConfig() indexes.Config {
	return indexes.Config{QueueSize: c.Transfer.IndexQueue, Tablespace: c.Transfer.IndexTablespace}
}

// SchemaList returns the configured schemas.
func (c *Config) SchemaList() []schemas.Schema {
	out := make([]schemas.Schema, len(c.Schemas))
	for i, s := range c.Schemas {
		out[i] = schemas.Schema{Name: s.Name, Password: s.Password, AssumeExists: s.AssumeExists, Exclusions: s.Exclusions}
	}
	return out
}

// GenerateDefault writes a commented default configuration file to path.
func GenerateDefault(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(defaultTOML), 0o644)
}

// ToTOML renders c with passwords masked.
func (c *Config) ToTOML() (string, error) {
	masked := *c
	masked.Source.Password = mask(c.Source.Password)
	masked.Destination.Password = mask(c.Destination.Password)
	masked.Archive.SecretKey = mask(c.Archive.SecretKey)
	masked.Notify.SMTPPassword = mask(c.Notify.SMTPPassword)
	masked.Schemas = make([]SchemaConfig, len(c.Schemas))
	for i, s := range c.Schemas {
		s.Password = mask(s.Password)
		masked.Schemas[i] = s
	}
	data, err := toml.Marshal(&masked)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

func envInt(name string, dest *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q is not an integer", name, v)
	}
	*dest = n
	return nil
}

func envBool(name string, dest *bool) {
	if v := os.Getenv(name); v != "" {
		*dest = v == "true" || v == "1"
	}
}

func envString(name string, dest *string) {
	if v := os.Getenv(name); v != "" {
		*dest = v
	}
}

func applyEnv(cfg *Config) error {
	envString("ORACLONE_SOURCE_URI", &cfg.Source.URI)
	envString("ORACLONE_SOURCE_USER", &cfg.Source.User)
	envString("ORACLONE_SOURCE_PASSWORD", &cfg.Source.Password)
	envString("ORACLONE_SOURCE_DRIVER", &cfg.Source.Driver)
	envString("ORACLONE_SOURCE_CHARSET", &cfg.Source.Charset)
	envString("ORACLONE_DESTINATION_URI", &cfg.Destination.URI)
	envString("ORACLONE_DESTINATION_USER", &cfg.Destination.User)
	envString("ORACLONE_DESTINATION_PASSWORD", &cfg.Destination.Password)
	envString("ORACLONE_DESTINATION_DRIVER", &cfg.Destination.Driver)
	envString("ORACLONE_DESTINATION_CHARSET", &cfg.Destination.Charset)

	if err := envInt("ORACLONE_BUFFER_SIZE_MB", &cfg.Transfer.BufferSizeMB); err != nil {
		return err
	}
	if err := envInt("ORACLONE_LOB_CHUNK_SIZE", &cfg.Transfer.LobChunkSize); err != nil {
		return err
	}
	if err := envInt("ORACLONE_LUNA_CALC", &cfg.Transfer.LunaCalc); err != nil {
		return err
	}
	if err := envInt("ORACLONE_INDEX_QUEUE", &cfg.Transfer.IndexQueue); err != nil {
		return err
	}
	envString("ORACLONE_SCHEMAS_FILE", &cfg.SchemasFile)

	envString("ORACLONE_LOG_LEVEL", &cfg.Logging.Level)
	envString("ORACLONE_LOG_FORMAT", &cfg.Logging.Format)
	envString("ORACLONE_LOG_DIR", &cfg.Logging.Dir)

	envBool("ORACLONE_JOURNAL_ENABLED", &cfg.Journal.Enabled)
	envString("ORACLONE_JOURNAL_PATH", &cfg.Journal.Path)

	envBool("ORACLONE_ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	envString("ORACLONE_ARCHIVE_ENDPOINT", &cfg.Archive.Endpoint)
	envString("ORACLONE_ARCHIVE_BUCKET", &cfg.Archive.Bucket)
	envString("ORACLONE_ARCHIVE_ACCESS_KEY", &cfg.Archive.AccessKey)
	envString("ORACLONE_ARCHIVE_SECRET_KEY", &cfg.Archive.SecretKey)
	envBool("ORACLONE_ARCHIVE_USE_SSL", &cfg.Archive.UseSSL)

	envString("ORACLONE_NOTIFY_SNS_TOPIC_ARN", &cfg.Notify.SNSTopicARN)
	envString("ORACLONE_NOTIFY_SNS_REGION", &cfg.Notify.SNSRegion)
	envString("ORACLONE_NOTIFY_SMTP_HOST", &cfg.Notify.SMTPHost)
	if err := envInt("ORACLONE_NOTIFY_SMTP_PORT", &cfg.Notify.SMTPPort); err != nil {
		return err
	}
	envString("ORACLONE_NOTIFY_SMTP_USERNAME", &cfg.Notify.SMTPUsername)
	envString("ORACLONE_NOTIFY_SMTP_PASSWORD", &cfg.Notify.SMTPPassword)
	envString("ORACLONE_NOTIFY_FROM", &cfg.Notify.From)
	if v := os.Getenv("ORACLONE_NOTIFY_TO"); v != "" {
		cfg.Notify.To = strings.Split(v, ",")
	}

	envString("ORACLONE_STATUS_ADDR", &cfg.Status.Addr)
	return nil
}

func applyFlags(cfg *Config, flags map[string]string) {
	if flags == nil {
		return
	}
	if v, ok := flags["source-uri"]; ok && v != "" {
		cfg.Source.URI = v
	}
	if v, ok := flags["destination-uri"]; ok && v != "" {
		cfg.Destination.URI = v
	}
	if v, ok := flags["buffer-size"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transfer.BufferSizeMB = n
		}
	}
	if v, ok := flags["luna-calc"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transfer.LunaCalc = n
		}
	}
	if v, ok := flags["log-dir"]; ok && v != "" {
		cfg.Logging.Dir = v
	}
	if v, ok := flags["status-addr"]; ok && v != "" {
		cfg.Status.Addr = v
	}
}

const defaultTOML = `# oraclone configuration
# Values may be overridden by ORACLONE_* environment variables (a .env file
# next to this one is loaded first) and by command line flags.

[source]
uri = "source-host:1521/ORCL"
user = "system"
password = ""
# driver = "godror"   # or "go-ora"
charset = "WE8ISO8859P1"

[destination]
uri = "destination-host:1521/ORCL"
user = "system"
password = ""
charset = "EE8ISO8859P2"

[transfer]
buffer_size_mb = 16
lob_chunk_size = 1048576
luna_calc = 0
data_tablespace = "DATA"
temp_tablespace = "TEMP"
index_tablespace = "GRAND_INDEX"
index_queue = 600
iot_max_rows = 5000
iot_max_columns = 6

# schemas_file = "config-content.json"

[[schemas]]
name = "APP"
# password = "app"       # defaults to the schema name
# assume_exists = false  # true keeps the user and its stored code
# exclusions = ["AUDIT_LOG"]

[logging]
level = "info"
format = "text"
dir = "."

[journal]
enabled = false
path = "oraclone.db"

[archive]
enabled = false
endpoint = ""
bucket = ""
access_key = ""
secret_key = ""
use_ssl = true
prefix = "oraclone"

[notify]
sns_topic_arn = ""
sns_region = ""
smtp_host = ""
smtp_port = 587
from = ""
to = []

[status]
addr = ""
`
