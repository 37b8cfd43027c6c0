package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/testutil"
)

const minimalTOML = `
[source]
uri = "src:1521/ORCL"
user = "system"
password = "manager"

[destination]
uri = "dst:1521/ORCL"
user = "system"
password = "manager"

[[schemas]]
name = "APP"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	testutil.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func valid() *Config {
	cfg := Default()
	cfg.Source.URI, cfg.Source.User = "src:1521/ORCL", "system"
	cfg.Destination.URI, cfg.Destination.User = "dst:1521/ORCL", "system"
	cfg.Schemas = []SchemaConfig{{Name: "APP"}}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	testutil.Equal(t, "godror", cfg.Source.Driver)
	testutil.Equal(t, "WE8ISO8859P1", cfg.Source.Charset)
	testutil.Equal(t, "EE8ISO8859P2", cfg.Destination.Charset)
	testutil.Equal(t, 16, cfg.Transfer.BufferSizeMB)
	testutil.Equal(t, 1<<20, cfg.Transfer.LobChunkSize)
	testutil.Equal(t, 0, cfg.Transfer.LunaCalc)
	testutil.Equal(t, "DATA", cfg.Transfer.DataTablespace)
	testutil.Equal(t, "TEMP", cfg.Transfer.TempTablespace)
	testutil.Equal(t, "GRAND_INDEX", cfg.Transfer.IndexTablespace)
	testutil.Equal(t, 600, cfg.Transfer.IndexQueue)
	testutil.Equal(t, 5000, cfg.Transfer.IOTMaxRows)
	testutil.Equal(t, 6, cfg.Transfer.IOTMaxColumns)
	testutil.Equal(t, "info", cfg.Logging.Level)
	testutil.Equal(t, false, cfg.Journal.Enabled)
	testutil.Equal(t, "", cfg.Status.Addr)
}

func TestDir(t *testing.T) {
	testutil.Equal(t, "", Dir(""))
	testutil.Equal(t, filepath.Join("config", "cds"), Dir("cds"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing source uri", func(c *Config) { c.Source.URI = "" }, "source.uri is required"},
		{"missing destination user", func(c *Config) { c.Destination.User = "" }, "destination.user is required"},
		{"unknown driver", func(c *Config) { c.Source.Driver = "oci8" }, `source.driver must be "godror" or "go-ora", got "oci8"`},
		{"go-ora driver", func(c *Config) { c.Destination.Driver = "go-ora" }, ""},
		{"unknown charset", func(c *Config) { c.Destination.Charset = "KOI8R" }, "destination.charset: unsupported character set"},
		{"zero buffer", func(c *Config) { c.Transfer.BufferSizeMB = 0 }, "transfer.buffer_size_mb must be at least 1, got 0"},
		{"zero lob chunk", func(c *Config) { c.Transfer.LobChunkSize = 0 }, "transfer.lob_chunk_size must be at least 1, got 0"},
		{"negative luna calc", func(c *Config) { c.Transfer.LunaCalc = -1 }, "transfer.luna_calc must be non-negative"},
		{"zero index queue", func(c *Config) { c.Transfer.IndexQueue = 0 }, "transfer.index_queue must be at least 1"},
		{"no data tablespace", func(c *Config) { c.Transfer.DataTablespace = "" }, "transfer.data_tablespace is required"},
		{"no schemas", func(c *Config) { c.Schemas = nil }, "at least one schema is required"},
		{"lower case schema", func(c *Config) { c.Schemas[0].Name = "app" }, `schemas[0].name must be upper case, got "app"`},
		{"duplicate schema", func(c *Config) { c.Schemas = append(c.Schemas, SchemaConfig{Name: "APP"}) }, `schema "APP" is listed twice`},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level must be one of"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, `logging.format must be "text" or "json"`},
		{"journal without path", func(c *Config) { c.Journal.Enabled, c.Journal.Path = true, "" }, "journal.path is required"},
		{"archive without bucket", func(c *Config) {
			c.Archive.Enabled, c.Archive.Endpoint = true, "s3.local:9000"
		}, "archive.bucket is required"},
		{"smtp without recipients", func(c *Config) {
			c.Notify.SMTPHost, c.Notify.From = "mail.local", "dba@example.com"
		}, "notify.to is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				testutil.NoError(t, err)
			} else {
				testutil.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "oraclone.toml", minimalTOML+`
[transfer]
buffer_size_mb = 64
luna_calc = 20240101

[[schemas]]
name = "RPT"
assume_exists = true
exclusions = ["AUDIT_LOG"]
`)
	cfg, err := Load(path, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, 64, cfg.Transfer.BufferSizeMB)
	testutil.Equal(t, 20240101, cfg.Transfer.LunaCalc)
	testutil.Equal(t, 600, cfg.Transfer.IndexQueue)
	testutil.SliceLen(t, cfg.Schemas, 2)
	testutil.True(t, cfg.Schemas[1].AssumeExists)
	testutil.Equal(t, "AUDIT_LOG", cfg.Schemas[1].Exclusions[0])

	opts := cfg.TableOptions()
	testutil.Equal(t, 64<<20, opts.BufferSize)
	testutil.Equal(t, 20240101, opts.LunaCalc)
	testutil.Equal(t, oci.CharsetEE8ISO8859P2, opts.BindCharset)

	idx := cfg.IndexConfig()
	testutil.Equal(t, 600, idx.QueueSize)
	testutil.Equal(t, "GRAND_INDEX", idx.Tablespace)

	addr := cfg.Source.Addr()
	testutil.Equal(t, "src:1521/ORCL", addr.URI)
	testutil.Equal(t, oci.CharsetWE8ISO8859P1, addr.Charset)

	list := cfg.SchemaList()
	testutil.Equal(t, "RPT", list[1].Name)
	testutil.True(t, list[1].AssumeExists)
}

func TestLoadMissingFileFailsValidation(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "oraclone.toml"), nil)
	testutil.ErrorContains(t, err, "source.uri is required")
}

func TestLoadInvalidTOML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "oraclone.toml", "this is not valid toml [[[")
	_, err := Load(path, nil)
	testutil.ErrorContains(t, err, "parsing")
}

func TestLoadSchemasFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config-content.json", `[
  {"name": "APP", "pw": "secret", "exclusions": ["TMP_LOAD"]},
  {"name": "LEGACY", "assumexists": true}
]`)
	path := writeFile(t, dir, "oraclone.toml", "schemas_file = \"config-content.json\"\n"+
		strings.Replace(minimalTOML, "[[schemas]]\nname = \"APP\"\n", "", 1))
	cfg, err := Load(path, nil)
	testutil.NoError(t, err)
	testutil.SliceLen(t, cfg.Schemas, 2)
	testutil.Equal(t, "secret", cfg.Schemas[0].Password)
	testutil.Equal(t, "TMP_LOAD", cfg.Schemas[0].Exclusions[0])
	testutil.False(t, cfg.Schemas[0].AssumeExists)
	testutil.Equal(t, "", cfg.Schemas[1].Password)
	testutil.True(t, cfg.Schemas[1].AssumeExists)
}

func TestLoadSchemasFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSchemasFile(filepath.Join(dir, "missing.json"))
	testutil.ErrorContains(t, err, "reading schemas file")

	bad := writeFile(t, dir, "bad.json", `{"name": "APP"}`)
	_, err = LoadSchemasFile(bad)
	testutil.ErrorContains(t, err, "parsing schemas file")
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, t.TempDir(), "oraclone.toml", minimalTOML)
	t.Setenv("ORACLONE_SOURCE_URI", "env-src:1521/ORCL")
	t.Setenv("ORACLONE_DESTINATION_DRIVER", "go-ora")
	t.Setenv("ORACLONE_BUFFER_SIZE_MB", "32")
	t.Setenv("ORACLONE_NOTIFY_TO", "a@example.com,b@example.com")
	t.Setenv("ORACLONE_JOURNAL_ENABLED", "true")

	cfg, err := Load(path, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, "env-src:1521/ORCL", cfg.Source.URI)
	testutil.Equal(t, "go-ora", cfg.Destination.Driver)
	testutil.Equal(t, 32, cfg.Transfer.BufferSizeMB)
	testutil.SliceLen(t, cfg.Notify.To, 2)
	testutil.True(t, cfg.Journal.Enabled)
}

func TestLoadInvalidEnvInt(t *testing.T) {
	path := writeFile(t, t.TempDir(), "oraclone.toml", minimalTOML)
	t.Setenv("ORACLONE_INDEX_QUEUE", "many")
	_, err := Load(path, nil)
	testutil.ErrorContains(t, err, `invalid value for ORACLONE_INDEX_QUEUE: "many" is not an integer`)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "oraclone.toml", minimalTOML)
	writeFile(t, dir, ".env", "ORACLONE_DESTINATION_PASSWORD=from-dotenv\n")
	// Registered so the variable godotenv sets is removed after the test.
	t.Setenv("ORACLONE_DESTINATION_PASSWORD", "")
	os.Unsetenv("ORACLONE_DESTINATION_PASSWORD")

	cfg, err := Load(path, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, "from-dotenv", cfg.Destination.Password)
}

func TestLoadPriority(t *testing.T) {
	path := writeFile(t, t.TempDir(), "oraclone.toml", minimalTOML+"\n[transfer]\nbuffer_size_mb = 8\n")
	t.Setenv("ORACLONE_BUFFER_SIZE_MB", "24")

	cfg, err := Load(path, map[string]string{"buffer-size": "48", "status-addr": ":9191"})
	testutil.NoError(t, err)
	testutil.Equal(t, 48, cfg.Transfer.BufferSizeMB)
	testutil.Equal(t, ":9191", cfg.Status.Addr)
}

func TestGenerateDefaultLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "cds", DefaultFile)
	testutil.NoError(t, GenerateDefault(path))

	cfg, err := Load(path, nil)
	testutil.NoError(t, err)
	testutil.Equal(t, "APP", cfg.Schemas[0].Name)
	testutil.Equal(t, "GRAND_INDEX", cfg.Transfer.IndexTablespace)
}

func TestToTOMLMasksSecrets(t *testing.T) {
	cfg := valid()
	cfg.Source.Password = "manager"
	cfg.Schemas[0].Password = "secret"

	out, err := cfg.ToTOML()
	testutil.NoError(t, err)
	testutil.False(t, strings.Contains(out, "manager"))
	testutil.False(t, strings.Contains(out, "secret"))
	testutil.Contains(t, out, "********")
	testutil.Equal(t, "secret", cfg.Schemas[0].Password)
}
