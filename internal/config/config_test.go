package config

import (
	"encoding/base64"
	"os"
	"strings"
	"testing"

	"github.com/keynest/keynest/internal/audit"
)

// rawTestKey is exactly 32 bytes, usable as a raw master key in tests.
const rawTestKey = "0123456789abcdef0123456789abcdef"

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "keynest",
				Password: "secret",
				Name:     "keynest",
				SSLMode:  "require",
			},
			want: "host=localhost port=5432 user=keynest password=secret dbname=keynest sslmode=require",
		},
		{
			name: "disable ssl mode",
			cfg: DatabaseConfig{
				Host:     "db.example.com",
				Port:     5433,
				User:     "admin",
				Password: "pass",
				Name:     "mydb",
				SSLMode:  "disable",
			},
			want: "host=db.example.com port=5433 user=admin password=pass dbname=mydb sslmode=disable",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "",
				Name:     "dbname",
				SSLMode:  "prefer",
			},
			want: "host=localhost port=5432 user=user password= dbname=dbname sslmode=prefer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetDSN()
			if got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
		{"port 443", ServerConfig{Host: "0.0.0.0", Port: 443}, "0.0.0.0:443"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// EncryptionConfig.MasterKey
// ---------------------------------------------------------------------------

func TestMasterKey(t *testing.T) {
	t.Run("raw 32-byte key", func(t *testing.T) {
		e := EncryptionConfig{Key: rawTestKey}
		key, err := e.MasterKey()
		if err != nil {
			t.Fatalf("MasterKey() error: %v", err)
		}
		if len(key) != 32 {
			t.Errorf("MasterKey() length = %d, want 32", len(key))
		}
	})

	t.Run("base64-encoded key", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte(rawTestKey))
		e := EncryptionConfig{Key: encoded}
		key, err := e.MasterKey()
		if err != nil {
			t.Fatalf("MasterKey() error: %v", err)
		}
		if string(key) != rawTestKey {
			t.Error("MasterKey() did not decode base64 key to expected bytes")
		}
	})

	t.Run("empty key", func(t *testing.T) {
		e := EncryptionConfig{}
		if _, err := e.MasterKey(); err == nil {
			t.Error("MasterKey() expected error for empty key, got nil")
		}
	})

	t.Run("wrong length key", func(t *testing.T) {
		e := EncryptionConfig{Key: "tooshort"}
		if _, err := e.MasterKey(); err == nil {
			t.Error("MasterKey() expected error for 8-byte key, got nil")
		}
	})

	t.Run("base64 of wrong length", func(t *testing.T) {
		encoded := base64.StdEncoding.EncodeToString([]byte("sixteen bytes--!"))
		e := EncryptionConfig{Key: encoded}
		if _, err := e.MasterKey(); err == nil {
			t.Error("MasterKey() expected error for base64 of 16 bytes, got nil")
		}
	})
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "keynest",
			User: "keynest",
		},
		Encryption: EncryptionConfig{Key: rawTestKey},
		Logging:    LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("invalid server port 0", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0, got nil")
		}
	})

	t.Run("invalid server port 70000", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 70000, got nil")
		}
	})

	t.Run("missing base_url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.BaseURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty base_url, got nil")
		}
	})

	t.Run("missing database host", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.Host = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database host, got nil")
		}
	})

	t.Run("missing database name", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.Name = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database name, got nil")
		}
	})

	t.Run("missing database user", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Database.User = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty database user, got nil")
		}
	})

	t.Run("missing encryption key", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Encryption.Key = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing encryption key, got nil")
		}
	})

	t.Run("invalid encryption key length", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Encryption.Key = "short"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for short encryption key, got nil")
		}
	})

	t.Run("tls enabled missing cert_file", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Security.TLS = TLSConfig{Enabled: true, KeyFile: "key.pem"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing tls cert_file, got nil")
		}
	})

	t.Run("tls enabled missing key_file", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Security.TLS = TLSConfig{Enabled: true, CertFile: "cert.pem"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing tls key_file, got nil")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Logging.Level = "verbose"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid log level, got nil")
		}
	})

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})

	t.Run("webhook shipper missing url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Shippers = []audit.ShipperConfig{
			{Enabled: true, Type: "webhook", Webhook: &audit.WebhookConfig{}},
		}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for webhook shipper without url, got nil")
		}
	})

	t.Run("file shipper missing path", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Shippers = []audit.ShipperConfig{
			{Enabled: true, Type: "file", File: &audit.FileConfig{}},
		}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for file shipper without path, got nil")
		}
	})

	t.Run("unknown shipper type", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Shippers = []audit.ShipperConfig{
			{Enabled: true, Type: "carrier-pigeon"},
		}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for unknown shipper type, got nil")
		}
	})

	t.Run("disabled shipper is not validated", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Audit.Shippers = []audit.ShipperConfig{
			{Enabled: false, Type: "carrier-pigeon"},
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error for disabled shipper: %v", err)
		}
	})
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Run("expands set variable", func(t *testing.T) {
		t.Setenv("CONFIG_TEST_VAR", "expanded")
		if got := expandEnv("${CONFIG_TEST_VAR}"); got != "expanded" {
			t.Errorf("expandEnv() = %q, want expanded", got)
		}
	})

	t.Run("plain string passthrough", func(t *testing.T) {
		if got := expandEnv("no-vars-here"); got != "no-vars-here" {
			t.Errorf("expandEnv() = %q, want no-vars-here", got)
		}
	})

	t.Run("empty string passthrough", func(t *testing.T) {
		if got := expandEnv(""); got != "" {
			t.Errorf("expandEnv() = %q, want empty string", got)
		}
	})
}

// ---------------------------------------------------------------------------
// Load – with config file
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_WithConfigFile(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", rawTestKey)
	const content = `
server:
  host: "testhost"
  port: 9999
  base_url: "http://testhost:9999"
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Database.Host != "dbhost" {
		t.Errorf("Database.Host = %q, want dbhost", cfg.Database.Host)
	}
	if cfg.Database.Name != "testdb" {
		t.Errorf("Database.Name = %q, want testdb", cfg.Database.Name)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Encryption.Key != rawTestKey {
		t.Error("Encryption.Key was not read from ENCRYPTION_KEY")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", rawTestKey)
	// Config without server.host or server.port — setDefaults() should fill them in.
	const content = `
server:
  base_url: "http://localhost:8080"
database:
  host: "localhost"
  name: "keynest"
  user: "keynest"
logging:
  level: "info"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("default Database.Port = %d, want 5432", cfg.Database.Port)
	}
	if cfg.Database.SSLMode != "require" {
		t.Errorf("default Database.SSLMode = %q, want require", cfg.Database.SSLMode)
	}
	if !cfg.Audit.Enabled {
		t.Error("default Audit.Enabled = false, want true")
	}
	if cfg.Telemetry.Metrics.PrometheusPort != 9090 {
		t.Errorf("default Telemetry.Metrics.PrometheusPort = %d, want 9090", cfg.Telemetry.Metrics.PrometheusPort)
	}
}

func TestLoad_MissingEncryptionKeyFails(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")
	const content = `
server:
  base_url: "http://localhost:8080"
database:
  host: "localhost"
  name: "keynest"
  user: "keynest"
logging:
  level: "info"
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error when ENCRYPTION_KEY is unset, got nil")
	}
	if !strings.Contains(err.Error(), "ENCRYPTION_KEY") {
		t.Errorf("Load() error = %v, want mention of ENCRYPTION_KEY", err)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", rawTestKey)
	t.Setenv("TEST_DB_PASS", "mysecret")
	const content = `
server:
  port: 8080
  base_url: "http://localhost:8080"
database:
  host: "localhost"
  name: "keynest"
  user: "keynest"
  password: "${TEST_DB_PASS}"
logging:
  level: "info"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}
