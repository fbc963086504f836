package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeEnvFile создаёт пустой .env: все значения задаются через t.Setenv.
func writeEnvFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	return path
}

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("API_ID", "12345")
	t.Setenv("API_HASH", "abcdef0123456789")
	t.Setenv("BOT_TOKEN", "123:token")
	t.Setenv("ADMIN_IDS", "1001,1002")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	for _, name := range []string{
		"LOG_LEVEL", "THROTTLE_RPS", "TEST_DC", "STORAGE_DIR", "STATE_FILE",
		"SESSION_FILE", "VALIDATE_TIMEOUT_SEC", "LOG_FILE",
	} {
		t.Setenv(name, "")
	}

	cfg, err := loadConfig(writeEnvFile(t))
	if err != nil {
		t.Fatalf("loadConfig() = %v", err)
	}

	env := cfg.Env
	if env.APIID != 12345 || env.APIHash != "abcdef0123456789" {
		t.Fatalf("credentials not parsed: %+v", env)
	}
	if !reflect.DeepEqual(env.AdminIDs, []int64{1001, 1002}) {
		t.Fatalf("AdminIDs = %v", env.AdminIDs)
	}
	if env.LogLevel != defaultLogLevel {
		t.Fatalf("LogLevel = %q, want default %q", env.LogLevel, defaultLogLevel)
	}
	if env.ThrottleRPS != defaultThrottleRPS {
		t.Fatalf("ThrottleRPS = %d, want default %d", env.ThrottleRPS, defaultThrottleRPS)
	}
	if env.StorageDir != defaultStorageDir || env.StateFile != defaultStateFile || env.SessionFile != defaultSessionFile {
		t.Fatalf("paths not defaulted: %+v", env)
	}
	if env.ValidateTimeoutSec != defaultValidateTimeoutSec {
		t.Fatalf("ValidateTimeoutSec = %d", env.ValidateTimeoutSec)
	}
	if len(cfg.warnings) == 0 {
		t.Fatal("defaults must be reported as warnings")
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("BOT_TOKEN", "")

	if _, err := loadConfig(writeEnvFile(t)); err == nil {
		t.Fatal("loadConfig() must fail without BOT_TOKEN")
	}
}

func TestParseAdminIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    []int64
		wantErr bool
	}{
		{name: "plain list", raw: "1,2,3", want: []int64{1, 2, 3}},
		{name: "spaces and duplicates", raw: " 7 , 7 ,8", want: []int64{7, 8}},
		{name: "empty", raw: "", wantErr: true},
		{name: "only separators", raw: ",,", wantErr: true},
		{name: "not a number", raw: "1,abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseAdminIDs(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseAdminIDs(%q) expected error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAdminIDs(%q) = %v", tt.raw, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseAdminIDs(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	env := EnvConfig{AdminIDs: []int64{10, 20}}
	if !env.IsAdmin(10) || !env.IsAdmin(20) {
		t.Fatal("listed ids must pass the gate")
	}
	if env.IsAdmin(30) {
		t.Fatal("unlisted id must not pass the gate")
	}
}

func TestSanitizeLogLevel(t *testing.T) {
	t.Parallel()

	var warnings []string
	if got := sanitizeLogLevel("WARN", "info", &warnings); got != "warn" {
		t.Fatalf("sanitizeLogLevel(WARN) = %q", got)
	}
	if got := sanitizeLogLevel("loud", "info", &warnings); got != "info" {
		t.Fatalf("sanitizeLogLevel(loud) = %q, want fallback", got)
	}
	if len(warnings) == 0 {
		t.Fatal("invalid level must produce a warning")
	}
}
