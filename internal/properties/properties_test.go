package properties

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	for _, key := range []string{"TERRASCAN_PROVIDER", "TERRASCAN_THRESHOLD", "TERRASCAN_HTTP_ADDR", "TERRASCAN_CACHE", "ROOT_PATH"} {
		t.Setenv(key, "")
	}
	if Provider() != "sentinel" {
		t.Fatalf("unexpected provider %q", Provider())
	}
	if DefaultThreshold() != 0.2 {
		t.Fatalf("unexpected threshold %v", DefaultThreshold())
	}
	if HTTPAddr() != ":8080" {
		t.Fatalf("unexpected addr %q", HTTPAddr())
	}
	if !CacheEnabled() {
		t.Fatalf("cache should default to enabled")
	}
	if DataPath("cache") != filepath.Join(".", "data", "cache") {
		t.Fatalf("unexpected data path %q", DataPath("cache"))
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("TERRASCAN_THRESHOLD", "0.35")
	t.Setenv("TERRASCAN_CACHE", "false")
	t.Setenv("COPERNICUS_CLIENT_ID", "a, b,,c")
	if DefaultThreshold() != 0.35 {
		t.Fatalf("unexpected threshold %v", DefaultThreshold())
	}
	if CacheEnabled() {
		t.Fatalf("cache should be disabled")
	}
	ids := CopernicusClientIDs()
	if len(ids) != 3 || ids[1] != "b" {
		t.Fatalf("unexpected client ids %v", ids)
	}
}

func TestDefaultDateRange(t *testing.T) {
	now := time.Date(2025, 10, 11, 0, 0, 0, 0, time.UTC)
	t.Setenv("TERRASCAN_START_DATE", "")
	t.Setenv("TERRASCAN_END_DATE", "")
	start, end := DefaultDateRange(now)
	if !end.Equal(now) || !start.Equal(now.AddDate(0, 0, -90)) {
		t.Fatalf("unexpected range %v..%v", start, end)
	}

	t.Setenv("TERRASCAN_START_DATE", "2025-07-01")
	start, _ = DefaultDateRange(now)
	if start.Format(dateLayout) != "2025-07-01" {
		t.Fatalf("unexpected start %v", start)
	}
}

func TestLoadEnvFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TERRASCAN_TEST_VALUE=loaded\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TERRASCAN_TEST_VALUE") })

	if err := LoadEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if os.Getenv("TERRASCAN_TEST_VALUE") != "loaded" {
		t.Fatalf("env file was not loaded")
	}
	if err := LoadEnv(filepath.Join(dir, "missing.env")); err == nil {
		t.Fatalf("expected error when no file exists")
	}
}
