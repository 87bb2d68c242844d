package httpapi

import (
	"reflect"
	"testing"
	"time"
)

func TestConfigValidateDefaults(test *testing.T) {
	test.Parallel()
	cfg := Config{StaticDir: "  ./frontend  "}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("validate: %v", err)
	}
	expected := Config{
		ListenAddr:         ":5000",
		AllowedOrigins:     []string{"*"},
		StaticDir:          "./frontend",
		MaxBodyBytes:       50 << 20,
		LoginRatePerMinute: 10,
		RequestTimeout:     10 * time.Second,
		ShutdownTimeout:    5 * time.Second,
	}
	if !reflect.DeepEqual(cfg, expected) {
		test.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.allowsAllOrigins() {
		test.Fatalf("expected wildcard origin")
	}
}

func TestConfigValidateRejectsNegativeLimits(test *testing.T) {
	test.Parallel()
	testCases := []Config{
		{MaxBodyBytes: -1},
		{LoginRatePerMinute: -5},
	}
	for _, cfg := range testCases {
		if err := cfg.Validate(); err == nil {
			test.Fatalf("expected validation error for %+v", cfg)
		}
	}
}

func TestParseAllowedOrigins(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		raw      string
		expected []string
	}{
		{raw: "", expected: []string{}},
		{raw: "https://manacoffee.co", expected: []string{"https://manacoffee.co"}},
		{raw: " https://a.co , ,https://b.co ", expected: []string{"https://a.co", "https://b.co"}},
	}
	for _, testCase := range testCases {
		if got := ParseAllowedOrigins(testCase.raw); !reflect.DeepEqual(got, testCase.expected) {
			test.Fatalf("ParseAllowedOrigins(%q) = %v, want %v", testCase.raw, got, testCase.expected)
		}
	}
	cfg := Config{AllowedOrigins: ParseAllowedOrigins("https://a.co,https://b.co")}
	if cfg.allowsAllOrigins() {
		test.Fatalf("explicit origins must not allow all")
	}
}
