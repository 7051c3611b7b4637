package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"
)

// MaxFreshnessSeconds is the largest freshness window a time.Duration holds.
const MaxFreshnessSeconds = math.MaxInt64 / int64(time.Second)

// Config is a parsed wallet configuration document.
//
// The same document shape is accepted at creation time (persisted with the
// wallet descriptor) and at open time (a per-session override).
type Config struct {
	// FreshnessTime is the freshness window in seconds.
	// nil means the document did not carry the field.
	FreshnessTime *int64 `json:"freshness_time,omitempty"`

	// Raw is the document as supplied by the caller.
	Raw string `json:"-"`
}

// ParseConfig parses a configuration document.
//
// An empty string is an empty document. Unknown fields, a non-integer or
// negative or oversized freshness_time, trailing data and malformed JSON are rejected
// with ErrInvalidStructure.
func ParseConfig(raw string) (Config, error) {
	cfg := Config{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return cfg, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, ErrInvalidStructure.WithDetails("config").WithCause(err)
	}
	if err := ensureEOF(dec); err != nil {
		return Config{}, ErrInvalidStructure.WithDetails("config: trailing data").WithCause(err)
	}
	if cfg.FreshnessTime != nil && *cfg.FreshnessTime < 0 {
		return Config{}, ErrInvalidStructure.WithDetails("freshness_time must not be negative")
	}
	if cfg.FreshnessTime != nil && *cfg.FreshnessTime > MaxFreshnessSeconds {
		return Config{}, ErrInvalidStructure.WithDetailsf("freshness_time must not exceed %d", MaxFreshnessSeconds)
	}
	return cfg, nil
}

// IsSet reports whether the document carried a freshness window.
func (c Config) IsSet() bool {
	return c.FreshnessTime != nil
}

// Freshness returns the freshness window. Zero means records never go stale.
func (c Config) Freshness() time.Duration {
	if c.FreshnessTime == nil {
		return 0
	}
	return time.Duration(*c.FreshnessTime) * time.Second
}

// EffectiveFreshness resolves the window used by a session: the open-time
// override when present, otherwise the creation-time value.
func EffectiveFreshness(created, runtime Config) time.Duration {
	if runtime.IsSet() {
		return runtime.Freshness()
	}
	return created.Freshness()
}

// Credentials is a backend-interpreted credentials document.
//
// Key is the passphrase recognised by the native backend. Any other field is
// kept in Raw for the backend to interpret.
type Credentials struct {
	Key string `json:"key,omitempty"`
	Raw string `json:"-"`
}

// ParseCredentials parses a credentials document.
// Unknown fields are allowed; malformed JSON is ErrInvalidStructure.
func ParseCredentials(raw string) (Credentials, error) {
	creds := Credentials{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return creds, nil
	}
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return Credentials{}, ErrInvalidStructure.WithDetails("credentials").WithCause(err)
	}
	return creds, nil
}

// HasKey reports whether the credentials carry a passphrase.
func (c Credentials) HasKey() bool {
	return c.Key != ""
}

// LogValue keeps credentials out of structured logs.
func (c Credentials) LogValue() slog.Value {
	if c.Raw == "" && c.Key == "" {
		return slog.StringValue("")
	}
	return slog.StringValue("[REDACTED]")
}

func ensureEOF(dec *json.Decoder) error {
	var extra json.RawMessage
	err := dec.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return errors.New("unexpected value after document")
	}
	return err
}

// compactJSON normalizes a JSON document for storage. Invalid input is
// returned unchanged.
func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}
