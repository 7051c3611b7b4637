package domain

import (
	"testing"
	"time"
)

func TestIsStale(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		now    time.Time
		window time.Duration
		want   bool
	}{
		{"no window", base.Add(1000 * time.Hour), 0, false},
		{"within window", base.Add(5 * time.Second), 10 * time.Second, false},
		{"at boundary", base.Add(10 * time.Second), 10 * time.Second, false},
		{"past window", base.Add(11 * time.Second), 10 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStale(base, tt.now, tt.window); got != tt.want {
				t.Errorf("IsStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSequenceKey(t *testing.T) {
	if got := SequenceKey(42); got != "seq_no::42" {
		t.Errorf("SequenceKey(42) = %q", got)
	}
	if !IsSequenceKey(SequenceKey(1)) {
		t.Error("IsSequenceKey should recognise reserved keys")
	}
	if IsSequenceKey("key1") {
		t.Error("IsSequenceKey should reject plain keys")
	}
}

func TestValue_Clone(t *testing.T) {
	v := &Value{Data: []byte("abc"), CreatedAt: time.Unix(10, 0)}
	c := v.Clone()
	c.Data[0] = 'x'
	if string(v.Data) != "abc" {
		t.Error("Clone should not share the underlying buffer")
	}
	if !c.CreatedAt.Equal(v.CreatedAt) {
		t.Error("Clone should keep CreatedAt")
	}
	var nilValue *Value
	if nilValue.Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestNewDescriptor(t *testing.T) {
	now := time.UnixMilli(1700000000000)

	d, err := NewDescriptor("pool1", "wallet1", "", `{ "freshness_time": 10 }`, now)
	if err != nil {
		t.Fatalf("NewDescriptor() error: %v", err)
	}
	if d.Type != DefaultType {
		t.Errorf("Type = %q, want %q", d.Type, DefaultType)
	}
	if !IsValidDescriptorID(d.ID) {
		t.Errorf("ID %q is not a valid descriptor ID", d.ID)
	}
	if d.Config != `{"freshness_time":10}` {
		t.Errorf("Config = %q, want compacted document", d.Config)
	}
	if !d.Created().Equal(now) {
		t.Errorf("Created() = %v, want %v", d.Created(), now)
	}

	cfg, err := d.ParsedConfig()
	if err != nil {
		t.Fatalf("ParsedConfig() error: %v", err)
	}
	if cfg.Freshness() != 10*time.Second {
		t.Errorf("Freshness() = %v, want 10s", cfg.Freshness())
	}
}

func TestIsValidDescriptorID(t *testing.T) {
	id, err := GenerateDescriptorID(time.Now())
	if err != nil {
		t.Fatalf("GenerateDescriptorID() error: %v", err)
	}
	tests := []struct {
		id   string
		want bool
	}{
		{id, true},
		{"wmwl-short", false},
		{"tmss-01an4z07by79ka1307sr9x4mv3", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidDescriptorID(tt.id); got != tt.want {
			t.Errorf("IsValidDescriptorID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
