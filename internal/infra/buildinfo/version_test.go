package buildinfo

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	i := Get()
	if i.Version == "" || i.Commit == "" || i.BuildTime == "" {
		t.Errorf("Get() has empty fields: %+v", i)
	}
	if i.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", i.GoVersion, runtime.Version())
	}
}

func TestString(t *testing.T) {
	i := Get()
	want := i.Version + " (" + i.Commit + ") built at " + i.BuildTime
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestFromBuild_KeepsInjectedValues(t *testing.T) {
	in := Info{Version: "v9.9.9", Commit: "abc123", BuildTime: "2026-01-01"}
	out := fromBuild(in)
	if out.Version != "v9.9.9" || out.Commit != "abc123" || out.BuildTime != "2026-01-01" {
		t.Errorf("fromBuild() overrode injected values: %+v", out)
	}
}

func TestLogValue(t *testing.T) {
	v := Info{Version: "v1", Commit: "c", GoVersion: "go1"}.LogValue()
	var keys []string
	for _, a := range v.Group() {
		keys = append(keys, a.Key)
	}
	if got := strings.Join(keys, ","); got != "version,commit,go" {
		t.Errorf("LogValue keys = %q", got)
	}
}
