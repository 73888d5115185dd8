package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestWriteVersionText(t *testing.T) {
	var buf bytes.Buffer
	info := versionInfo{Version: "v1.2.3", Revision: "0123456789abcdef", Modified: true, GoVersion: "go1.25.0", Platform: "linux/amd64"}
	if err := writeVersion(&buf, info, ""); err != nil {
		t.Fatalf("writeVersion: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"opendosm v1.2.3\n", "commit   0123456789ab+dirty\n", "os       linux/amd64\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "built") {
		t.Errorf("empty build time should be omitted:\n%s", out)
	}
}

func TestWriteVersionJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := writeVersion(&buf, versionInfo{Version: "v1.2.3", Platform: "linux/arm64"}, "jsonl"); err != nil {
		t.Fatalf("writeVersion: %v", err)
	}
	if strings.Count(buf.String(), "\n") != 1 {
		t.Errorf("jsonl should be one line, got %q", buf.String())
	}
	var got versionInfo
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if got.Version != "v1.2.3" || got.Platform != "linux/arm64" {
		t.Errorf("unexpected payload %+v", got)
	}
}
