package report

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	w := NewJSONWriter(&b)

	n, err := w.Write(testSummary(t))
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	out := b.String()
	if n != len(out) {
		t.Errorf("Write() = %d bytes, output has %d", n, len(out))
	}
	if !strings.HasSuffix(out, "\n") {
		t.Error("output should end with a newline")
	}

	var decoded Summary
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.RunID != "0b1f0a51-8b3e-4a1e-9a38-2f0f0d5b9f10" {
		t.Errorf("run ID = %q", decoded.RunID)
	}
	if len(decoded.Snapshot.Nodes) != 4 || len(decoded.Snapshot.Edges) != 3 {
		t.Errorf("graph = %d nodes, %d edges, want 4 and 3",
			len(decoded.Snapshot.Nodes), len(decoded.Snapshot.Edges))
	}

	// Status travels by its stable name.
	if !strings.Contains(out, `"status":"fetched"`) {
		t.Errorf("output missing status names:\n%s", out)
	}
	if !strings.Contains(out, `"failure":"connect-timeout"`) {
		t.Errorf("output missing failure names:\n%s", out)
	}
}

func TestJSONWriterPretty(t *testing.T) {
	t.Parallel()

	var compact, pretty strings.Builder
	if _, err := NewJSONWriter(&compact).Write(testSummary(t)); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONWriter(&pretty, WithPrettyPrint()).Write(testSummary(t)); err != nil {
		t.Fatal(err)
	}

	if !strings.Contains(pretty.String(), "\n  ") {
		t.Error("pretty output is not indented")
	}
	if pretty.Len() <= compact.Len() {
		t.Error("pretty output should be longer than compact output")
	}

	var decoded Summary
	if err := json.Unmarshal([]byte(pretty.String()), &decoded); err != nil {
		t.Fatalf("pretty output is not valid JSON: %v", err)
	}
}
