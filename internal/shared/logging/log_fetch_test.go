package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestLog(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestFetchLogBundleCollectsMatches(t *testing.T) {
	logDir := t.TempDir()
	t.Setenv(DefaultLogDirEnv, logDir)
	t.Setenv(DefaultRequestLogDirEnv, logDir)

	logID := "log-abc123"

	writeTestLog(t, filepath.Join(logDir, "service.log"),
		"2026-02-08 01:11:57 [INFO] [SERVICE] [Main] [log_id=log-abc123] lark.go:196 - dispatch started\n"+
			"2026-02-08 01:11:58 [INFO] [SERVICE] [Main] [log_id=log-other] lark.go:197 - unrelated\n")
	writeTestLog(t, filepath.Join(logDir, "requests.jsonl"),
		`{"timestamp":"2026-02-08T01:11:57Z","request_id":"log-abc123:llm-1","log_id":"log-abc123","entry_type":"request","body_bytes":2,"payload":{}}`+"\n")

	bundle := FetchLogBundle(logID, LogFetchOptions{MaxBytes: 1024, MaxEntries: 20})

	if bundle.LogID != logID {
		t.Fatalf("expected log id %s, got %s", logID, bundle.LogID)
	}
	if len(bundle.Text) != 1 || len(bundle.Text[0].Entries) != 1 {
		t.Fatalf("expected exactly one correlated text entry, got %#v", bundle.Text)
	}
	if !strings.Contains(bundle.Text[0].Entries[0], logID) {
		t.Fatalf("expected text match to contain log id, got %q", bundle.Text[0].Entries[0])
	}
	if len(bundle.Requests.Entries) != 1 || !strings.Contains(bundle.Requests.Entries[0], logID) {
		t.Fatalf("expected request log match, got %#v", bundle.Requests)
	}
}

func TestFetchLogBundleEmptyWithoutLogDir(t *testing.T) {
	t.Setenv(DefaultLogDirEnv, "")
	t.Setenv(DefaultRequestLogDirEnv, "")

	bundle := FetchLogBundle("log-none", LogFetchOptions{})
	if len(bundle.Text) != 0 || len(bundle.Requests.Entries) != 0 {
		t.Fatalf("expected empty bundle without a configured log dir, got %#v", bundle)
	}
}

func TestReadLogMatchesScansEntireFile(t *testing.T) {
	var content strings.Builder
	for i := 0; i < 200; i++ {
		content.WriteString(strings.Repeat("x", 100) + " unrelated line\n")
	}
	content.WriteString("important log-deep-scan match\n")
	path := filepath.Join(t.TempDir(), "test.log")
	writeTestLog(t, path, content.String())

	snippet := readLogMatches(path, "log-deep-scan", LogFetchOptions{MaxBytes: 1024, MaxEntries: 50})

	if snippet.Error != "" {
		t.Fatalf("unexpected error: %s", snippet.Error)
	}
	if len(snippet.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snippet.Entries))
	}
	if !strings.Contains(snippet.Entries[0], "log-deep-scan") {
		t.Fatalf("expected match, got: %s", snippet.Entries[0])
	}
}

func TestReadLogMatchesSkipsOversizedLines(t *testing.T) {
	var content strings.Builder
	content.WriteString("first log-size match\n")
	content.WriteString(strings.Repeat("A", 2048) + " log-size oversized\n")
	content.WriteString("third log-size match\n")
	path := filepath.Join(t.TempDir(), "test.log")
	writeTestLog(t, path, content.String())

	snippet := readLogMatches(path, "log-size", LogFetchOptions{MaxBytes: 1 << 20, MaxEntries: 50, MaxLineBytes: 512})

	if snippet.Error != "" {
		t.Fatalf("unexpected error: %s", snippet.Error)
	}
	if len(snippet.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snippet.Entries))
	}
}

func TestMatchesLogIDPrefersStructuredField(t *testing.T) {
	line := `2026-02-08 01:11:57 [INFO] [SERVICE] [Main] [log_id=log-a] lark.go:1 - mentions log-b in message`
	if matchesLogID(line, "log-b") {
		t.Fatalf("expected structured log_id field to win over substring match in message")
	}
	if !matchesLogID(line, "log-a") {
		t.Fatalf("expected structured log_id match")
	}
}

func TestMatchesLogIDFallsBackToSubstringForUnstructuredLines(t *testing.T) {
	if !matchesLogID("panic: something went wrong log-c", "log-c") {
		t.Fatalf("expected substring fallback for unparseable lines")
	}
}
