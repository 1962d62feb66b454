package logging

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DefaultLogDirEnv names the directory FetchLogBundle scans for text
	// logs (*.log). The broker's Logger writes to stderr and creates no
	// files there itself.
	DefaultLogDirEnv = "DESKBROKER_LOG_DIR"
	// DefaultRequestLogDirEnv names the directory the JSON-lines request
	// audit logs (registry/helper/embedding calls) are written to. Falls
	// back to DefaultLogDirEnv when unset.
	DefaultRequestLogDirEnv = "DESKBROKER_REQUEST_LOG_DIR"

	defaultMaxBytes     = 1 << 20
	defaultMaxEntries   = 400
	defaultMaxLineBytes = 1 << 16
)

// LogFetchOptions bounds how much of a matching log a snippet can carry,
// so a single noisy correlation id can't balloon a diagnostic response.
type LogFetchOptions struct {
	MaxBytes     int
	MaxEntries   int
	MaxLineBytes int
}

func (o LogFetchOptions) withDefaults() LogFetchOptions {
	if o.MaxBytes <= 0 {
		o.MaxBytes = defaultMaxBytes
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = defaultMaxEntries
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = defaultMaxLineBytes
	}
	return o
}

// LogSnippet is the matched portion of one log file, bounded to
// Options.MaxBytes/MaxEntries. Truncated is set when the match set was
// cut off before the file was fully scanned for entries.
type LogSnippet struct {
	File      string   `json:"file"`
	Entries   []string `json:"entries"`
	Truncated bool     `json:"truncated"`
	Error     string   `json:"error,omitempty"`
}

// LogBundle is every log file's matches for one correlation id, returned
// by the local diagnostic endpoint so a developer can see a request's
// full trail (dispatch, tool calls, outbound LLM/embedding/registry
// requests) without shelling into the machine running the broker.
type LogBundle struct {
	LogID    string       `json:"log_id"`
	Text     []LogSnippet `json:"text"`
	Requests LogSnippet   `json:"requests"`
}

// FetchLogBundle scans every text log under DESKBROKER_LOG_DIR and every
// JSON-lines request log under DESKBROKER_REQUEST_LOG_DIR for lines
// correlated with logID, returning one snippet per file. Either
// directory may be unset, in which case that half of the bundle comes
// back empty rather than erroring: a broker run without file logging
// enabled still answers with an empty bundle instead of failing the
// request.
func FetchLogBundle(logID string, opts LogFetchOptions) LogBundle {
	opts = opts.withDefaults()
	bundle := LogBundle{LogID: logID}

	if dir := os.Getenv(DefaultLogDirEnv); dir != "" {
		for _, path := range sortedLogFiles(dir, ".log") {
			bundle.Text = append(bundle.Text, readLogMatches(path, logID, opts))
		}
	}

	reqDir := os.Getenv(DefaultRequestLogDirEnv)
	if reqDir == "" {
		reqDir = os.Getenv(DefaultLogDirEnv)
	}
	if reqDir != "" {
		var combined LogSnippet
		combined.File = reqDir
		for _, path := range sortedLogFiles(reqDir, ".jsonl") {
			snippet := readRequestLogMatches(path, logID, opts)
			combined.Entries = append(combined.Entries, snippet.Entries...)
			combined.Truncated = combined.Truncated || snippet.Truncated
			if snippet.Error != "" {
				combined.Error = snippet.Error
			}
		}
		bundle.Requests = combined
	}

	return bundle
}

func sortedLogFiles(dir, suffix string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths
}

// matchesLogID reports whether line belongs to the correlation id
// needle. Bracketed lines emitted by Logger are parsed structurally so a
// log_id that happens to appear as a substring of an unrelated field
// doesn't produce a false match; lines that don't fit the bracket
// format (external tool output, panics) fall back to a raw substring
// search.
func matchesLogID(line, needle string) bool {
	entry := parseTextLogLine(line)
	if entry.LogID != "" {
		return entry.LogID == needle
	}
	return strings.Contains(line, needle)
}

// readLogMatches scans path line by line for occurrences of needle
// (typically a log_id), returning up to opts.MaxEntries matches whose
// combined size stays under opts.MaxBytes. MaxBytes limits matched
// output, not how much input is read, so a match buried far past the
// byte budget is still found; the scan stops before the end of the file
// only once the match budget is spent, setting Truncated. Zero-valued
// options fall back to the package defaults.
func readLogMatches(path, needle string, opts LogFetchOptions) LogSnippet {
	opts = opts.withDefaults()
	snippet := LogSnippet{File: path}
	f, err := os.Open(path)
	if err != nil {
		snippet.Error = err.Error()
		return snippet
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), opts.MaxLineBytes)

	var size int
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > opts.MaxLineBytes || !matchesLogID(line, needle) {
			continue
		}
		if len(snippet.Entries) >= opts.MaxEntries || size+len(line) > opts.MaxBytes {
			snippet.Truncated = true
			break
		}
		snippet.Entries = append(snippet.Entries, line)
		size += len(line)
	}
	if err := scanner.Err(); err != nil && snippet.Error == "" {
		snippet.Error = err.Error()
	}
	return snippet
}

// readRequestLogMatches is readLogMatches specialised for JSON-lines
// request logs: each matching line is re-parsed with
// parseRequestLogJSON so malformed records are skipped rather than
// returned verbatim.
func readRequestLogMatches(path, logID string, opts LogFetchOptions) LogSnippet {
	raw := readLogMatches(path, logID, opts)
	snippet := LogSnippet{File: raw.File, Truncated: raw.Truncated, Error: raw.Error}
	for _, line := range raw.Entries {
		entry, ok := parseRequestLogJSON(line)
		if !ok || entry.LogID != logID {
			continue
		}
		snippet.Entries = append(snippet.Entries, line)
	}
	return snippet
}
