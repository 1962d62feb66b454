package logging

import (
	"encoding/json"
	"strings"
)

// RequestLogEntry is one line of the JSON-lines request/response audit
// log emitted alongside text logs for outbound calls (registry HTTP,
// LLM helper, embedding helper).
type RequestLogEntry struct {
	Raw       string
	Timestamp string
	RequestID string
	LogID     string
	EntryType string
	BodyBytes int
	Payload   json.RawMessage
}

type requestLogJSON struct {
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"request_id"`
	LogID     string          `json:"log_id"`
	EntryType string          `json:"entry_type"`
	BodyBytes int             `json:"body_bytes"`
	Payload   json.RawMessage `json:"payload"`
}

// parseRequestLogJSON parses one JSON-lines request log record. When
// log_id is absent it is derived from the leading segment of request_id
// (format "<log_id>:<call>").
func parseRequestLogJSON(raw string) (RequestLogEntry, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RequestLogEntry{}, false
	}

	var parsed requestLogJSON
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return RequestLogEntry{}, false
	}

	logID := parsed.LogID
	if logID == "" && parsed.RequestID != "" {
		if idx := strings.Index(parsed.RequestID, ":"); idx > 0 {
			logID = parsed.RequestID[:idx]
		}
	}

	var payload json.RawMessage
	if len(parsed.Payload) > 0 && string(parsed.Payload) != "null" {
		payload = parsed.Payload
	}

	return RequestLogEntry{
		Raw:       raw,
		Timestamp: parsed.Timestamp,
		RequestID: parsed.RequestID,
		LogID:     logID,
		EntryType: parsed.EntryType,
		BodyBytes: parsed.BodyBytes,
		Payload:   payload,
	}, true
}
