package errors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, the cause and details are included.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	de, ok := As(err)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: ")
	sb.WriteString(de.Message)
	sb.WriteString("\n")

	if de.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(de.Suggestion)
		sb.WriteString("\n")
	}

	if debug {
		for _, k := range sortedKeys(de.Details) {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, de.Details[k]))
		}
		if de.Cause != nil {
			sb.WriteString(fmt.Sprintf("  cause: %v\n", de.Cause))
		}
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", de.Code))
	return sb.String()
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	de, ok := As(err)
	if !ok {
		de = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", de.Message))
	if path, ok := de.Details["path"]; ok && path != "" {
		sb.WriteString(fmt.Sprintf("  Path: %s\n", path))
	}
	if de.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", de.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", de.Code))

	return sb.String()
}

type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	de, ok := As(err)
	if !ok {
		de = Wrap(ErrCodeInternal, err)
	}

	je := jsonError{
		Code:       de.Code,
		Message:    de.Message,
		Category:   string(de.Category),
		Severity:   string(de.Severity),
		Details:    de.Details,
		Suggestion: de.Suggestion,
		Retryable:  de.Retryable,
	}
	if de.Cause != nil {
		je.Cause = de.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	de, ok := As(err)
	if !ok {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": de.Code,
		"message":    de.Message,
		"category":   string(de.Category),
		"severity":   string(de.Severity),
		"retryable":  de.Retryable,
	}
	if de.Cause != nil {
		result["cause"] = de.Cause.Error()
	}
	for k, v := range de.Details {
		result["detail_"+k] = v
	}

	return result
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
