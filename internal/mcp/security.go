package mcp

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Common sensitive environment variable patterns
var sensitivePatterns = []string{
	"TOKEN",
	"KEY",
	"SECRET",
	"PASSWORD",
	"PAT",
	"CREDENTIAL",
	"AUTH",
}

// Common environment variable mappings for display
var envVarMappings = map[string]string{
	"GITHUB_PERSONAL_ACCESS_TOKEN": "GITHUB_TOKEN",
	"GITHUB_TOKEN":                 "GITHUB_TOKEN",
	"ANTHROPIC_API_KEY":            "ANTHROPIC_KEY",
	"OPENAI_API_KEY":               "OPENAI_KEY",
	"AWS_ACCESS_KEY_ID":            "AWS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY":        "AWS_SECRET_KEY",
}

var bashVarPattern = regexp.MustCompile(`"\$([A-Z_]+[A-Z0-9_]*)"`)

// isSensitiveKey checks if a key contains sensitive patterns
func isSensitiveKey(key string) bool {
	return indexSensitive(strings.ToUpper(key)) >= 0
}

// indexSensitive returns the position of the first sensitive pattern in an
// upper-cased string, or -1. PAT only counts when no letter follows it, so
// PATH and PATTERN stay visible.
func indexSensitive(upper string) int {
	first := -1
	for _, pattern := range sensitivePatterns {
		for offset := 0; offset < len(upper); {
			idx := strings.Index(upper[offset:], pattern)
			if idx < 0 {
				break
			}
			idx += offset
			end := idx + len(pattern)
			if pattern == "PAT" && end < len(upper) && upper[end] >= 'A' && upper[end] <= 'Z' {
				offset = end
				continue
			}
			if first < 0 || idx < first {
				first = idx
			}
			break
		}
	}
	return first
}

func maskValue(value string) string {
	if len(value) == 0 {
		return ""
	}
	return "***"
}

// getBashVariable returns a bash variable name for a known env var, or a generic one
func getBashVariable(key string) string {
	if bashVar, ok := envVarMappings[key]; ok {
		return "$" + bashVar
	}
	return "$" + key
}

// MaskSensitiveArgs masks KEY=VALUE pairs following --env or -e when KEY looks secret.
func MaskSensitiveArgs(args []string) []string {
	masked := make([]string, len(args))
	copy(masked, args)

	for i := 0; i < len(masked); i++ {
		if (masked[i] == "--env" || masked[i] == "-e") && i+1 < len(masked) {
			parts := strings.SplitN(masked[i+1], "=", 2)
			if len(parts) == 2 && isSensitiveKey(parts[0]) {
				masked[i+1] = parts[0] + "=" + maskValue(parts[1])
			}
			i++
		}
	}

	return masked
}

// MaskArguments decodes raw tool arguments for logging, hiding the values
// of secret-looking keys at any depth. Undecodable input is returned as a
// plain string so the log line still shows what arrived.
func MaskArguments(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return string(raw)
	}
	return maskTree(data)
}

func maskTree(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for key, value := range t {
			if s, ok := value.(string); ok && isSensitiveKey(key) {
				out[key] = maskValue(s)
				continue
			}
			out[key] = maskTree(value)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, value := range t {
			out[i] = maskTree(value)
		}
		return out
	default:
		return v
	}
}

// MaskSensitiveJSONPretty renders a client config entry with sensitive env
// values replaced by unquoted bash variables, ready to paste into a shell
// heredoc.
func MaskSensitiveJSONPretty(jsonData []byte, indent string) (string, error) {
	var data map[string]interface{}
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return "", err
	}

	if envMap, ok := data["env"].(map[string]interface{}); ok {
		maskedEnv := make(map[string]interface{})
		for key, value := range envMap {
			if isSensitiveKey(key) {
				maskedEnv[key] = getBashVariable(key)
			} else {
				maskedEnv[key] = value
			}
		}
		data["env"] = maskedEnv
	}

	prettyJSON, err := json.MarshalIndent(data, "", indent)
	if err != nil {
		return "", err
	}

	// Replace "$VAR" with $VAR
	return bashVarPattern.ReplaceAllString(string(prettyJSON), "$$$1"), nil
}

// maskSensitiveOutput masks values after KEY= or KEY: on lines of process output
func maskSensitiveOutput(output string) string {
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		patternIdx := indexSensitive(strings.ToUpper(line))
		if patternIdx < 0 {
			continue
		}
		if idx := strings.IndexAny(line[patternIdx:], "=:"); idx >= 0 {
			actualIdx := patternIdx + idx
			lines[i] = line[:actualIdx+1] + " ***"
		}
	}
	return strings.Join(lines, "\n")
}
