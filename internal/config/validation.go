package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

var bashStyleRef = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("invalid JSON: %v", err),
		})
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("version field is required. Hint: Add \"version\": %q", ConfigVersion),
		})
	} else if version != ConfigVersion {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "version",
			Message: fmt.Sprintf("unsupported version '%s' - use '%s'", version, ConfigVersion),
		})
	}

	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "server",
			Message: "server field is required and must be an object",
		})
	} else if _, ok := server["baseURL"]; !ok {
		result.Errors = append(result.Errors, ValidationError{
			Path:    "server.baseURL",
			Message: "baseURL is required",
		})
	}

	_, hasDecap := rawConfig["decap"]
	_, hasWebhook := rawConfig["webhook"]
	if !hasDecap && !hasWebhook {
		result.Errors = append(result.Errors, ValidationError{
			Message: "at least one of decap or webhook must be configured",
		})
	}

	for section, fields := range secretFields {
		sectionMap, ok := rawConfig[section].(map[string]any)
		if !ok {
			continue
		}
		for _, field := range fields {
			value, exists := sectionMap[field]
			if !exists {
				result.Warnings = append(result.Warnings, ValidationError{
					Path:    section + "." + field,
					Message: "not configured",
				})
				continue
			}
			if verr := validateEnvVarReference(value, section+"."+field); verr != nil {
				result.Errors = append(result.Errors, *verr)
			}
		}
	}

	if decap, ok := rawConfig["decap"].(map[string]any); ok {
		if provider, ok := decap["provider"].(string); ok && provider != ProviderGitHub && provider != ProviderGitLab {
			result.Errors = append(result.Errors, ValidationError{
				Path:    "decap.provider",
				Message: fmt.Sprintf("unknown provider '%s' - use '%s' or '%s'", provider, ProviderGitHub, ProviderGitLab),
			})
		}
		if storage, ok := decap["storage"].(string); ok && StorageKind(storage) == StorageFirestore {
			if _, ok := decap["gcpProject"]; !ok {
				result.Errors = append(result.Errors, ValidationError{
					Path:    "decap.gcpProject",
					Message: "gcpProject is required when using firestore storage",
				})
			}
		}
	}

	return result, nil
}

// validateEnvVarReference requires value, when present, to be {"$env": "NAME"}
func validateEnvVarReference(value any, path string) *ValidationError {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference for security. Hint: {\"$env\": \"VAR_NAME\"}", path),
		}
	case map[string]any:
		name, ok := v["$env"].(string)
		if !ok || name == "" {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"VAR_NAME\"} format", path),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s has unsupported type %T", path, value),
		}
	}
}

// checkBashStyleSyntax flags "$VAR" strings, which are never expanded
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		if bashStyleRef.MatchString(v) {
			result.Errors = append(result.Errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style variable '%s' which is not expanded. Hint: use {\"$env\": \"NAME\"}", v),
			})
		}
	case map[string]any:
		for key, item := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			checkBashStyleSyntax(item, childPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
