package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
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

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return validateData(data), nil
}

func validateData(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if version != SupportedVersion {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersion)
	}

	validateServerStructure(rawConfig, result)
	validateProviderStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)
	validateCallbackStructure(rawConfig, result)
	validateStorageStructure(rawConfig, result)

	return result
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}
	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://app.example.com\"")
	}
	if _, ok := server["addr"]; !ok {
		result.addWarning("server.addr", "addr not set, defaulting to %q", DefaultAddr)
	}
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := rawConfig["provider"].(map[string]any)
	if !ok {
		result.addError("provider", "provider field is required and must be an object")
		return
	}

	if _, ok := provider["publicKey"]; !ok {
		result.addError("provider.publicKey", "publicKey is required. Hint: {\"$env\": \"AUTH_PROVIDER_PUBLIC_KEY\"}")
	}
	if secret, ok := provider["clientSecret"]; ok {
		checkEnvRef(secret, "provider.clientSecret", result)
	}

	kind, _ := provider["kind"].(string)
	switch ProviderKind(kind) {
	case ProviderKindOIDC:
		if _, ok := provider["url"]; ok {
			return
		}
		for _, endpoint := range []string{"authorizationUrl", "tokenUrl", "userInfoUrl"} {
			if _, ok := provider[endpoint]; !ok {
				result.addError("provider."+endpoint, "%s is required for oidc when url is not provided", endpoint)
			}
		}
	case ProviderKindGitHub:
		if _, ok := provider["clientSecret"]; !ok {
			result.addError("provider.clientSecret", "clientSecret is required for github")
		}
	case ProviderKindDev:
		result.addWarning("provider.kind", "the dev provider accepts any login and must not be used in production")
	case "":
		result.addError("provider.kind", "kind is required. Options: oidc, github, dev")
	default:
		result.addError("provider.kind", "unknown provider kind '%s'. Options: oidc, github, dev", kind)
	}
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := rawConfig["session"].(map[string]any)
	if !ok {
		result.addError("session", "session field is required and must be an object")
		return
	}
	key, ok := session["encryptionKey"]
	if !ok {
		result.addError("session.encryptionKey", "encryptionKey is required. Hint: Must be at least %d bytes", MinEncryptionKeyLength)
	} else {
		checkEnvRef(key, "session.encryptionKey", result)
	}
	checkDuration(session, "maxAge", "session.maxAge", result)
	if sameSite, ok := session["sameSite"].(string); ok {
		switch sameSite {
		case "lax":
		case "strict":
			result.addWarning("session.sameSite", "sameSite strict drops the session cookie on links from other sites. The sign-in verifier cookie is always written with lax")
		case "none":
			result.addWarning("session.sameSite", "sameSite none sends the session cookie on cross-site requests")
		default:
			result.addError("session.sameSite", "sameSite must be one of lax, strict, none")
		}
	}
}

func validateCallbackStructure(rawConfig map[string]any, result *ValidationResult) {
	callback, ok := rawConfig["callback"].(map[string]any)
	if !ok {
		return
	}
	checkDuration(callback, "timeout", "callback.timeout", result)
	if require, ok := callback["requireRelativeNext"].(bool); ok && !require {
		result.addWarning("callback.requireRelativeNext", "next is used as the redirect target without validation")
	}
}

func validateStorageStructure(rawConfig map[string]any, result *ValidationResult) {
	storage, ok := rawConfig["storage"].(map[string]any)
	if !ok {
		return
	}
	kind, _ := storage["kind"].(string)
	switch StorageKind(kind) {
	case "", StorageKindMemory:
	case StorageKindFirestore:
		if _, ok := storage["gcpProject"]; !ok {
			result.addError("storage.gcpProject", "gcpProject is required when using firestore storage")
		}
	default:
		result.addError("storage.kind", "unknown storage kind '%s'. Options: memory, firestore", kind)
	}
}

func checkEnvRef(value any, path string, result *ValidationResult) {
	ref, ok := value.(map[string]any)
	if !ok {
		result.addError(path, "secrets must use {\"$env\": \"VAR_NAME\"} format")
		return
	}
	if _, ok := ref["$env"]; !ok {
		result.addError(path, "secrets must use {\"$env\": \"VAR_NAME\"} format")
	}
}

func checkDuration(section map[string]any, key, path string, result *ValidationResult) {
	raw, ok := section[key]
	if !ok {
		return
	}
	s, ok := raw.(string)
	if !ok {
		result.addError(path, "%s must be a duration string like \"30s\"", key)
		return
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration %q: %v", s, err)
		return
	}
	if d < 0 {
		result.addError(path, "%s cannot be negative", key)
	}
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// checkBashStyleSyntax warns about ${VAR} references, which are never expanded
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
