package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// cliOAuthKey reads locally stored OAuth credentials written by the
// provider's own CLI tool: Codex for openai, Claude Code for anthropic.
// Best-effort: any read or parse failure yields "".
func cliOAuthKey(provider string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	switch provider {
	case "openai":
		return codexAuthKey(filepath.Join(home, ".codex", "auth.json"))
	case "anthropic":
		return claudeCodeKey(filepath.Join(home, ".claude", ".credentials.json"))
	default:
		return ""
	}
}

// codexAuthKey extracts an API key from Codex CLI's auth.json, which may
// carry either a plain OPENAI_API_KEY or an OAuth token set.
func codexAuthKey(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc struct {
		OpenAIAPIKey string `json:"OPENAI_API_KEY"`
		Tokens       struct {
			AccessToken string `json:"access_token"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return ""
	}
	if key := strings.TrimSpace(doc.OpenAIAPIKey); key != "" {
		return key
	}
	return strings.TrimSpace(doc.Tokens.AccessToken)
}

// claudeCodeKey extracts an access token from Claude Code's stored
// credentials.
func claudeCodeKey(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var doc struct {
		ClaudeAiOauth struct {
			AccessToken string `json:"accessToken"`
		} `json:"claudeAiOauth"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return ""
	}
	return strings.TrimSpace(doc.ClaudeAiOauth.AccessToken)
}
