package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the enhancer process configuration, read from environment
// variables.
type Config struct {
	TelegramAPIBase      string
	Timeout              int
	SleepSeconds         int
	DropPending          bool
	PendingWindowSeconds int64
	PendingMaxMessages   int

	HistoryCapacity int
	RolesPath       string
	DBPath          string

	OpenAIAPIKey      string
	OpenAIChatCompURL string
	OpenAIModel       string

	ModelProvider        string
	Commander            string
	DummyProviderScript  string
	DummyCommanderScript string
	DummySendScript      string
}

// Load reads configuration from environment variables, validating that the
// selected providers have their credentials present.
func Load() (Config, error) {
	modelProvider := envOrDefault("ENHANCER_MODEL_PROVIDER", "openai")
	chatCommander := envOrDefault("ENHANCER_COMMANDER", "telegram")

	telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if chatCommander == "telegram" && telegramToken == "" {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN is required in environment when ENHANCER_COMMANDER=telegram")
	}
	openaiKey := os.Getenv("OPENAI_API_KEY")
	if modelProvider == "openai" && openaiKey == "" {
		return Config{}, fmt.Errorf("OPENAI_API_KEY is required in environment when ENHANCER_MODEL_PROVIDER=openai")
	}

	return Config{
		TelegramAPIBase:      fmt.Sprintf("https://api.telegram.org/bot%s", telegramToken),
		Timeout:              envIntOrDefault("TG_TIMEOUT", 30),
		SleepSeconds:         envIntOrDefault("TG_SLEEP_SECONDS", 1),
		DropPending:          envBoolOrDefault("TG_DROP_PENDING", true),
		PendingWindowSeconds: int64(envIntOrDefault("TG_PENDING_WINDOW_SECONDS", 600)),
		PendingMaxMessages:   envIntOrDefault("TG_PENDING_MAX_MESSAGES", 50),
		HistoryCapacity:      envIntOrDefault("ENHANCER_HISTORY_CAPACITY", 10),
		RolesPath:            envOrDefault("ENHANCER_ROLES_PATH", "common_res/roles.yaml"),
		DBPath:               envOrDefault("ENHANCER_DB_PATH", "./enhancer.db"),
		OpenAIAPIKey:         openaiKey,
		OpenAIChatCompURL:    envOrDefault("OPENAI_CHAT_COMPLETIONS_URL", "https://api.openai.com/v1/chat/completions"),
		OpenAIModel:          envOrDefault("OPENAI_MODEL", "gpt-4o-2024-08-06"),
		ModelProvider:        modelProvider,
		Commander:            chatCommander,
		DummyProviderScript:  envOrDefault("ENHANCER_DUMMY_PROVIDER_SCRIPT", "ok"),
		DummyCommanderScript: envOrDefault("ENHANCER_DUMMY_COMMANDER_SCRIPT", "ok"),
		DummySendScript:      envOrDefault("ENHANCER_DUMMY_COMMANDER_SEND_SCRIPT", "ok"),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
