package config

import (
	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables that may
// override them, in priority order.
var envBindings = map[string][]string{
	"api.base_url":  {"NARWHAL_API_URL", "CHALLENGE_API_URL"},
	"api.key":       {"NARWHAL_API_KEY", "CHALLENGE_API_KEY"},
	"llm.provider":  {"NARWHAL_LLM_PROVIDER"},
	"llm.model":     {"NARWHAL_LLM_MODEL", "SCOUT_MODEL", "OPENAI_MODEL"},
	"llm.base_url":  {"NARWHAL_LLM_BASE_URL", "SCOUT_BASE_URL", "MOONSHOT_BASE_URL", "OPENAI_BASE_URL"},
	"llm.api_key":   {"NARWHAL_LLM_API_KEY", "SCOUT_API_KEY", "MOONSHOT_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"},
	"mqtt.broker":   {"NARWHAL_MQTT_BROKER"},
	"mqtt.password": {"NARWHAL_MQTT_PASSWORD"},
	"logging.level": {"NARWHAL_LOG_LEVEL"},
}

// ApplyEnv overlays environment variables onto cfg. Secrets are expected to
// come from here rather than from the campaign file.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	for key, names := range envBindings {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}

	set := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}

	set("api.base_url", &cfg.API.BaseURL)
	set("api.key", &cfg.API.Key)
	set("llm.provider", &cfg.LLM.Provider)
	set("llm.model", &cfg.LLM.Model)
	set("llm.base_url", &cfg.LLM.BaseURL)
	set("llm.api_key", &cfg.LLM.APIKey)
	set("mqtt.broker", &cfg.MQTT.Broker)
	set("mqtt.password", &cfg.MQTT.Password)
	set("logging.level", &cfg.Logging.Level)
}
