package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	AppVersion             = "v1.4.0"
	AppPort                = "3000"
	AppDebug               = false
	AppBasicAuthCredential []string
	AppBasePath            = ""
	AppTrustedProxies      []string

	PathStorages = "storages"

	DBURI = "file:storages/zapdesk.db?_foreign_keys=on"

	// Messaging provider (Z-API compatible)
	ProviderName        = "zapi"
	ProviderBaseURL     = ""
	ProviderClientToken = ""
	ProviderSenderName  = "Ana Mônica"

	// Operations group that receives new-protocol notifications
	NotifyGroupID = ""

	// Identifier normalization
	CountryCode = "55"

	// AI settings
	AIProvider     = "openai" // openai | gemini
	AIAPIKey       = ""
	AIModel        = "gpt-4o-mini"
	AITimezone     = "America/Recife"
	AISystemPrompt = ""

	// Reply orchestration
	LockBackend          = "gorm" // gorm | valkey
	ValkeyAddr           = ""
	LockTTL              = 40 * time.Second
	AntiRepetitionWindow = 120 * time.Second
	RecentProtocolWindow = 5 * time.Minute
	RetryProtocolBudget  = 3
	AutoOpenMinTurns     = 4
	HistoryLimit         = 10

	// Reply worker pool; 0 workers runs the orchestrator inline with
	// the webhook request.
	ReplyWorkers   = 0
	ReplyQueueSize = 100

	ServerID = ""
)

func init() {
	if v := strings.TrimSpace(os.Getenv("COUNTRY_CODE")); v != "" {
		CountryCode = v
	}
	if v := strings.TrimSpace(os.Getenv("AI_SYSTEM_PROMPT")); v != "" {
		AISystemPrompt = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCK_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			LockTTL = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(os.Getenv("RETRY_PROTOCOL_BUDGET")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			RetryProtocolBudget = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("AUTO_OPEN_MIN_TURNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			AutoOpenMinTurns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("NOTIFY_GROUP_ID")); v != "" {
		NotifyGroupID = v
	}
	if v := strings.TrimSpace(os.Getenv("REPLY_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			ReplyWorkers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REPLY_QUEUE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ReplyQueueSize = n
		}
	}
	ServerID = strings.TrimSpace(os.Getenv("SERVER_ID"))
}
