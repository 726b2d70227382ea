package cmd

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	globalConfig "github.com/zapdesk/zapdesk/config"
	"github.com/zapdesk/zapdesk/pkg/utils"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zapdesk",
	Short: "WhatsApp support inbox engine",
	Long: `Zapdesk receives provider webhooks, resolves contact identity,
stores the conversation history and replies through the tiered
orchestrator. Run the "rest" subcommand to start the HTTP server.`,
}

func init() {
	// Load environment variables first
	utils.LoadConfig(".")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig)
}

// initEnvConfig loads configuration from environment variables
func initEnvConfig() {
	if envPort := viper.GetString("app_port"); envPort != "" {
		globalConfig.AppPort = envPort
	}
	if viper.GetBool("app_debug") {
		globalConfig.AppDebug = true
	}
	if envBasicAuth := viper.GetString("app_basic_auth"); envBasicAuth != "" {
		globalConfig.AppBasicAuthCredential = strings.Split(envBasicAuth, ",")
	}
	if envBasePath := viper.GetString("app_base_path"); envBasePath != "" {
		globalConfig.AppBasePath = envBasePath
	}
	if envTrustedProxies := viper.GetString("app_trusted_proxies"); envTrustedProxies != "" {
		globalConfig.AppTrustedProxies = strings.Split(envTrustedProxies, ",")
	}

	// Database settings
	if envDBURI := viper.GetString("db_uri"); envDBURI != "" {
		globalConfig.DBURI = envDBURI
	}

	// Messaging provider settings
	if envBaseURL := viper.GetString("provider_base_url"); envBaseURL != "" {
		globalConfig.ProviderBaseURL = envBaseURL
	}
	if envClientToken := viper.GetString("provider_client_token"); envClientToken != "" {
		globalConfig.ProviderClientToken = envClientToken
	}
	if envSenderName := viper.GetString("provider_sender_name"); envSenderName != "" {
		globalConfig.ProviderSenderName = envSenderName
	}

	// AI settings
	if envAIProvider := viper.GetString("ai_provider"); envAIProvider != "" {
		globalConfig.AIProvider = envAIProvider
	}
	if envAIAPIKey := viper.GetString("ai_api_key"); envAIAPIKey != "" {
		globalConfig.AIAPIKey = envAIAPIKey
	}
	if envAIModel := viper.GetString("ai_model"); envAIModel != "" {
		globalConfig.AIModel = envAIModel
	}
	if envAITimezone := viper.GetString("ai_timezone"); envAITimezone != "" {
		globalConfig.AITimezone = envAITimezone
	}

	// Lock backend settings
	if envLockBackend := viper.GetString("lock_backend"); envLockBackend != "" {
		globalConfig.LockBackend = envLockBackend
	}
	if envValkeyAddr := viper.GetString("valkey_addr"); envValkeyAddr != "" {
		globalConfig.ValkeyAddr = envValkeyAddr
	}
}

func initFlags() {
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.AppPort,
		"port", "p",
		globalConfig.AppPort,
		"change port number with --port <number> | example: --port=8080",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&globalConfig.AppDebug,
		"debug", "d",
		globalConfig.AppDebug,
		"hide or displaying log with --debug <true/false> | example: --debug=true",
	)
	rootCmd.PersistentFlags().StringSliceVarP(
		&globalConfig.AppBasicAuthCredential,
		"basic-auth", "b",
		globalConfig.AppBasicAuthCredential,
		"basic auth credential | -b=yourUsername:yourPassword",
	)
	rootCmd.PersistentFlags().StringVarP(
		&globalConfig.DBURI,
		"db-uri", "",
		globalConfig.DBURI,
		`the database uri to store the application data | --db-uri="file:storages/zapdesk.db?_foreign_keys=on"`,
	)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Fatalln(err)
	}
}
