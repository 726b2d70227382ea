package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/zapdesk/zapdesk/botengine"
	"github.com/zapdesk/zapdesk/botengine/providers"
	globalConfig "github.com/zapdesk/zapdesk/config"
	"github.com/zapdesk/zapdesk/core/database"
	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	infraChatStorage "github.com/zapdesk/zapdesk/infrastructure/chatstorage"
	infraProtocol "github.com/zapdesk/zapdesk/infrastructure/protocol"
	"github.com/zapdesk/zapdesk/infrastructure/valkey"
	"github.com/zapdesk/zapdesk/integrations/zapi"
	"github.com/zapdesk/zapdesk/pkg/msgworker"
	"github.com/zapdesk/zapdesk/pkg/utils"
	"github.com/zapdesk/zapdesk/ui/rest"
	"github.com/zapdesk/zapdesk/ui/rest/middleware"
	"github.com/zapdesk/zapdesk/usecase"
	"gorm.io/gorm"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Receive provider webhooks over http",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	ctx := context.Background()

	if err := utils.CreateFolder(globalConfig.PathStorages); err != nil {
		logrus.Fatalf("[REST] cannot create storage folder: %v", err)
	}

	db, err := database.NewDatabase()
	if err != nil {
		logrus.Fatalf("[REST] cannot open database: %v", err)
	}

	chatStorageRepo := infraChatStorage.NewStorageRepository(db)
	if err := chatStorageRepo.Init(ctx); err != nil {
		logrus.Fatalf("[REST] chat storage migration failed: %v", err)
	}

	protocolRepo := infraProtocol.NewGormRepository(db)
	if err := protocolRepo.Init(ctx); err != nil {
		logrus.Fatalf("[REST] protocol migration failed: %v", err)
	}

	locker := buildLocker(ctx, db)

	provider := zapi.NewClient(globalConfig.ProviderBaseURL, globalConfig.ProviderClientToken)

	var aiProvider botengine.AIProvider
	switch globalConfig.AIProvider {
	case "gemini":
		aiProvider = providers.NewGeminiProvider(globalConfig.AIAPIKey)
	default:
		aiProvider = providers.NewOpenAIProvider(globalConfig.AIAPIKey)
	}

	owner := utils.GetPersistentServerID(globalConfig.ServerID, globalConfig.PathStorages)

	sendUsecase := usecase.NewSendService(chatStorageRepo, provider)
	protocolUsecase := usecase.NewProtocolService(protocolRepo, chatStorageRepo, provider)
	engine := botengine.NewEngine(chatStorageRepo, locker, aiProvider, protocolUsecase, sendUsecase, owner)

	var replyPool *msgworker.ReplyPool
	if globalConfig.ReplyWorkers > 0 {
		replyPool = msgworker.NewReplyPool(globalConfig.ReplyWorkers, globalConfig.ReplyQueueSize)
		replyPool.Start(ctx)
	}

	ingestUsecase := usecase.NewIngestService(chatStorageRepo, engine, replyPool)

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		Network:                 "tcp",
		AppName:                 "Zapdesk Inbox Engine",
		ServerHeader:            "Hidden",
	}
	if len(globalConfig.AppTrustedProxies) > 0 {
		fiberConfig.TrustedProxies = globalConfig.AppTrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedHost
	}

	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Backfill, X-Request-ID",
	}))
	app.Use(middleware.Recovery())

	if globalConfig.AppDebug {
		app.Use(logger.New())
	}

	// Basic auth protects the API surface only. The webhook route stays
	// open: the provider cannot attach credentials to its callbacks.
	if len(globalConfig.AppBasicAuthCredential) > 0 {
		account := make(map[string]string)
		for _, credential := range globalConfig.AppBasicAuthCredential {
			ba := strings.Split(credential, ":")
			if len(ba) != 2 {
				logrus.Fatalln("Basic auth is not valid, please use the format <user>:<secret>")
			}
			account[ba[0]] = ba[1]
		}
		app.Use(globalConfig.AppBasePath+"/api", basicauth.New(basicauth.Config{Users: account}))
	}

	root := app.Group(globalConfig.AppBasePath)
	rest.InitRestWebhook(root, ingestUsecase)
	rest.InitRestHealth(root, db)

	// Graceful shutdown handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		if replyPool != nil {
			replyPool.Stop()
		}
	}()

	if err := app.Listen(":" + globalConfig.AppPort); err != nil {
		logrus.Fatalf("[REST] server stopped: %v", err)
	}
}

// buildLocker selects the conversation lock backend. The gorm table is
// the default; valkey serves deployments with more than one replica
// behind the same webhook.
func buildLocker(ctx context.Context, db *gorm.DB) domainChatStorage.IConversationLocker {
	if globalConfig.LockBackend == "valkey" {
		client, err := valkey.NewClient(valkey.Config{
			Address:   globalConfig.ValkeyAddr,
			KeyPrefix: "zapdesk",
		})
		if err != nil {
			logrus.Fatalf("[REST] cannot connect to valkey at %s: %v", globalConfig.ValkeyAddr, err)
		}
		logrus.Info("[REST] conversation locks backed by valkey")
		return infraChatStorage.NewValkeyLocker(client)
	}

	locker := infraChatStorage.NewGormLocker(db)
	if err := locker.Init(ctx); err != nil {
		logrus.Fatalf("[REST] lock table migration failed: %v", err)
	}
	return locker
}
