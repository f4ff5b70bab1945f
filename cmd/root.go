package cmd

import (
	"context"
	"net/http"
	"os"
	"time"

	coreconfig "github.com/AzielCF/az-wacloud/core/config"
	coreDB "github.com/AzielCF/az-wacloud/core/database"
	"github.com/AzielCF/az-wacloud/inbox/application"
	threadDomain "github.com/AzielCF/az-wacloud/inbox/domain/thread"
	"github.com/AzielCF/az-wacloud/inbox/repository"
	"github.com/AzielCF/az-wacloud/inbox/usecase"
	"github.com/AzielCF/az-wacloud/infrastructure/valkey"
	"github.com/AzielCF/az-wacloud/integrations/cloudapi"
	"github.com/AzielCF/az-wacloud/pkg/crypto"
	"github.com/AzielCF/az-wacloud/pkg/msgworker"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	cfg *coreconfig.Config

	db       *gorm.DB
	vkClient *valkey.Client
	serverID string

	channelRepo *repository.ChannelGormRepository
	threadRepo  *repository.ThreadGormRepository
	chatRepo    *repository.ChatGormRepository

	directory      *application.Directory
	threadResolver *application.ThreadResolver
	writer         *application.ConversationWriter
	reconciler     *application.StatusReconciler
	processor      *application.Processor
	dispatcher     *application.Dispatcher
	mediaFetcher   *application.MediaFetcher
	channelService *usecase.ChannelService

	webhookPool   *msgworker.Pool
	webhookCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "az-wacloud",
	Short: "Multi-tenant WhatsApp Cloud API gateway",
	Long: `Receives WhatsApp Cloud API webhooks for many business accounts, keeps one
conversation thread per contact and sends agent replies back through the Cloud API.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initApp(cmd)
	},
}

func init() {
	time.Local = time.UTC
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().String("db-driver", "", "database driver: sqlite, postgres or sqlserver")
}

// initApp loads the configuration and builds every shared dependency once.
func initApp(cmd *cobra.Command) error {
	var err error
	cfg, err = coreconfig.LoadConfig()
	if err != nil {
		return err
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.App.Debug = true
	}
	if driver, _ := cmd.Flags().GetString("db-driver"); driver != "" {
		cfg.Database.Driver = driver
	}
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := utils.EnsureDirectories(cfg.Paths.Storages); err != nil {
		return err
	}
	serverID = utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages)

	db, err = coreDB.NewDatabase(cfg)
	if err != nil {
		return err
	}

	channelRepo = repository.NewChannelGormRepository(db)
	threadRepo = repository.NewThreadGormRepository(db)
	chatRepo = repository.NewChatGormRepository(db)

	ctx := context.Background()
	for _, store := range []interface{ Init(context.Context) error }{channelRepo, threadRepo, chatRepo} {
		if err := store.Init(ctx); err != nil {
			return err
		}
	}

	var locker threadDomain.Locker = repository.NoopLocker{}
	if cfg.Database.ValkeyEnabled {
		vkClient, err = valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			// the unique open-thread index still holds without the lock
			logrus.WithError(err).Warn("[VALKEY] Unavailable, thread creation falls back to database uniqueness")
		} else {
			locker = repository.NewValkeyThreadLocker(vkClient, serverID)
			logrus.Infof("[VALKEY] Thread lock enabled on %s as %s", cfg.Database.ValkeyAddress, serverID)
		}
	}

	cipher, err := crypto.NewCipher(cfg.Security.SecretKey)
	if err != nil {
		return err
	}

	api := cloudapi.NewClient(cloudapi.Config{
		BaseURL:    cfg.Whatsapp.GraphURL,
		APIVersion: cfg.Whatsapp.APIVersion,
		Timeout:    cfg.Whatsapp.HTTPTimeout,
	}, &http.Client{Timeout: cfg.Whatsapp.HTTPTimeout})

	directory = application.NewDirectory(channelRepo)
	threadResolver = application.NewThreadResolver(threadRepo, locker).
		UseTransactions(repository.NewGormTransactor(db))
	writer = application.NewConversationWriter(threadResolver, threadRepo, chatRepo)
	reconciler = application.NewStatusReconciler(chatRepo)
	processor = application.NewProcessor(application.NewNormalizer(), directory, writer, reconciler, chatRepo, application.ProcessorConfig{
		VerifyToken: cfg.Whatsapp.VerifyToken,
		AppSecret:   cfg.Whatsapp.AppSecret,
	})
	dispatcher = application.NewDispatcher(directory, cipher, api, writer, reconciler, cfg.Whatsapp.MaxUploadSize)
	mediaFetcher = application.NewMediaFetcher(directory, cipher, api)
	channelService = usecase.NewChannelService(channelRepo, cipher)

	return nil
}

// startWebhookPool starts the pool webhook deliveries are processed on.
func startWebhookPool() *msgworker.Pool {
	var ctx context.Context
	ctx, webhookCancel = context.WithCancel(context.Background())
	webhookPool = msgworker.NewPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize)
	webhookPool.Start(ctx)
	return webhookPool
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// StopApp drains the webhook pool, then releases the stores.
func StopApp() {
	logrus.Info("[APP] Stopping application...")

	if webhookPool != nil {
		webhookCancel()
		webhookPool.Stop()
	}
	if vkClient != nil {
		vkClient.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logrus.WithError(err).Error("[DATABASE] Failed to close connection")
			}
		}
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
