package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AzielCF/az-wacloud/ui/rest"
	"github.com/AzielCF/az-wacloud/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Serve the webhook receiver and the REST API",
	RunE:  restServer,
}

func init() {
	restCmd.Flags().StringP("port", "p", "", "HTTP port, overrides APP_PORT")
	restCmd.Flags().String("basic-auth", "", "basic auth for /api (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) error {
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.App.Port = port
	}
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}

	if len(cfg.App.BasicAuth) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}
	account := make(map[string]string)
	for _, basicAuth := range cfg.App.BasicAuth {
		user, secret, ok := strings.Cut(basicAuth, ":")
		if !ok || user == "" {
			logrus.Fatalln("Basic auth is not valid, please use the format <user>:<secret>")
		}
		account[user] = secret
	}

	fiberConfig := fiber.Config{
		EnableTrustedProxyCheck: true,
		// multipart overhead on top of the media itself
		BodyLimit:             int(cfg.Whatsapp.MaxUploadSize) + 1024*1024,
		Network:               "tcp",
		AppName:               "az-wacloud",
		DisableStartupMessage: !cfg.App.Debug,
		ServerHeader:          "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}

	app := fiber.New(fiberConfig)
	app.Use(requestid.New())
	app.Use(middleware.Recovery())
	app.Use(helmet.New())
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	pool := startWebhookPool()
	base := app.Group(cfg.App.BasePath)

	// the provider calls the webhook; it carries no basic auth
	rest.InitRestWebhook(base, processor, pool)

	apiGroup := base.Group("/api")
	apiGroup.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: account,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
	}))

	rest.InitRestChannel(apiGroup, channelService, directory)
	rest.InitRestThread(apiGroup, threadResolver, chatRepo)
	rest.InitRestSend(apiGroup, dispatcher, cfg.Whatsapp.MaxUploadSize)
	rest.InitRestMedia(apiGroup, mediaFetcher)
	rest.InitRestWorkerPool(apiGroup, pool)
	rest.InitRestHealth(apiGroup, db, vkClient, cfg.GetAllSettings())

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	logrus.Infof("[REST] Listening on :%s (server %s)", cfg.App.Port, serverID)
	err := app.Listen(":" + cfg.App.Port)
	StopApp()
	return err
}
