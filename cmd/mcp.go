package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AzielCF/az-wacloud/ui/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the inbox MCP server using SSE",
	Long:  `Start an MCP (Model Context Protocol) server over Server-Sent Events so AI agents can read threads and reply through the WhatsApp Cloud API.`,
	RunE:  mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("port", "", "port for the SSE MCP server, overrides MCP_PORT")
	mcpCmd.Flags().String("host", "", "host for the SSE MCP server, overrides MCP_HOST")
}

func mcpServer(cmd *cobra.Command, _ []string) error {
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.MCP.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.MCP.Host = host
	}

	mcpServer := server.NewMCPServer(
		"WhatsApp Cloud Inbox MCP Server",
		cfg.App.Version,
		server.WithToolCapabilities(true),
	)

	inboxHandler := mcp.InitMcpInbox(threadResolver, dispatcher, directory, channelService)
	inboxHandler.AddInboxTools(mcpServer)

	baseURL := fmt.Sprintf("http://%s:%s", cfg.MCP.Host, cfg.MCP.Port)
	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(baseURL),
		server.WithKeepAlive(true),
	)

	addr := fmt.Sprintf("%s:%s", cfg.MCP.Host, cfg.MCP.Port)
	logrus.Printf("Starting inbox MCP SSE server on %s", addr)
	logrus.Printf("SSE endpoint: %s/sse", baseURL)
	logrus.Printf("Message endpoint: %s/message", baseURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		StopApp()
		os.Exit(0)
	}()

	if err := sseServer.Start(addr); err != nil {
		return fmt.Errorf("failed to start SSE server: %w", err)
	}
	return nil
}
