package mcp

import (
	"context"
	"fmt"
	"slices"

	"github.com/AzielCF/az-wacloud/inbox/application"
	channelDomain "github.com/AzielCF/az-wacloud/inbox/domain/channel"
	"github.com/AzielCF/az-wacloud/inbox/domain/outbound"
	"github.com/AzielCF/az-wacloud/inbox/usecase"
	"github.com/AzielCF/az-wacloud/pkg/utils"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// InboxHandler exposes threads and outbound messaging to agents.
type InboxHandler struct {
	resolver   *application.ThreadResolver
	dispatcher *application.Dispatcher
	directory  *application.Directory
	channels   *usecase.ChannelService
}

func InitMcpInbox(resolver *application.ThreadResolver, dispatcher *application.Dispatcher, directory *application.Directory, channels *usecase.ChannelService) *InboxHandler {
	return &InboxHandler{
		resolver:   resolver,
		dispatcher: dispatcher,
		directory:  directory,
		channels:   channels,
	}
}

func (h *InboxHandler) AddInboxTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolResolveThread(), h.handleResolveThread)
	mcpServer.AddTool(h.toolSendText(), h.handleSendText)
	mcpServer.AddTool(h.toolMarkRead(), h.handleMarkRead)
	mcpServer.AddTool(h.toolListChannels(), h.handleListChannels)
}

func (h *InboxHandler) toolResolveThread() mcp.Tool {
	return mcp.NewTool(
		"whatsapp_resolve_thread",
		mcp.WithDescription("Find the latest conversation thread between a WhatsApp Business Account and a contact."),
		mcp.WithTitleAnnotation("Resolve Thread"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("wa_business_id",
			mcp.Description("The WhatsApp Business Account id."),
			mcp.Required(),
		),
		mcp.WithString("contact_wa_id",
			mcp.Description("The contact phone number in international format."),
			mcp.Required(),
		),
	)
}

func (h *InboxHandler) handleResolveThread(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	waba, err := request.RequireString("wa_business_id")
	if err != nil {
		return nil, err
	}
	contact, err := request.RequireString("contact_wa_id")
	if err != nil {
		return nil, err
	}
	utils.SanitizePhone(&contact)

	th, err := h.resolver.Resolve(ctx, waba, contact)
	if err != nil {
		return nil, err
	}
	if th == nil {
		return mcp.NewToolResultText(fmt.Sprintf("No thread found for %s on %s", contact, waba)), nil
	}

	fallback := fmt.Sprintf("Thread %s is %s with %d unread messages", th.ID, th.Status, th.UnreadCount)
	return mcp.NewToolResultStructured(th, fallback), nil
}

func (h *InboxHandler) toolSendText() mcp.Tool {
	return mcp.NewTool(
		"whatsapp_send_text",
		mcp.WithDescription("Send a text message to a contact through a WhatsApp Business Account."),
		mcp.WithTitleAnnotation("Send Text Message"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("wa_business_id",
			mcp.Description("The WhatsApp Business Account to send from."),
			mcp.Required(),
		),
		mcp.WithString("to",
			mcp.Description("Recipient phone number in international format."),
			mcp.Required(),
		),
		mcp.WithString("text",
			mcp.Description("Message body, up to 4096 characters."),
			mcp.Required(),
		),
		mcp.WithString("reply_to",
			mcp.Description("Optional wamid of the message being replied to."),
		),
		mcp.WithString("agent_id",
			mcp.Description("Optional id of the agent sending the message."),
		),
	)
}

func (h *InboxHandler) handleSendText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	waba, err := request.RequireString("wa_business_id")
	if err != nil {
		return nil, err
	}
	to, err := request.RequireString("to")
	if err != nil {
		return nil, err
	}
	text, err := request.RequireString("text")
	if err != nil {
		return nil, err
	}

	res, err := h.dispatcher.SendText(ctx, outbound.SendTextRequest{
		WaBusinessID: waba,
		To:           to,
		Text:         text,
		ReplyTo:      request.GetString("reply_to", ""),
		Agent:        outbound.Agent{ID: request.GetString("agent_id", "")},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fallback := fmt.Sprintf("Message sent with wamid %s", res.Wamid)
	return mcp.NewToolResultStructured(res, fallback), nil
}

func (h *InboxHandler) toolMarkRead() mcp.Tool {
	return mcp.NewTool(
		"whatsapp_mark_read",
		mcp.WithDescription("Send a read receipt for an inbound message and mark the thread history read up to it."),
		mcp.WithTitleAnnotation("Mark Read"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("wa_business_id",
			mcp.Description("The WhatsApp Business Account that received the message."),
			mcp.Required(),
		),
		mcp.WithString("wamid",
			mcp.Description("The WhatsApp message id to acknowledge."),
			mcp.Required(),
		),
	)
}

func (h *InboxHandler) handleMarkRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	waba, err := request.RequireString("wa_business_id")
	if err != nil {
		return nil, err
	}
	wamid, err := request.RequireString("wamid")
	if err != nil {
		return nil, err
	}

	res, err := h.dispatcher.SendReadReceipt(ctx, outbound.ReadReceiptRequest{WaBusinessID: waba, Wamid: wamid})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fallback := fmt.Sprintf("Read receipt sent, %d local messages marked read", res.MarkedLocal)
	return mcp.NewToolResultStructured(res, fallback), nil
}

func (h *InboxHandler) toolListChannels() mcp.Tool {
	return mcp.NewTool(
		"whatsapp_list_channels",
		mcp.WithDescription("List channels and their WhatsApp Business Accounts. With channel_id and participant_id, list only the accounts that participant may use."),
		mcp.WithTitleAnnotation("List Channels"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("channel_id",
			mcp.Description("Optional channel id to filter by participant."),
		),
		mcp.WithString("participant_id",
			mcp.Description("Optional participant (agent) id."),
		),
	)
}

func (h *InboxHandler) handleListChannels(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channelID := request.GetString("channel_id", "")
	participantID := request.GetString("participant_id", "")

	if channelID != "" && participantID != "" {
		configs, err := h.directory.ResolveByParticipant(ctx, channelID, participantID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultStructured(configs, fmt.Sprintf("Found %d accounts for %s", len(configs), participantID)), nil
	}

	channels, err := h.channels.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultStructured(channelSummaries(channels), fmt.Sprintf("Found %d channels", len(channels))), nil
}

type channelSummary struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Active        bool     `json:"active"`
	WaBusinessIDs []string `json:"wa_business_ids"`
}

func channelSummaries(channels []channelDomain.Channel) []channelSummary {
	out := make([]channelSummary, 0, len(channels))
	for _, ch := range channels {
		s := channelSummary{ID: ch.ID, Name: ch.Name, Active: ch.Active, WaBusinessIDs: []string{}}
		for waba := range ch.WaConfigs {
			s.WaBusinessIDs = append(s.WaBusinessIDs, waba)
		}
		slices.Sort(s.WaBusinessIDs)
		out = append(out, s)
	}
	return out
}
