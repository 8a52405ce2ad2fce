package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/webhook"
	"github.com/hywave/roll-hub/rollhub/database/models"
)

const (
	colorGold = 0xFFD700
	colorBlue = 0x3498DB
	colorGray = 0x95A5A6
)

// Notifier pushes outward announcements through Discord webhooks. Every send
// is best-effort: failures are logged and never propagated to the caller.
type Notifier struct {
	globalRolls webhook.Client
	adminLog    webhook.Client
}

// New builds a Notifier from webhook URLs. Empty URLs disable the
// corresponding channel.
func New(globalRollURL, adminLogURL string) (*Notifier, error) {
	n := &Notifier{}

	if globalRollURL != "" {
		client, err := webhook.NewWithURL(globalRollURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create global roll webhook: %w", err)
		}
		n.globalRolls = client
	}
	if adminLogURL != "" {
		client, err := webhook.NewWithURL(adminLogURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create admin log webhook: %w", err)
		}
		n.adminLog = client
	}
	return n, nil
}

// AnnounceGlobalRoll publishes a high-value roll to the public feed channel.
func (n *Notifier) AnnounceGlobalRoll(ctx context.Context, event *models.RollEvent, imageURL string) {
	if n == nil || n.globalRolls == nil {
		return
	}

	description := fmt.Sprintf("**%s** rolled **%s** worth %d", event.Username, event.ItemName, event.Value)
	if event.Serial != nil {
		description += fmt.Sprintf(" (serial #%d)", *event.Serial)
	}

	builder := discord.NewEmbedBuilder().
		SetTitle("🎉 Global Roll").
		SetDescription(description).
		SetColor(colorGold).
		SetTimestamp(event.RolledAt)
	if imageURL != "" {
		builder.SetThumbnail(imageURL)
	}

	n.send(ctx, n.globalRolls, "global roll", builder.Build())
}

// AnnounceItemRelease publishes a newly released item to the public feed.
func (n *Notifier) AnnounceItemRelease(ctx context.Context, item *models.Item, imageURL string) {
	if n == nil || n.globalRolls == nil {
		return
	}

	builder := discord.NewEmbedBuilder().
		SetTitle("✨ New Item Released").
		SetDescription(fmt.Sprintf("**%s** — %s", item.Name, item.Description)).
		SetColor(colorBlue).
		AddField("Value", fmt.Sprintf("%d", item.Value), true).
		AddField("Rarity", item.Rarity().String(), true).
		SetTimestamp(time.Now())
	if item.StockMode == models.StockLimited {
		builder.AddField("Stock", fmt.Sprintf("%d", item.TotalStock), true)
	}
	if imageURL != "" {
		builder.SetImage(imageURL)
	}

	n.send(ctx, n.globalRolls, "item release", builder.Build())
}

// AnnounceAdminLog forwards a structured admin action summary to the audit
// channel.
func (n *Notifier) AnnounceAdminLog(ctx context.Context, actor, action, detail string) {
	if n == nil || n.adminLog == nil {
		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("Admin Action").
		SetDescription(detail).
		SetColor(colorGray).
		AddField("Actor", actor, true).
		AddField("Action", action, true).
		SetTimestamp(time.Now()).
		Build()

	n.send(ctx, n.adminLog, "admin log", embed)
}

func (n *Notifier) send(ctx context.Context, client webhook.Client, kind string, embed discord.Embed) {
	if _, err := client.CreateEmbeds([]discord.Embed{embed}, rest.WithCtx(ctx)); err != nil {
		slog.Warn("Webhook delivery failed",
			slog.String("kind", kind),
			slog.Any("error", err))
	}
}
