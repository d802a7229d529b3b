package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/pledgebot/utils"
)

// Discord accepts at most ten embeds per message.
const maxEmbedsPerMessage = 10

// MessageSender is the part of the Discord REST client the announcer needs.
type MessageSender interface {
	CreateMessage(channelID snowflake.ID, messageCreate discord.MessageCreate, opts ...rest.RequestOpt) (*discord.Message, error)
}

// Announcer posts committed ledger events to a Discord channel.
type Announcer struct {
	sender    MessageSender
	channelID snowflake.ID
}

var _ ledger.Publisher = (*Announcer)(nil)

func NewAnnouncer(sender MessageSender, channelID snowflake.ID) *Announcer {
	return &Announcer{sender: sender, channelID: channelID}
}

func (a *Announcer) Publish(ctx context.Context, events []ledger.Event) error {
	var embeds []discord.Embed
	for _, ev := range events {
		if embed, ok := announcement(ev); ok {
			embeds = append(embeds, embed)
		}
	}

	for len(embeds) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(len(embeds), maxEmbedsPerMessage)
		_, err := a.sender.CreateMessage(a.channelID, discord.MessageCreate{
			Embeds:          embeds[:n],
			AllowedMentions: &discord.AllowedMentions{},
		}, rest.WithCtx(ctx))
		if err != nil {
			return fmt.Errorf("failed to post announcement: %w", err)
		}
		embeds = embeds[n:]
	}
	return nil
}

// announcement renders the events worth a public post. Per-user bookkeeping
// (beneficiary changes, refunds, claims of winnings) stays quiet.
func announcement(ev ledger.Event) (discord.Embed, bool) {
	b := discord.NewEmbedBuilder().SetTimestamp(ev.OccurredAt)

	switch ev.Type {
	case ledger.EventGoalCreated:
		b.SetTitle(fmt.Sprintf("🎯 New goal #%d", ev.GoalID)).
			SetDescription(fmt.Sprintf("%s staked %s on **%s**, due %s.",
				utils.Mention(ev.Subject), utils.FormatStake(ev.Amount), ev.Description, utils.Timestamp(ev.Deadline, "R"))).
			SetColor(utils.InfoColor)
	case ledger.EventGoalCompleted:
		b.SetTitle(fmt.Sprintf("✅ Goal #%d completed", ev.GoalID)).
			SetDescription(fmt.Sprintf("%s made it!", utils.Mention(ev.Subject))).
			SetColor(utils.SuccessColor)
	case ledger.EventStakeForfeited:
		b.SetTitle(fmt.Sprintf("⌛ Goal #%d forfeited", ev.GoalID)).
			SetDescription(fmt.Sprintf("%s went to %s.", utils.FormatStake(ev.Amount), utils.Mention(ev.Subject))).
			SetColor(utils.WarningColor)
	case ledger.EventChallengeCreated:
		b.SetTitle(fmt.Sprintf("🏁 New challenge #%d", ev.ChallengeID)).
			SetDescription(fmt.Sprintf("**%s**\nEntry fee %s, joining closes %s.",
				ev.Description, utils.FormatStake(ev.Amount), utils.Timestamp(ev.StartTime, "R"))).
			SetColor(utils.InfoColor)
	case ledger.EventChallengeJoined:
		b.SetTitle(fmt.Sprintf("🤝 Challenge #%d", ev.ChallengeID)).
			SetDescription(fmt.Sprintf("%s joined with %s.", utils.Mention(ev.Subject), utils.FormatStake(ev.Amount))).
			SetColor(utils.EmbedDarkColor)
	case ledger.EventChallengeResolved:
		description := fmt.Sprintf("%d winner(s) share %s.", ev.Winners, utils.FormatStake(ev.Amount))
		if ev.Winners == 0 {
			description = "Nobody completed the goal this time."
		}
		b.SetTitle(fmt.Sprintf("🏆 Challenge #%d resolved", ev.ChallengeID)).
			SetDescription(description).
			SetColor(utils.SuccessColor)
	default:
		return discord.Embed{}, false
	}
	return b.Build(), true
}

// LogPublisher writes every event at debug level. It is always installed so the journal is
// visible in local runs without Discord.
func LogPublisher() ledger.Publisher {
	return ledger.PublisherFunc(func(_ context.Context, events []ledger.Event) error {
		for _, ev := range events {
			slog.Debug("Ledger event",
				slog.String("type", "ledger"),
				slog.Uint64("seq", ev.Seq),
				slog.String("event", string(ev.Type)),
				slog.Uint64("goal_id", ev.GoalID),
				slog.Uint64("challenge_id", ev.ChallengeID),
				slog.String("subject", ev.Subject.String()),
				slog.Int64("amount", ev.Amount),
			)
		}
		return nil
	})
}
