package commands

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/internal/domain/meta"
	"github.com/goalpledge/pledgebot/pledgebot"
	"github.com/goalpledge/pledgebot/pledgebot/handlers"
	"github.com/goalpledge/pledgebot/pledgebot/utils"
)

const openChallengesShown = 50

var ChallengeCommand = discord.SlashCommandCreate{
	Name:        "challenge",
	Description: "Pool stakes with others, winners split the pot",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "create",
			Description: "Open a new challenge",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "description",
					Description: "What the challenge is about",
					Required:    true,
					MaxLength:   intPtr(280),
				},
				discord.ApplicationCommandOptionString{
					Name:        "goal",
					Description: "What every participant must achieve",
					Required:    true,
					MaxLength:   intPtr(280),
				},
				discord.ApplicationCommandOptionString{
					Name:        "entry_fee",
					Description: "Stake per participant in USDC",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "start",
					Description: "When joining closes: 1d, 12h or 2025-07-01 09:00 (UTC)",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "deadline",
					Description: "When the challenge ends, counted from now: 8d or 2025-07-08 09:00 (UTC)",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "title",
					Description: "Short display title",
					MaxLength:   intPtr(80),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "join",
			Description: "Join a challenge and lock its entry fee",
			Options:     []discord.ApplicationCommandOption{idOption("Challenge id")},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "complete",
			Description: "Mark the challenge goal as achieved",
			Options:     []discord.ApplicationCommandOption{idOption("Challenge id")},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "resolve",
			Description: "Settle a challenge after its deadline",
			Options:     []discord.ApplicationCommandOption{idOption("Challenge id")},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "claim",
			Description: "Claim your winnings from a resolved challenge",
			Options:     []discord.ApplicationCommandOption{idOption("Challenge id")},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "info",
			Description: "Show a challenge and its participants",
			Options:     []discord.ApplicationCommandOption{idOption("Challenge id")},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List open challenges, or the ones you joined",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionBool{
					Name:        "mine",
					Description: "Only challenges you joined",
				},
			},
		},
	},
}

type ChallengeHandler struct {
	b *pledgebot.Bot
}

func NewChallengeHandler(b *pledgebot.Bot) *ChallengeHandler {
	return &ChallengeHandler{b: b}
}

func (h *ChallengeHandler) Register(r handler.Router) {
	r.Route("/challenge", func(r handler.Router) {
		r.Command("/create", handlers.WrapWithLogging("challenge create", h.HandleCreate))
		r.Command("/join", handlers.WrapWithLogging("challenge join", h.HandleJoin))
		r.Command("/complete", handlers.WrapWithLogging("challenge complete", h.HandleComplete))
		r.Command("/resolve", handlers.WrapWithLogging("challenge resolve", h.HandleResolve))
		r.Command("/claim", handlers.WrapWithLogging("challenge claim", h.HandleClaim))
		r.Command("/info", handlers.WrapWithLogging("challenge info", h.HandleInfo))
		r.Command("/list", handlers.WrapWithLogging("challenge list", h.HandleList))
		r.Component("/join/{id}", handlers.WrapComponentWithLogging("challenge join button", h.HandleJoinButton))
	})
}

func joinButton(id uint64) discord.ContainerComponent {
	return discord.NewActionRow(
		discord.NewPrimaryButton("Join", fmt.Sprintf("/challenge/join/%d", id)),
	)
}

func (h *ChallengeHandler) HandleCreate(e *handler.CommandEvent) error {
	data := e.SlashCommandInteractionData()
	now := time.Now()

	fee, err := utils.ParseUSDC(data.String("entry_fee"))
	if err != nil {
		return respondUserError(e, "Invalid entry fee: %v", err)
	}
	start, err := utils.ParseDeadline(data.String("start"), now)
	if err != nil {
		return respondUserError(e, "Invalid start: %v", err)
	}
	deadline, err := utils.ParseDeadline(data.String("deadline"), now)
	if err != nil {
		return respondUserError(e, "Invalid deadline: %v", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	description := data.String("description")
	id, err := h.b.Processor.CreateChallenge(ctx, caller(e), description, fee, start, deadline, data.String("goal"))
	if err != nil {
		return respondError(e, err)
	}

	if title := strings.TrimSpace(data.String("title")); title != "" {
		if _, err := h.b.Meta.Upsert(ctx, meta.KindChallenge, id, meta.Entry{Title: title}); err != nil {
			slog.Warn("Failed to store challenge title",
				slog.String("type", "cmd"),
				slog.Uint64("challenge_id", id),
				slog.Any("error", err))
		}
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{successEmbed(
			fmt.Sprintf("🏁 Challenge #%d created", id),
			fmt.Sprintf("**%s**\nGoal: %s\nEntry fee: %s\nJoin before %s, ends %s.\nThe creator joins like everyone else.",
				description, data.String("goal"), utils.FormatStake(fee), utils.Timestamp(start, "f"), utils.Timestamp(deadline, "f")),
		)},
		Components: []discord.ContainerComponent{joinButton(id)},
	})
}

func (h *ChallengeHandler) HandleJoin(e *handler.CommandEvent) error {
	id := recordID(e.SlashCommandInteractionData(), "id")

	ctx, cancel := commandContext()
	defer cancel()

	if err := h.b.Processor.JoinChallenge(ctx, id, caller(e)); err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, h.joinedEmbed(id))
}

func (h *ChallengeHandler) HandleJoinButton(e *handler.ComponentEvent) error {
	id, err := strconv.ParseUint(e.Vars["id"], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid challenge id %q: %w", e.Vars["id"], err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	if err := h.b.Processor.JoinChallenge(ctx, id, ledger.Address(e.User().ID.String())); err != nil {
		t, msg := classify(err)
		if sendErr := e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{errorEmbed(t, msg)},
			Flags:  discord.MessageFlagEphemeral,
		}); sendErr != nil {
			return sendErr
		}
		if t == SystemError {
			return err
		}
		return nil
	}
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{h.joinedEmbed(id)},
		Flags:  discord.MessageFlagEphemeral,
	})
}

func (h *ChallengeHandler) joinedEmbed(id uint64) discord.Embed {
	return successEmbed(
		fmt.Sprintf("🤝 Joined challenge #%d", id),
		fmt.Sprintf("Your entry fee is locked. Once the challenge starts, use `/challenge complete id:%d` when you hit the goal.", id),
	)
}

func (h *ChallengeHandler) HandleComplete(e *handler.CommandEvent) error {
	id := recordID(e.SlashCommandInteractionData(), "id")

	ctx, cancel := commandContext()
	defer cancel()

	if err := h.b.Processor.MarkChallengeComplete(ctx, id, caller(e)); err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, successEmbed(
		fmt.Sprintf("✅ Challenge #%d goal achieved", id),
		"You are on the winners' list once the challenge is resolved.",
	))
}

func (h *ChallengeHandler) HandleResolve(e *handler.CommandEvent) error {
	id := recordID(e.SlashCommandInteractionData(), "id")

	ctx, cancel := commandContext()
	defer cancel()

	payout, err := h.b.Processor.ResolveChallenge(ctx, id, caller(e))
	if err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, payoutEmbed(id, payout))
}

func payoutEmbed(id uint64, p ledger.Payout) discord.Embed {
	var description strings.Builder
	fmt.Fprintf(&description, "Pool: %s\nWinners: %d\n", utils.FormatStake(p.Pool), p.Winners)
	switch {
	case p.Winners > 0:
		description.WriteString("\n**Winnings** (claim with `/challenge claim`)\n")
		for _, s := range p.Shares {
			fmt.Fprintf(&description, "%s • %s\n", utils.Mention(s.User), utils.FormatStake(s.Amount))
		}
	case p.Refund:
		description.WriteString("\nNobody completed the goal, every stake was refunded.\n")
	case p.Treasury > 0:
		fmt.Fprintf(&description, "\nNobody completed the goal, %s went to the treasury.\n", utils.FormatStake(p.Treasury))
	case p.Stranded > 0:
		fmt.Fprintf(&description, "\nNobody completed the goal, %s stays in escrow.\n", utils.FormatStake(p.Stranded))
	}

	return discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("🏆 Challenge #%d resolved", id)).
		SetDescription(description.String()).
		SetColor(utils.SuccessColor).
		SetTimestamp(time.Now()).
		Build()
}

func (h *ChallengeHandler) HandleClaim(e *handler.CommandEvent) error {
	id := recordID(e.SlashCommandInteractionData(), "id")

	ctx, cancel := commandContext()
	defer cancel()

	transfer, err := h.b.Processor.ClaimChallengeWinnings(ctx, id, caller(e))
	if err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, successEmbed(
		fmt.Sprintf("💰 Challenge #%d winnings claimed", id),
		fmt.Sprintf("%s released to %s.", utils.FormatStake(transfer.Amount), utils.Mention(transfer.To)),
	))
}

func (h *ChallengeHandler) HandleInfo(e *handler.CommandEvent) error {
	id := recordID(e.SlashCommandInteractionData(), "id")

	ctx, cancel := commandContext()
	defer cancel()

	c, err := h.b.Query.GetChallenge(ctx, id)
	if err != nil {
		return respondError(e, err)
	}
	participants, err := h.b.Query.GetChallengeParticipants(ctx, id)
	if err != nil {
		return respondError(e, err)
	}

	now := h.b.Query.Now()
	msg := discord.MessageCreate{
		Embeds: []discord.Embed{challengeEmbed(c, participants, h.b.Meta.Get(ctx, meta.KindChallenge, id), now)},
	}
	if ledger.CanJoinChallenge(c, now) {
		msg.Components = []discord.ContainerComponent{joinButton(id)}
	}
	return e.CreateMessage(msg)
}

const maxListedParticipants = 20

func challengeEmbed(c ledger.Challenge, participants []ledger.Participant, entry meta.Entry, now time.Time) discord.Embed {
	title := fmt.Sprintf("Challenge #%d", c.ID)
	if entry.Title != "" {
		title = fmt.Sprintf("Challenge #%d: %s", c.ID, entry.Title)
	}

	var roster strings.Builder
	for i, p := range participants {
		if i == maxListedParticipants {
			fmt.Fprintf(&roster, "…and %d more\n", len(participants)-i)
			break
		}
		mark := "⬜"
		if p.Completed {
			mark = "✅"
		}
		line := fmt.Sprintf("%s %s", mark, utils.Mention(p.User))
		if c.Resolved && p.Payout > 0 {
			line += " • " + utils.FormatStake(p.Payout)
			if p.Claimed {
				line += " (claimed)"
			}
		}
		roster.WriteString(line + "\n")
	}
	if roster.Len() == 0 {
		roster.WriteString("Nobody joined yet")
	}

	description := c.Description + "\n**Goal:** " + c.Goal
	if entry.Notes != "" {
		description += "\n\n" + entry.Notes
	}

	builder := discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(description).
		AddField("Phase", utils.ChallengePhaseLabel(ledger.ChallengePhaseOf(c, now)), true).
		AddField("Entry fee", utils.FormatStake(c.EntryFee), true).
		AddField("Pool", utils.FormatStake(c.Pool()), true).
		AddField("Starts", utils.Timestamp(c.StartTime, "f"), true).
		AddField("Ends", utils.Timestamp(c.Deadline, "f"), true).
		AddField("Creator", utils.Mention(c.Creator), true).
		AddField(fmt.Sprintf("Participants (%d)", c.TotalParticipants), roster.String(), false).
		SetColor(utils.EmbedDarkColor)
	if c.Resolved {
		builder.AddField("Winners", strconv.Itoa(c.Winners), true)
	}
	return builder.Build()
}

func (h *ChallengeHandler) HandleList(e *handler.CommandEvent) error {
	mine := e.SlashCommandInteractionData().Bool("mine")
	user := caller(e)

	ctx, cancel := commandContext()
	defer cancel()

	var (
		challenges []ledger.Challenge
		title      string
	)
	if mine {
		title = "🏁 Your challenges"
		ids, err := h.b.Query.GetUserChallenges(ctx, user)
		if err != nil {
			return respondError(e, err)
		}
		for i := len(ids) - 1; i >= 0; i-- {
			c, err := h.b.Query.GetChallenge(ctx, ids[i])
			if err != nil {
				return respondError(e, err)
			}
			challenges = append(challenges, c)
		}
	} else {
		title = "🟢 Open challenges"
		var err error
		challenges, err = h.b.Query.OpenChallenges(ctx, user, openChallengesShown)
		if err != nil {
			return respondError(e, err)
		}
	}

	if len(challenges) == 0 {
		return respondEmbed(e, discord.NewEmbedBuilder().
			SetDescription("No challenges here yet. Start one with `/challenge create`.").
			SetColor(utils.InfoColor).
			Build())
	}

	ids := make([]uint64, len(challenges))
	for i, c := range challenges {
		ids[i] = c.ID
	}
	entries := h.b.Meta.GetMany(ctx, meta.KindChallenge, ids)
	now := h.b.Query.Now()

	totalPages := (len(challenges) + utils.ItemsPerPage - 1) / utils.ItemsPerPage
	return h.b.Paginator.Create(e.Respond, paginator.Pages{
		ID:      e.ID().String(),
		Creator: e.User().ID,
		PageFunc: func(page int, embed *discord.EmbedBuilder) {
			start := page * utils.ItemsPerPage
			end := min(start+utils.ItemsPerPage, len(challenges))

			var description strings.Builder
			for _, c := range challenges[start:end] {
				label := c.Description
				if t := entries[c.ID].Title; t != "" {
					label = t
				}
				fmt.Fprintf(&description, "**#%d** %s\n%s • fee %s • %d joined • starts %s\n\n",
					c.ID, label, utils.ChallengePhaseLabel(ledger.ChallengePhaseOf(c, now)),
					utils.FormatStake(c.EntryFee), c.TotalParticipants, utils.Timestamp(c.StartTime, "R"))
			}

			embed.
				SetTitle(title).
				SetDescription(description.String()).
				SetColor(utils.EmbedDarkColor).
				SetFooter(fmt.Sprintf("Page %d/%d • %d challenges", page+1, totalPages, len(challenges)), "")
		},
		Pages:      totalPages,
		ExpireMode: paginator.ExpireModeAfterLastUsage,
	}, false)
}
