package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
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

var GoalCommand = discord.SlashCommandCreate{
	Name:        "goal",
	Description: "Stake USDC on a personal goal",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "create",
			Description: "Lock a stake until you complete the goal",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:         "description",
					Description:  "What you commit to (start typing for templates)",
					Required:     true,
					MaxLength:    intPtr(280),
					Autocomplete: true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "amount",
					Description: "Stake in USDC, e.g. 25 or 12.5",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "deadline",
					Description: "7d, 36h, 1w2d or 2025-07-01 18:00 (UTC)",
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
			Name:        "complete",
			Description: "Mark your goal as completed before its deadline",
			Options:     []discord.ApplicationCommandOption{idOption("Goal id")},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "claim",
			Description: "Withdraw the stake of a completed goal",
			Options: []discord.ApplicationCommandOption{
				idOption("Goal id"),
				discord.ApplicationCommandOptionUser{
					Name:        "to",
					Description: "Send the stake to someone else",
				},
				discord.ApplicationCommandOptionString{
					Name:        "address",
					Description: "Send the stake to an external address",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "forfeit",
			Description: "Forfeit a missed goal to its owner's beneficiary or the treasury",
			Options:     []discord.ApplicationCommandOption{idOption("Goal id")},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "info",
			Description: "Show a goal",
			Options:     []discord.ApplicationCommandOption{idOption("Goal id")},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List goals and the total pledged",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "Whose goals to list (defaults to you)",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "templates",
			Description: "Get started with a goal template",
		},
	},
}

type GoalHandler struct {
	b *pledgebot.Bot
}

func NewGoalHandler(b *pledgebot.Bot) *GoalHandler {
	return &GoalHandler{b: b}
}

func (h *GoalHandler) Register(r handler.Router) {
	r.Route("/goal", func(r handler.Router) {
		r.Command("/create", handlers.WrapWithLogging("goal create", h.HandleCreate))
		r.Autocomplete("/create", h.HandleTemplateAutocomplete)
		r.Command("/complete", handlers.WrapWithLogging("goal complete", h.HandleComplete))
		r.Command("/claim", handlers.WrapWithLogging("goal claim", h.HandleClaim))
		r.Command("/forfeit", handlers.WrapWithLogging("goal forfeit", h.HandleForfeit))
		r.Command("/info", handlers.WrapWithLogging("goal info", h.HandleInfo))
		r.Command("/list", handlers.WrapWithLogging("goal list", h.HandleList))
		r.Command("/templates", handlers.WrapWithLogging("goal templates", h.HandleTemplates))
	})
}

func (h *GoalHandler) HandleCreate(e *handler.CommandEvent) error {
	data := e.SlashCommandInteractionData()

	amount, err := utils.ParseUSDC(data.String("amount"))
	if err != nil {
		return respondUserError(e, "Invalid amount: %v", err)
	}
	deadline, err := utils.ParseDeadline(data.String("deadline"), time.Now())
	if err != nil {
		return respondUserError(e, "%v", err)
	}

	ctx, cancel := commandContext()
	defer cancel()

	description := data.String("description")
	id, err := h.b.Processor.CreateGoal(ctx, caller(e), amount, deadline, description)
	if err != nil {
		return respondError(e, err)
	}

	title := strings.TrimSpace(data.String("title"))
	if title != "" {
		if _, err := h.b.Meta.Upsert(ctx, meta.KindGoal, id, meta.Entry{Title: title}); err != nil {
			slog.Warn("Failed to store goal title",
				slog.String("type", "cmd"),
				slog.Uint64("goal_id", id),
				slog.Any("error", err))
		}
	}

	return respondEmbed(e, successEmbed(
		fmt.Sprintf("🎯 Goal #%d created", id),
		fmt.Sprintf("**%s**\n%s locked until %s (%s).\nMark it complete with `/goal complete id:%d` before the deadline to get it back.",
			description, utils.FormatStake(amount), utils.Timestamp(deadline, "f"), utils.Timestamp(deadline, "R"), id),
	))
}

func (h *GoalHandler) HandleComplete(e *handler.CommandEvent) error {
	id := recordID(e.SlashCommandInteractionData(), "id")

	ctx, cancel := commandContext()
	defer cancel()

	if err := h.b.Processor.MarkGoalComplete(ctx, id, caller(e)); err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, successEmbed(
		fmt.Sprintf("✅ Goal #%d completed", id),
		fmt.Sprintf("Well done! Claim your stake with `/goal claim id:%d`.", id),
	))
}

func (h *GoalHandler) HandleClaim(e *handler.CommandEvent) error {
	data := e.SlashCommandInteractionData()
	id := recordID(data, "id")

	ctx, cancel := commandContext()
	defer cancel()

	transfer, err := h.b.Processor.ClaimGoal(ctx, id, caller(e), target(data, "to", "address"))
	if err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, successEmbed(
		fmt.Sprintf("💸 Goal #%d claimed", id),
		fmt.Sprintf("%s released to %s.", utils.FormatStake(transfer.Amount), utils.Mention(transfer.To)),
	))
}

func (h *GoalHandler) HandleForfeit(e *handler.CommandEvent) error {
	id := recordID(e.SlashCommandInteractionData(), "id")

	ctx, cancel := commandContext()
	defer cancel()

	transfer, err := h.b.Processor.ForfeitGoal(ctx, id, caller(e))
	if err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("⌛ Goal #%d forfeited", id)).
		SetDescription(fmt.Sprintf("%s sent to %s.", utils.FormatStake(transfer.Amount), utils.Mention(transfer.To))).
		SetColor(utils.WarningColor).
		SetTimestamp(time.Now()).
		Build())
}

func (h *GoalHandler) HandleInfo(e *handler.CommandEvent) error {
	id := recordID(e.SlashCommandInteractionData(), "id")

	ctx, cancel := commandContext()
	defer cancel()

	g, err := h.b.Query.GetGoal(ctx, id)
	if err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, goalEmbed(g, h.b.Meta.Get(ctx, meta.KindGoal, id), h.b.Query.Now()))
}

func goalEmbed(g ledger.Goal, entry meta.Entry, now time.Time) discord.Embed {
	status := ledger.GoalStatusOf(g, now)

	title := fmt.Sprintf("Goal #%d", g.ID)
	if entry.Title != "" {
		title = fmt.Sprintf("Goal #%d: %s", g.ID, entry.Title)
	}
	description := g.Description
	if entry.Notes != "" {
		description += "\n\n" + entry.Notes
	}

	return discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(description).
		AddField("Owner", utils.Mention(g.Owner), true).
		AddField("Stake", utils.FormatStake(g.Amount), true).
		AddField("Status", utils.GoalStatusLabel(status), true).
		AddField("Deadline", fmt.Sprintf("%s (%s)", utils.Timestamp(g.Deadline, "f"), utils.Timestamp(g.Deadline, "R")), false).
		SetColor(utils.GoalStatusColor(status)).
		Build()
}

func (h *GoalHandler) HandleList(e *handler.CommandEvent) error {
	data := e.SlashCommandInteractionData()
	user := caller(e)
	if u, ok := data.OptUser("user"); ok {
		user = ledger.Address(u.ID.String())
	}

	ctx, cancel := commandContext()
	defer cancel()

	views, err := h.b.Query.UserGoalViews(ctx, user)
	if err != nil {
		return respondError(e, err)
	}
	total, err := h.b.Query.TotalPledged(ctx, user)
	if err != nil {
		return respondError(e, err)
	}
	if len(views) == 0 {
		return respondEmbed(e, discord.NewEmbedBuilder().
			SetDescription(fmt.Sprintf("%s has no goals yet. Try `/goal templates` to get started.", utils.Mention(user))).
			SetColor(utils.InfoColor).
			Build())
	}

	ids := make([]uint64, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	entries := h.b.Meta.GetMany(ctx, meta.KindGoal, ids)

	totalPages := (len(views) + utils.ItemsPerPage - 1) / utils.ItemsPerPage
	return h.b.Paginator.Create(e.Respond, paginator.Pages{
		ID:      e.ID().String(),
		Creator: e.User().ID,
		PageFunc: func(page int, embed *discord.EmbedBuilder) {
			start := page * utils.ItemsPerPage
			end := min(start+utils.ItemsPerPage, len(views))

			var description strings.Builder
			fmt.Fprintf(&description, "Goals of %s\n\n", utils.Mention(user))
			for _, v := range views[start:end] {
				label := v.Description
				if t := entries[v.ID].Title; t != "" {
					label = t
				}
				fmt.Fprintf(&description, "**#%d** %s\n%s • %s • due %s\n\n",
					v.ID, label, utils.GoalStatusLabel(v.Status), utils.FormatStake(v.Amount), utils.Timestamp(v.Deadline, "R"))
			}

			embed.
				SetTitle("🎯 Goals").
				SetDescription(description.String()).
				SetColor(utils.EmbedDarkColor).
				SetFooter(fmt.Sprintf("Page %d/%d • Total pledged: %s", page+1, totalPages, utils.FormatStake(total)), "")
		},
		Pages:      totalPages,
		ExpireMode: paginator.ExpireModeAfterLastUsage,
	}, false)
}

func (h *GoalHandler) HandleTemplates(e *handler.CommandEvent) error {
	builder := discord.NewEmbedBuilder().
		SetTitle("Get Started with Templates").
		SetColor(utils.InfoColor).
		SetFooter("Tip: start typing in /goal create description to pick one", "")

	for _, category := range TemplateCategories() {
		var lines strings.Builder
		icon := ""
		for _, t := range goalTemplates {
			if t.Category != category {
				continue
			}
			icon = t.Icon
			fmt.Fprintf(&lines, "• %s\n", t.Text)
		}
		builder.AddField(icon+" "+category, lines.String(), false)
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{builder.Build()},
		Flags:  discord.MessageFlagEphemeral,
	})
}

func (h *GoalHandler) HandleTemplateAutocomplete(e *handler.AutocompleteEvent) error {
	focused := e.Data.Focused()
	if focused.Name != "description" {
		return e.AutocompleteResult(nil)
	}

	var query string
	if focused.Value != nil {
		if err := json.Unmarshal(focused.Value, &query); err != nil {
			return e.AutocompleteResult(nil)
		}
	}

	matches := SearchTemplates(query, 25)
	choices := make([]discord.AutocompleteChoice, 0, len(matches))
	for _, t := range matches {
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  t.Text,
			Value: t.Text,
		})
	}
	return e.AutocompleteResult(choices)
}
