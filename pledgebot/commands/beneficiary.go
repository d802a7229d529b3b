package commands

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/pledgebot"
	"github.com/goalpledge/pledgebot/pledgebot/handlers"
	"github.com/goalpledge/pledgebot/pledgebot/utils"
)

var BeneficiaryCommand = discord.SlashCommandCreate{
	Name:        "beneficiary",
	Description: "Choose who receives your forfeited stakes",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "set",
			Description: "Send your forfeited stakes to someone instead of the treasury",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "A Discord user",
				},
				discord.ApplicationCommandOptionString{
					Name:        "address",
					Description: "Or an external address",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "clear",
			Description: "Send forfeited stakes to the treasury again",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "show",
			Description: "Show where forfeited stakes go",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "Whose beneficiary to show (defaults to you)",
				},
			},
		},
	},
}

type BeneficiaryHandler struct {
	b *pledgebot.Bot
}

func NewBeneficiaryHandler(b *pledgebot.Bot) *BeneficiaryHandler {
	return &BeneficiaryHandler{b: b}
}

func (h *BeneficiaryHandler) Register(r handler.Router) {
	r.Route("/beneficiary", func(r handler.Router) {
		r.Command("/set", handlers.WrapWithLogging("beneficiary set", h.HandleSet))
		r.Command("/clear", handlers.WrapWithLogging("beneficiary clear", h.HandleClear))
		r.Command("/show", handlers.WrapWithLogging("beneficiary show", h.HandleShow))
	})
}

func (h *BeneficiaryHandler) HandleSet(e *handler.CommandEvent) error {
	beneficiary := target(e.SlashCommandInteractionData(), "user", "address")
	if beneficiary.IsZero() {
		return respondUserError(e, "Pick a user or give an address")
	}

	ctx, cancel := commandContext()
	defer cancel()

	if err := h.b.Processor.SetBeneficiary(ctx, caller(e), beneficiary); err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, successEmbed("Beneficiary set",
		fmt.Sprintf("Forfeited stakes now go to %s.", utils.Mention(beneficiary))))
}

func (h *BeneficiaryHandler) HandleClear(e *handler.CommandEvent) error {
	ctx, cancel := commandContext()
	defer cancel()

	if err := h.b.Processor.ClearBeneficiary(ctx, caller(e)); err != nil {
		return respondError(e, err)
	}
	return respondEmbed(e, successEmbed("Beneficiary cleared",
		fmt.Sprintf("Forfeited stakes go to the treasury (%s).", utils.Mention(h.b.Processor.Config().Treasury))))
}

func (h *BeneficiaryHandler) HandleShow(e *handler.CommandEvent) error {
	user := caller(e)
	if u, ok := e.SlashCommandInteractionData().OptUser("user"); ok {
		user = ledger.Address(u.ID.String())
	}

	ctx, cancel := commandContext()
	defer cancel()

	beneficiary, isDefault, err := h.b.Query.GetBeneficiary(ctx, user)
	if err != nil {
		return respondError(e, err)
	}

	description := fmt.Sprintf("Forfeited stakes of %s go to %s.", utils.Mention(user), utils.Mention(beneficiary))
	if isDefault {
		description += "\nNo beneficiary is set, so the treasury receives them."
	}
	return respondEmbed(e, discord.NewEmbedBuilder().
		SetTitle("Beneficiary").
		SetDescription(description).
		SetColor(utils.InfoColor).
		Build())
}
