package commands

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/goalpledge/pledgebot/pledgebot"
	"github.com/goalpledge/pledgebot/pledgebot/handlers"
)

var Commands = []discord.ApplicationCommandCreate{
	GoalCommand,
	ChallengeCommand,
	BeneficiaryCommand,
	VersionCommand,
}

var VersionCommand = discord.SlashCommandCreate{
	Name:        "version",
	Description: "Show the bot version",
}

func VersionHandler(b *pledgebot.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		return e.CreateMessage(discord.MessageCreate{
			Content: fmt.Sprintf("Version: %s\nCommit: %s", b.Version, b.Commit),
			Flags:   discord.MessageFlagEphemeral,
		})
	}
}

// Register wires every slash command onto the router.
func Register(r handler.Router, b *pledgebot.Bot) {
	r.Command("/version", handlers.WrapWithLogging("version", VersionHandler(b)))
	NewGoalHandler(b).Register(r)
	NewChallengeHandler(b).Register(r)
	NewBeneficiaryHandler(b).Register(r)
}
