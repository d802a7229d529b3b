package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	"github.com/goalpledge/pledgebot/internal/domain/ledger"
	"github.com/goalpledge/pledgebot/pledgebot/utils"
)

const commandTimeout = 8 * time.Second

type ErrorType int

const (
	UserError ErrorType = iota
	SystemError
	NotFoundError
	PermissionError
	BusinessLogicError
)

func (t ErrorType) prefix() string {
	switch t {
	case UserError:
		return "⚠️"
	case NotFoundError:
		return "🔍"
	case PermissionError:
		return "🔒"
	case BusinessLogicError:
		return "❌"
	default:
		return "💥"
	}
}

func (t ErrorType) color() int {
	switch t {
	case UserError, BusinessLogicError:
		return utils.WarningColor
	case NotFoundError:
		return utils.InfoColor
	default:
		return utils.ErrorColor
	}
}

const errSystem = "Something went wrong while talking to the ledger, please try again."

// classify turns a ledger rejection into a category and a message the user can act on.
// Infrastructure failures never leak their details.
func classify(err error) (ErrorType, string) {
	kind := ledger.KindOf(err)
	if kind == nil {
		return SystemError, errSystem
	}

	msg := err.Error()
	if i := strings.Index(msg, kind.Error()+": "); i >= 0 {
		msg = msg[i+len(kind.Error())+2:]
	}
	if msg != "" {
		msg = strings.ToUpper(msg[:1]) + msg[1:]
	}

	switch {
	case errors.Is(kind, ledger.ErrNotFound):
		return NotFoundError, msg
	case errors.Is(kind, ledger.ErrUnauthorized):
		return PermissionError, msg
	case errors.Is(kind, ledger.ErrInvalidInput):
		return UserError, msg
	default:
		return BusinessLogicError, msg
	}
}

func errorEmbed(t ErrorType, message string) discord.Embed {
	return discord.Embed{
		Description: t.prefix() + " " + message,
		Color:       t.color(),
	}
}

// respondError answers with an ephemeral embed. Infrastructure errors are also returned
// so the logging wrapper records the failure.
func respondError(e *handler.CommandEvent, err error) error {
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

func respondUserError(e *handler.CommandEvent, format string, args ...any) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{errorEmbed(UserError, fmt.Sprintf(format, args...))},
		Flags:  discord.MessageFlagEphemeral,
	})
}

func respondEmbed(e *handler.CommandEvent, embed discord.Embed) error {
	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{embed},
	})
}

func successEmbed(title, description string) discord.Embed {
	return discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(description).
		SetColor(utils.SuccessColor).
		SetTimestamp(time.Now()).
		Build()
}

func caller(e *handler.CommandEvent) ledger.Address {
	return ledger.Address(e.User().ID.String())
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

func recordID(data discord.SlashCommandInteractionData, name string) uint64 {
	return uint64(data.Int(name))
}

func idOption(description string) discord.ApplicationCommandOptionInt {
	return discord.ApplicationCommandOptionInt{
		Name:        "id",
		Description: description,
		Required:    true,
		MinValue:    intPtr(1),
	}
}

func intPtr(i int) *int {
	return &i
}

// target resolves an optional user option, falling back to an optional raw address option.
func target(data discord.SlashCommandInteractionData, userOpt, addrOpt string) ledger.Address {
	if u, ok := data.OptUser(userOpt); ok {
		return ledger.Address(u.ID.String())
	}
	if addrOpt != "" {
		if s, ok := data.OptString(addrOpt); ok {
			return ledger.Address(strings.TrimSpace(s))
		}
	}
	return ""
}

func logFailure(msg string, err error, attrs ...any) {
	slog.Error(msg, append([]any{slog.String("type", "cmd"), slog.Any("error", err)}, attrs...)...)
}
