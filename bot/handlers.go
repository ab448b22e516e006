package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/aprizal/myxl-bot/auth"
	tg "github.com/aprizal/myxl-bot/core/telegram"
	"github.com/aprizal/myxl-bot/core/telegram/commands"
	tghelpers "github.com/aprizal/myxl-bot/core/telegram/helpers"
	"github.com/aprizal/myxl-bot/myxl"
)

func (a *App) registerCommands(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "About this bot",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.handleHelp,
		Description: "List available commands",
	})
	reg.RegisterCommand("/login", commands.Command{
		Handler:     a.handleLogin,
		Description: "Add an XL account via OTP",
	})
	reg.RegisterCommand("/switch", commands.Command{
		Handler:     a.handleSwitch,
		Description: "Change the active account",
	})
	reg.RegisterCommand("/accounts", commands.Command{
		Handler:     a.handleAccounts,
		Description: "List stored accounts",
	})
	reg.RegisterCommand("/balance", commands.Command{
		Handler:     a.handleBalance,
		Description: "Show the active account balance",
		Aliases:     []string{"bal"},
	})
	reg.RegisterCommand("/packages", commands.Command{
		Handler:     a.handlePackages,
		Description: "Browse data packages",
		Hidden:      true,
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.handleCancelCommand,
		Description: "Abort the current flow",
		Hidden:      true,
	})
}

func (a *App) handleStart(c tele.Context) error {
	return tghelpers.SendMD(c,
		"*MyXL account bot*\n"+
			"Log in with an OTP, keep several numbers, and check the balance of the active one.\n"+
			"Send /help for the command list.")
}

func (a *App) handleHelp(c tele.Context) error {
	return tghelpers.SendMD(c,
		"*Commands*\n"+
			"/login - add an XL account via OTP\n"+
			"/switch - change the active account\n"+
			"/accounts - list stored accounts\n"+
			"/balance - show the active account balance\n"+
			"/cancel - abort the current flow")
}

func (a *App) handleLogin(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return a.machine.BeginLogin(ctx, c.Sender().ID, a.replyFor(c))
}

func (a *App) handleSwitch(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return a.machine.BeginSwitch(ctx, c.Sender().ID, a.replyFor(c))
}

func (a *App) handleCancelCommand(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return a.machine.Cancel(ctx, c.Sender().ID, a.replyFor(c))
}

func (a *App) handleAccounts(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	infos, err := a.accounts.ListAccounts(ctx)
	if err != nil {
		if serr := tghelpers.SendText(c, "Could not read stored accounts."); serr != nil {
			return serr
		}
		return err
	}
	if len(infos) == 0 {
		return tghelpers.SendText(c, "No stored accounts yet. Use /login first.")
	}

	var b strings.Builder
	b.WriteString("Stored accounts:\n")
	for i, info := range infos {
		marker := ""
		if info.Active {
			marker = " (active)"
		}
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, info.PhoneNumber, marker)
	}
	return tghelpers.SendText(c, strings.TrimRight(b.String(), "\n"))
}

func (a *App) handleBalance(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)

	tokens, err := a.accounts.ActiveTokens(ctx)
	if err != nil {
		msg := "Could not check the balance. Try again later."
		if errors.Is(err, auth.ErrNoActiveAccount) {
			msg = "No active account. Use /login to add one."
		}
		if serr := tghelpers.SendText(c, msg); serr != nil {
			return serr
		}
		return err
	}

	bal, err := a.api.GetBalance(ctx, tokens.IDToken)
	if err != nil {
		if serr := tghelpers.SendText(c, "Could not check the balance. Try again later."); serr != nil {
			return serr
		}
		return err
	}

	return tghelpers.SendText(c, balanceMessage(tokens, bal))
}

func balanceMessage(tokens auth.Tokens, bal myxl.Balance) string {
	return fmt.Sprintf(
		"Account %s\nBalance: Rp%s\nValid until: %s",
		tokens.PhoneNumber,
		formatThousands(bal.Remaining),
		formatExpiry(bal.ExpiredAt),
	)
}

func (a *App) handlePackages(c tele.Context) error {
	return tghelpers.SendText(c, "Package browsing is not available yet.")
}

// formatThousands renders 25000 as "25.000", the grouping used on XL bills.
func formatThousands(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
		if len(s) > lead {
			b.WriteByte('.')
		}
	}
	for i := lead; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte('.')
		}
	}
	return sign + b.String()
}

func formatExpiry(unixSec int64) string {
	if unixSec <= 0 {
		return "unknown"
	}
	return time.Unix(unixSec, 0).Format("02 Jan 2006")
}
