// Package commands holds the registry's command descriptor.
package commands

import tele "gopkg.in/telebot.v4"

// Command describes one bot command: the handler, the description shown in
// the Telegram menu, and routing metadata. Hidden commands are routed but
// kept out of the menu; aliases route extra slash-words to the same handler.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	Hidden      bool
	Aliases     []string
}
