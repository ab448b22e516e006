package main

import (
	"log"

	"github.com/aprizal/myxl-bot/bot"
	corecmd "github.com/aprizal/myxl-bot/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        bot.LoadConfig,
		Bootstrap:         bot.Bootstrap,
	})
	if err != nil {
		log.Fatalf("myxl-bot: %v", err)
	}
}
