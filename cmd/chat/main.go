package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/z-tavern/chatengine/internal/client"
	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
)

func main() {
	conversation := flag.String("conversation", "", "resume an existing conversation id")
	rows := flag.Int("rows", 20, "terminal viewport height in lines")
	verbose := flag.Bool("v", false, "print engine logs to stderr")
	flag.Parse()

	if !*verbose {
		log.SetOutput(io.Discard)
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.LoadEngine()
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	api := client.New(cfg.BackendURL, cfg.RequestTimeout)
	if cfg.UserID != "" {
		token, err := api.SignIn(ctx, cfg.UserID)
		if err != nil {
			log.SetOutput(os.Stderr)
			log.Fatalf("failed to sign in as %s: %v", cfg.UserID, err)
		}
		log.Printf("[chat] signed in user=%s expires=%s", cfg.UserID, humanize.Time(token.ExpiresAt))
	}

	cli, err := NewChatCLI(api, cfg, *rows, os.Stdout)
	if err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("failed to start chat: %v", err)
	}
	if err := cli.Run(ctx, *conversation); err != nil {
		log.SetOutput(os.Stderr)
		log.Fatalf("chat ended with error: %v", err)
	}
}
