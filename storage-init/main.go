package main

import (
	"context"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/storage"
)

func main() {
	_ = godotenv.Load()
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	if connStr == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}
	templatesTable := envOr("TEMPLATES_TABLE", "BoardTemplates")

	ctx := context.Background()
	if err := storage.Init(ctx, connStr,
		[]string{templatesTable},
		[]string{envOr("ACTIVITY_QUEUE", "board-activity")},
	); err != nil {
		log.Fatalf("init: %v", err)
	}

	templates, err := storage.NewTemplateStore(connStr, templatesTable)
	if err != nil {
		log.Fatalf("templates: %v", err)
	}
	if err := templates.SeedDefault(ctx); err != nil {
		log.Fatalf("seed default template: %v", err)
	}

	log.Info("storage init complete")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
