// verify-agent sends one free-text stock update to the configured OpenAI model and
// prints the interpreted change. It needs OPENAI_API_KEY but no database.
//
// Usage: go run ./cmd/verify-agent "sold to 0712345678, paid 1500, premium package"
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"stock-tracker/internal/ai"
	"stock-tracker/internal/config"
	"stock-tracker/internal/core"
)

func main() {
	logger := config.NewLogger("info", "text")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.OpenAIAPIKey == "" {
		logger.Fatal("OPENAI_API_KEY not set")
	}

	text := strings.Join(os.Args[1:], " ")
	if text == "" {
		text = "Sold this one to 0712345678 for 1500, customer took the premium package and paid cash."
	}

	unit := &core.Unit{
		ID:           1,
		BatchNumber:  "B-2026-01",
		Smartcard:    "SC-0001",
		SerialNumber: "SN-0001",
		Kind:         core.KindFullSet,
		Status:       core.StatusInHand,
	}
	directory := "user 2: First Agent (agent, team 1)\nuser 3: Second Agent (agent, team 2)\n"

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	agent := ai.NewAgent(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	interp, err := agent.InterpretUpdate(ctx, text, unit, directory)
	if err != nil {
		logger.Fatalf("interpretation failed: %v", err)
	}

	out, err := render(interp)
	if err != nil {
		logger.Fatalf("failed to encode interpretation: %v", err)
	}
	fmt.Println(out)
}

func render(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}
