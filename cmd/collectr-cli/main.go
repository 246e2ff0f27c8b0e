package main

import (
	"context"

	"allblue-backend/cmd/collectr-cli/commands"
	"allblue-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "collectr-cli")
	commands.ExecuteContext(context.Background())
}
