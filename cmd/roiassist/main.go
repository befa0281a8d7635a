package main

import (
	"context"

	"roiassist-backend/cmd/roiassist/commands"
	"roiassist-backend/lib/telemetry"
	"roiassist-backend/lib/util/serviceutil"
)

func main() {
	ctx := serviceutil.SignalContext()
	tel, err := telemetry.SetupFromEnv(context.Background(), "roiassist")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer tel.Shutdown(context.Background())
	telemetry.InitSlog(false)
	commands.ExecuteContext(ctx)
}
