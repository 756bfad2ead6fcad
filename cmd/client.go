package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taskobs.dev/observer/internal/control"
)

const defaultCallTimeout = 10 * time.Second

func newClient() *control.UDSClient {
	return control.NewUDSClient(socketPath, defaultCallTimeout)
}

func printResult(resp *control.Response, err error) {
	if err != nil {
		exitWithError("control plane call failed", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("%s (code %d)", resp.Error.Message, resp.Error.Code), nil)
	}
	out, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}
	fmt.Println(string(out))
}

func callCtx() context.Context {
	return context.Background()
}
