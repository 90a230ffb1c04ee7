package main

import (
	"context"
	"mailru-backend/cmd/mailru-cli/commands"
	"mailru-backend/lib/osutil"
)

func main() {
	ctx, cancel := osutil.SignalContext(context.Background())
	defer cancel()
	commands.ExecuteContext(ctx)
}
