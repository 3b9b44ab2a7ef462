// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Command agentid manages DID identities, verifiable credentials and
// challenge-response authentication for AI agents.
package main

import (
	"os"

	"github.com/aumos-ai/agentid/command"
)

func main() {
	os.Exit(command.Execute(os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv))
}
