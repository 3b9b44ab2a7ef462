// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

// Package command is the agentid command-line surface. It maps cobra
// commands onto the keystore, credential and challenge packages, renders
// results as tables or JSON, and turns failures into exit codes.
package command

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aumos-ai/agentid/config"
	"github.com/aumos-ai/agentid/keystore"
	"github.com/aumos-ai/agentid/logging"
	"github.com/aumos-ai/agentid/types"
)

const (
	jsonFlagName  = "json"
	jsonFlagUsage = "Print machine-readable JSON instead of tables."

	keystoreFlagName  = "keystore"
	keystoreFlagUsage = "Keystore directory." +
		" Alternatively, this can be set with the following environment variable: " + config.HomeEnvKey

	noEncryptFlagName  = "no-encrypt"
	noEncryptFlagUsage = "Store private keys UNENCRYPTED. Only for throwaway keystores." +
		" Setting " + config.PassphraseEnvKey + " to the empty string has the same effect."

	logLevelFlagName  = "log-level"
	logLevelFlagUsage = "Log level written to stderr." +
		" Possible values [debug] [info] [warn] [error]. Defaults to warn if not set." +
		" Alternatively, this can be set with the following environment variable: " + config.LogLevelEnvKey
)

// errNotValid signals a completed verification that returned valid=false.
// The result has already been printed, so only the exit code changes.
var errNotValid = errors.New("verification failed")

// app is the per-invocation context shared by all commands.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	env      config.LookupEnv
	flags    config.Flags
	settings *config.Settings
	logger   zerolog.Logger
	session  *keystore.Session
	now      func() time.Time
}

func newApp(stdout, stderr io.Writer, env config.LookupEnv) *app {
	return &app{
		stdout:  stdout,
		stderr:  stderr,
		env:     env,
		logger:  zerolog.Nop(),
		session: keystore.NewSession(),
		now:     time.Now,
	}
}

// Execute runs agentid with args and returns the process exit code.
func Execute(args []string, stdout, stderr io.Writer, env config.LookupEnv) int {
	return newApp(stdout, stderr, env).run(args)
}

func (a *app) run(args []string) int {
	defer func() { _ = a.session.Close() }()

	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(context.Background())
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errNotValid):
		return 1
	default:
		a.printError(err)
		return 1
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentid",
		Short: "DID identities, verifiable credentials and challenge-response auth for AI agents",
		Long: "agentid manages owner and agent identities backed by did:key, issues and verifies" +
			" ownership and capability credentials, and signs and verifies authentication challenges.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return a.load()
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &types.ErrInvalidArgument{Field: "flags", Reason: err.Error()}
	})

	pf := root.PersistentFlags()
	pf.BoolVar(&a.flags.JSON, jsonFlagName, false, jsonFlagUsage)
	pf.StringVar(&a.flags.Keystore, keystoreFlagName, "", keystoreFlagUsage)
	pf.BoolVar(&a.flags.NoEncrypt, noEncryptFlagName, false, noEncryptFlagUsage)
	pf.StringVar(&a.flags.LogLevel, logLevelFlagName, "", logLevelFlagUsage)

	root.AddCommand(
		newCreateCommand(a),
		newListCommand(a),
		newInspectCommand(a),
		newDeleteCommand(a),
		newVCCommand(a),
		newAuthCommand(a),
	)
	return root
}

// load resolves settings and the logger once the flags are parsed.
func (a *app) load() error {
	settings, err := config.Load(a.env, a.flags)
	if err != nil {
		return err
	}
	a.settings = settings
	a.logger = logging.New(a.stderr, settings.LogLevel)
	a.logger.Debug().
		Str("keystore", settings.Keystore).
		Str("output", string(settings.Output)).
		Bool("plaintext", settings.Plaintext).
		Msg("settings loaded")
	return nil
}

// store opens, or reuses, the existing keystore named by the settings. It
// never initializes one, so read-only commands leave the disk untouched.
func (a *app) store() (*keystore.Store, error) {
	return a.openStore(false)
}

// createStore is store for commands that create identities. It initializes
// the keystore, fixing its encryption mode, on first use.
func (a *app) createStore() (*keystore.Store, error) {
	return a.openStore(true)
}

func (a *app) openStore(create bool) (*keystore.Store, error) {
	if a.settings == nil {
		return nil, errors.New("settings not loaded")
	}
	cfg := a.settings.KeystoreConfig(&a.logger)
	cfg.CreateIfMissing = create
	return a.session.Store(cfg)
}

// storeHolding is store for commands that look up one identity. A missing
// keystore holds none, so did is reported as not found.
func (a *app) storeHolding(did string) (*keystore.Store, error) {
	store, err := a.store()
	if isMissingKeystore(err) {
		return nil, &types.ErrIdentityNotFound{DID: did}
	}
	return store, err
}

func isMissingKeystore(err error) bool {
	var nf *types.ErrKeystoreNotFound
	return errors.As(err, &nf)
}

func (a *app) jsonOutput() bool {
	if a.settings != nil {
		return a.settings.Output == config.OutputJSON
	}
	return a.flags.JSON
}

// requireFlag reports a missing mandatory flag as an InvalidArgument.
func requireFlag(flags *pflag.FlagSet, name string) error {
	v, err := flags.GetString(name)
	if err != nil || v == "" {
		return &types.ErrInvalidArgument{Field: name, Reason: "flag --" + name + " is required"}
	}
	return nil
}
