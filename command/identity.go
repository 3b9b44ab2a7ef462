// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package command

import (
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/keystore"
	"github.com/aumos-ai/agentid/types"
)

const (
	nameFlagName  = "name"
	nameFlagUsage = "Human-readable label for the identity."

	ownerFlagName  = "owner"
	ownerFlagUsage = "DID of the owner identity the agent belongs to. It must exist in the keystore."

	typeFlagName  = "type"
	typeFlagUsage = "Only list identities of this type. Possible values [owner] [agent]."

	documentFlagName  = "document"
	documentFlagUsage = "Print the DID document instead of the keystore record."
)

func newCreateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new identity",
	}
	cmd.AddCommand(newCreateOwnerCommand(a), newCreateAgentCommand(a))
	return cmd
}

func newCreateOwnerCommand(a *app) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Create an owner identity, which may issue credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlag(cmd.Flags(), nameFlagName); err != nil {
				return err
			}
			return a.createIdentity(cmd, keystore.CreateRequest{Type: types.IdentityOwner, Name: name})
		},
	}
	cmd.Flags().StringVar(&name, nameFlagName, "", nameFlagUsage)
	return cmd
}

func newCreateAgentCommand(a *app) *cobra.Command {
	var name, owner string
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Create an agent identity bound to an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, f := range []string{nameFlagName, ownerFlagName} {
				if err := requireFlag(cmd.Flags(), f); err != nil {
					return err
				}
			}
			return a.createIdentity(cmd, keystore.CreateRequest{Type: types.IdentityAgent, Name: name, OwnerDID: owner})
		},
	}
	cmd.Flags().StringVar(&name, nameFlagName, "", nameFlagUsage)
	cmd.Flags().StringVar(&owner, ownerFlagName, "", ownerFlagUsage)
	return cmd
}

func (a *app) createIdentity(cmd *cobra.Command, req keystore.CreateRequest) error {
	store, err := a.createStore()
	if err != nil {
		return err
	}
	id, err := store.CreateIdentity(cmd.Context(), req)
	if err != nil {
		return err
	}
	a.logger.Info().Str("did", id.DID).Str("type", string(id.Type)).Msg("identity created")
	return a.render(id, func(w *tabwriter.Writer) {
		identityFields(w, id)
	})
}

func newListCommand(a *app) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List identities in the keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var filter types.IdentityType
			if typ != "" {
				var err error
				if filter, err = types.ParseIdentityType(typ); err != nil {
					return err
				}
			}
			var all []*identity.Identity
			store, err := a.store()
			switch {
			case isMissingKeystore(err):
			case err != nil:
				return err
			default:
				if all, err = store.ListIdentities(cmd.Context()); err != nil {
					return err
				}
			}
			ids := make([]*identity.Identity, 0, len(all))
			for _, id := range all {
				if filter == "" || id.Type == filter {
					ids = append(ids, id)
				}
			}
			return a.render(ids, func(w *tabwriter.Writer) {
				row(w, "DID", "TYPE", "NAME", "OWNER", "CREATED")
				for _, id := range ids {
					owner := id.OwnerDID
					if owner == "" {
						owner = "-"
					}
					row(w, id.DID, string(id.Type), id.Name, owner, formatTime(id.CreatedAt))
				}
			})
		},
	}
	cmd.Flags().StringVar(&typ, typeFlagName, "", typeFlagUsage)
	return cmd
}

func newInspectCommand(a *app) *cobra.Command {
	var document bool
	cmd := &cobra.Command{
		Use:   "inspect DID",
		Short: "Show an identity, or its DID document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			did := args[0]
			if document {
				return a.inspectDocument(cmd, did)
			}
			store, err := a.storeHolding(did)
			if err != nil {
				return err
			}
			id, err := store.GetIdentity(cmd.Context(), did)
			if err != nil {
				return err
			}
			return a.render(id, func(w *tabwriter.Writer) {
				identityFields(w, id)
			})
		},
	}
	cmd.Flags().BoolVar(&document, documentFlagName, false, documentFlagUsage)
	return cmd
}

// inspectDocument prints the DID document of any did:key. An existing
// keystore is consulted only for the created timestamp.
func (a *app) inspectDocument(cmd *cobra.Command, did string) error {
	if _, err := identity.ExtractPublicKeyFromKeyDID(did); err != nil {
		return err
	}
	var created time.Time
	if store, err := a.store(); err == nil {
		if id, err := store.GetIdentity(cmd.Context(), did); err == nil {
			created = id.CreatedAt
		}
	} else {
		a.logger.Debug().Err(err).Msg("keystore unavailable, document has no created timestamp")
	}
	doc, err := identity.BuildDIDDocument(did, created)
	if err != nil {
		return err
	}
	// A DID document is JSON in both output modes.
	return writeJSON(a.stdout, doc)
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete DID",
		Short: "Delete an identity and its private key",
		Long: "Delete an identity and its private key. Agents owned by a deleted owner are kept," +
			" and credentials that were issued remain verifiable.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			did := args[0]
			store, err := a.storeHolding(did)
			if err != nil {
				return err
			}
			if err := store.DeleteIdentity(cmd.Context(), did); err != nil {
				return err
			}
			a.logger.Info().Str("did", did).Msg("identity deleted")
			return a.render(map[string]string{"deleted": did}, func(w *tabwriter.Writer) {
				field(w, "Deleted", did)
			})
		},
	}
}

func identityFields(w *tabwriter.Writer, id *identity.Identity) {
	field(w, "DID", id.DID)
	field(w, "Type", string(id.Type))
	field(w, "Name", id.Name)
	if id.Type == types.IdentityAgent {
		field(w, "Owner", id.OwnerDID)
	}
	field(w, "Created", formatTime(id.CreatedAt))
	if kid, err := identity.KeyID(id.DID); err == nil {
		field(w, "Key ID", kid)
	}
}
