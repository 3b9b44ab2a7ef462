// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package command

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aumos-ai/agentid/credential"
	"github.com/aumos-ai/agentid/identity"
	"github.com/aumos-ai/agentid/keys"
	"github.com/aumos-ai/agentid/keystore"
	"github.com/aumos-ai/agentid/types"
)

const (
	issuerFlagName   = "issuer"
	issuerFlagUsage  = "DID of the owner identity that signs the credential."
	issuersFlagUsage = "Accept only credentials issued by this DID. Repeat to allow several issuers."

	subjectFlagName        = "subject"
	subjectFlagUsage       = "DID the credential is about. It need not be in the keystore."
	expectSubjectFlagUsage = "Require the credential subject to equal this DID."

	scopesFlagName  = "scopes"
	scopesFlagUsage = "Comma-separated capability scopes, for example read:data,write:reports."

	vcAudienceFlagName  = "audience"
	vcAudienceFlagUsage = "Optional audience the capability is intended for."

	expiresFlagName  = "expires"
	expiresFlagUsage = "Absolute expiry as an RFC 3339 timestamp or YYYY-MM-DD. Omit for no expiry."

	outFlagName  = "out"
	outFlagUsage = "Also write the token to this file."

	noSaveFlagName  = "no-save"
	noSaveFlagUsage = "Do not record the credential in the keystore inventory."

	fileFlagName  = "file"
	fileFlagUsage = "Read the token from this file."

	idFlagName  = "id"
	idFlagUsage = "Read the token from the keystore inventory entry with this ID."
)

type issueFlags struct {
	issuer  string
	subject string
	expires string
	out     string
	noSave  bool
}

func (f *issueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.issuer, issuerFlagName, "", issuerFlagUsage)
	cmd.Flags().StringVar(&f.subject, subjectFlagName, "", subjectFlagUsage)
	cmd.Flags().StringVar(&f.expires, expiresFlagName, "", expiresFlagUsage)
	cmd.Flags().StringVar(&f.out, outFlagName, "", outFlagUsage)
	cmd.Flags().BoolVar(&f.noSave, noSaveFlagName, false, noSaveFlagUsage)
}

// tokenSource is the mutually exclusive set of ways to supply a token.
type tokenSource struct {
	file string
	id   string
}

func (s *tokenSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.file, fileFlagName, "", fileFlagUsage)
	cmd.Flags().StringVar(&s.id, idFlagName, "", idFlagUsage)
}

func newVCCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vc",
		Short: "Issue, verify and manage verifiable credentials",
	}
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a credential signed by an owner identity",
	}
	issue.AddCommand(newIssueOwnershipCommand(a), newIssueCapabilityCommand(a))
	cmd.AddCommand(
		issue,
		newVerifyCredentialCommand(a),
		newInspectCredentialCommand(a),
		newListCredentialsCommand(a),
		newDeleteCredentialCommand(a),
	)
	return cmd
}

func newIssueOwnershipCommand(a *app) *cobra.Command {
	var f issueFlags
	cmd := &cobra.Command{
		Use:   "ownership",
		Short: "Attest that the issuer owns the subject",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range []string{issuerFlagName, subjectFlagName} {
				if err := requireFlag(cmd.Flags(), name); err != nil {
					return err
				}
			}
			expiresAt, err := credential.ParseExpiry(f.expires)
			if err != nil {
				return err
			}
			store, issuer, kp, err := a.issuerOf(cmd, f.issuer)
			if err != nil {
				return err
			}
			defer kp.Zero()

			issued, err := a.issuer().IssueOwnership(cmd.Context(), credential.OwnershipRequest{
				Issuer:      issuer,
				KeyPair:     kp,
				Subject:     f.subject,
				SubjectInfo: a.localIdentity(cmd, store, f.subject),
				ExpiresAt:   expiresAt,
			})
			if err != nil {
				return err
			}
			return a.finishIssue(cmd, store, &f, issued)
		},
	}
	f.register(cmd)
	return cmd
}

func newIssueCapabilityCommand(a *app) *cobra.Command {
	var (
		f        issueFlags
		scopes   string
		audience string
	)
	cmd := &cobra.Command{
		Use:   "capability",
		Short: "Grant the subject a set of capability scopes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range []string{issuerFlagName, subjectFlagName, scopesFlagName} {
				if err := requireFlag(cmd.Flags(), name); err != nil {
					return err
				}
			}
			parsed, err := credential.ParseScopes(scopes)
			if err != nil {
				return err
			}
			expiresAt, err := credential.ParseExpiry(f.expires)
			if err != nil {
				return err
			}
			store, issuer, kp, err := a.issuerOf(cmd, f.issuer)
			if err != nil {
				return err
			}
			defer kp.Zero()

			issued, err := a.issuer().IssueCapability(cmd.Context(), credential.CapabilityRequest{
				Issuer:    issuer,
				KeyPair:   kp,
				Subject:   f.subject,
				Scopes:    parsed,
				Audience:  audience,
				ExpiresAt: expiresAt,
			})
			if err != nil {
				return err
			}
			return a.finishIssue(cmd, store, &f, issued)
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&scopes, scopesFlagName, "", scopesFlagUsage)
	cmd.Flags().StringVar(&audience, vcAudienceFlagName, "", vcAudienceFlagUsage)
	return cmd
}

func (a *app) issuer() *credential.Issuer {
	return &credential.Issuer{Now: a.now}
}

// issuerOf loads the issuer identity and a copy of its key pair. The caller
// zeroes the key pair.
func (a *app) issuerOf(cmd *cobra.Command, did string) (*keystore.Store, *identity.Identity, *keys.KeyPair, error) {
	store, err := a.storeHolding(did)
	if err != nil {
		return nil, nil, nil, err
	}
	id, err := store.GetIdentity(cmd.Context(), did)
	if err != nil {
		return nil, nil, nil, err
	}
	kp, err := store.KeyPair(cmd.Context(), did)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, id, kp, nil
}

// localIdentity returns the keystore record for did, or nil.
func (a *app) localIdentity(cmd *cobra.Command, store *keystore.Store, did string) *identity.Identity {
	id, err := store.GetIdentity(cmd.Context(), did)
	if err != nil {
		return nil
	}
	return id
}

func (a *app) finishIssue(cmd *cobra.Command, store *keystore.Store, f *issueFlags, issued *credential.Issued) error {
	// The token file is written first so a failed write leaves no record behind.
	if f.out != "" {
		if err := os.WriteFile(f.out, []byte(issued.Token+"\n"), 0o600); err != nil {
			return fmt.Errorf("write token to %s: %w", f.out, err)
		}
	}
	if !f.noSave {
		err := store.SaveCredential(cmd.Context(), &keystore.CredentialRecord{
			ID:        issued.ID,
			Type:      issued.Type,
			Issuer:    issued.Issuer,
			Subject:   issued.Subject,
			IssuedAt:  issued.IssuedAt,
			ExpiresAt: issued.ExpiresAt,
			Scopes:    issued.Scopes,
			Token:     issued.Token,
		})
		if err != nil {
			if f.out != "" {
				if rmErr := os.Remove(f.out); rmErr != nil {
					a.logger.Warn().Err(rmErr).Str("path", f.out).Msg("token file of unsaved credential not removed")
				}
			}
			return err
		}
	}
	a.logger.Info().
		Str("id", issued.ID).
		Str("type", string(issued.Type)).
		Str("issuer", issued.Issuer).
		Str("subject", issued.Subject).
		Bool("saved", !f.noSave).
		Msg("credential issued")

	return a.render(issued, func(w *tabwriter.Writer) {
		field(w, "ID", issued.ID)
		field(w, "Type", string(issued.Type))
		field(w, "Issuer", issued.Issuer)
		field(w, "Subject", issued.Subject)
		if len(issued.Scopes) > 0 {
			field(w, "Scopes", strings.Join(issued.Scopes, ","))
		}
		field(w, "Issued", formatTime(issued.IssuedAt))
		field(w, "Expires", formatExpiry(issued.ExpiresAt))
		if f.out != "" {
			field(w, "Written to", f.out)
		}
		field(w, "Token", issued.Token)
	})
}

// token resolves the token from the positional argument, --file or --id.
// Exactly one must be given.
func (a *app) token(cmd *cobra.Command, args []string, src *tokenSource) (string, error) {
	given := 0
	for _, set := range []bool{len(args) > 0, src.file != "", src.id != ""} {
		if set {
			given++
		}
	}
	if given != 1 {
		return "", &types.ErrInvalidArgument{Field: "token", Reason: "give exactly one of TOKEN, --file or --id"}
	}

	switch {
	case len(args) > 0:
		return strings.TrimSpace(args[0]), nil
	case src.file != "":
		raw, err := os.ReadFile(src.file)
		if err != nil {
			return "", &types.ErrInvalidArgument{Field: fileFlagName, Reason: err.Error()}
		}
		return strings.TrimSpace(string(raw)), nil
	default:
		store, err := a.store()
		if isMissingKeystore(err) {
			return "", &types.ErrCredentialNotFound{ID: src.id}
		}
		if err != nil {
			return "", err
		}
		rec, err := store.GetCredential(cmd.Context(), src.id)
		if err != nil {
			return "", err
		}
		return rec.Token, nil
	}
}

func newVerifyCredentialCommand(a *app) *cobra.Command {
	var (
		src     tokenSource
		issuers []string
		subject string
	)
	cmd := &cobra.Command{
		Use:   "verify [TOKEN]",
		Short: "Verify a credential's signature, expiry and expectations",
		Long: "Verify a credential's signature, expiry and expectations. The issuer key is derived" +
			" from the issuer DID, so no keystore is needed unless --id is used." +
			" The exit status is 1 when the credential is not valid.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(cmd, args, &src)
			if err != nil {
				return err
			}
			v := credential.NewVerifier()
			v.Now = a.now
			res, err := v.Verify(cmd.Context(), token, credential.VerifyOptions{
				AllowedIssuers:  issuers,
				ExpectedSubject: subject,
			})
			if err != nil {
				return err
			}
			a.logger.Debug().Bool("valid", res.Valid).Str("reason", string(res.Reason)).Msg("credential verified")

			if err := a.render(res, func(w *tabwriter.Writer) { credentialResultFields(w, res) }); err != nil {
				return err
			}
			if !res.Valid {
				return errNotValid
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().StringArrayVar(&issuers, issuerFlagName, nil, issuersFlagUsage)
	cmd.Flags().StringVar(&subject, subjectFlagName, "", expectSubjectFlagUsage)
	return cmd
}

func credentialResultFields(w *tabwriter.Writer, res *credential.VerificationResult) {
	field(w, "Valid", fmt.Sprint(res.Valid))
	if !res.Valid {
		field(w, "Reason", fmt.Sprintf("%s (%s)", res.Reason, describeReason(res.Reason)))
		field(w, "Detail", res.Detail)
		return
	}
	c := res.Credential
	field(w, "ID", c.Payload.ID)
	field(w, "Type", string(c.Type))
	field(w, "Issuer", c.Issuer())
	field(w, "Subject", c.Subject())
	switch c.Type {
	case types.CredentialOwnership:
		if o := c.Ownership; o != nil {
			field(w, "Owner", o.Owner)
			field(w, "Name", o.Name)
		}
	case types.CredentialCapability:
		if sub := c.Capability; sub != nil {
			field(w, "Scopes", strings.Join(sub.Scopes, ","))
			field(w, "Audience", sub.Audience)
		}
	}
	if c.Payload.IssuedAt != nil {
		field(w, "Issued", formatTime(c.Payload.IssuedAt.Time()))
	}
	field(w, "Expires", formatExpiry(c.ExpiresAt()))
}

func newInspectCredentialCommand(a *app) *cobra.Command {
	var src tokenSource
	cmd := &cobra.Command{
		Use:   "inspect [TOKEN]",
		Short: "Decode a credential WITHOUT verifying it",
		Long: "Decode a credential's header and payload. Neither the signature nor the expiry is" +
			" checked, so the output must not be trusted. Use vc verify for trust decisions.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := a.token(cmd, args, &src)
			if err != nil {
				return err
			}
			decoded, err := credential.Decode(token)
			if err != nil {
				return err
			}
			a.logger.Warn().Msg("decoded without verification: signature and expiry were not checked")
			return writeJSON(a.stdout, decoded)
		},
	}
	src.register(cmd)
	return cmd
}

func newListCredentialsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List credentials recorded in the keystore inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs := []*keystore.CredentialRecord{}
			store, err := a.store()
			switch {
			case isMissingKeystore(err):
			case err != nil:
				return err
			default:
				if recs, err = store.ListCredentials(cmd.Context()); err != nil {
					return err
				}
			}
			return a.render(recs, func(w *tabwriter.Writer) {
				row(w, "ID", "TYPE", "ISSUER", "SUBJECT", "ISSUED", "EXPIRES")
				for _, r := range recs {
					row(w, r.ID, string(r.Type), r.Issuer, r.Subject, formatTime(r.IssuedAt), formatExpiry(r.ExpiresAt))
				}
			})
		},
	}
}

func newDeleteCredentialCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove a credential from the keystore inventory",
		Long: "Remove a credential from the keystore inventory. This does not revoke it:" +
			" copies of the token keep verifying until they expire.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			store, err := a.store()
			if isMissingKeystore(err) {
				return &types.ErrCredentialNotFound{ID: id}
			}
			if err != nil {
				return err
			}
			if err := store.DeleteCredential(cmd.Context(), id); err != nil {
				return err
			}
			return a.render(map[string]string{"deleted": id}, func(w *tabwriter.Writer) {
				field(w, "Deleted", id)
			})
		},
	}
}
