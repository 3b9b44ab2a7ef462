// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package command

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aumos-ai/agentid/challenge"
	"github.com/aumos-ai/agentid/types"
)

const (
	didFlagName  = "did"
	didFlagUsage = "DID of the identity answering the challenge."

	challengeFlagName  = "challenge"
	challengeFlagUsage = "Nonce issued by the verifier."

	authAudienceFlagName  = "audience"
	authAudienceFlagUsage = "Audience to bind the response to, or to expect when verifying."

	domainFlagName  = "domain"
	domainFlagUsage = "Domain to bind the response to, or to expect when verifying."

	expiresInFlagName  = "expires-in"
	expiresInFlagUsage = "Response lifetime in seconds, at most 86400. Defaults to auth.expires_in from config.yaml, or 120."

	payloadFlagName  = "payload"
	payloadFlagUsage = "Encoded challenge payload as printed by auth sign."

	signatureFlagName  = "signature"
	signatureFlagUsage = "Detached signature as printed by auth sign."

	nonceFlagName  = "nonce"
	nonceFlagUsage = "Nonce the response must carry."
)

const maxExpiresInSeconds = int(challenge.MaxExpiresIn / time.Second)

func newAuthCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign and verify authentication challenges",
	}
	cmd.AddCommand(newAuthSignCommand(a), newAuthVerifyCommand(a))
	return cmd
}

func newAuthSignCommand(a *app) *cobra.Command {
	var (
		did       string
		nonce     string
		opts      challenge.SignOptions
		expiresIn int
	)
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Answer a challenge with the identity's private key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range []string{didFlagName, challengeFlagName} {
				if err := requireFlag(cmd.Flags(), name); err != nil {
					return err
				}
			}
			switch {
			case expiresIn < 0:
				return &types.ErrInvalidArgument{Field: expiresInFlagName, Reason: "must be positive"}
			case expiresIn > maxExpiresInSeconds:
				return &types.ErrInvalidArgument{Field: expiresInFlagName, Reason: fmt.Sprintf("must be at most %d seconds", maxExpiresInSeconds)}
			case expiresIn == 0:
				opts.ExpiresIn = a.settings.AuthExpiresIn
			default:
				opts.ExpiresIn = time.Duration(expiresIn) * time.Second
			}

			store, err := a.storeHolding(did)
			if err != nil {
				return err
			}
			kp, err := store.KeyPair(cmd.Context(), did)
			if err != nil {
				return err
			}
			defer kp.Zero()

			signer := &challenge.Signer{Now: a.now}
			signed, err := signer.Sign(cmd.Context(), did, kp, nonce, opts)
			if err != nil {
				return err
			}
			a.logger.Info().Str("did", did).Time("expiresAt", signed.ExpiresAt).Msg("challenge signed")

			return a.render(signed, func(w *tabwriter.Writer) {
				field(w, "DID", signed.DID)
				field(w, "Key ID", signed.KeyID)
				field(w, "Algorithm", signed.Algorithm)
				field(w, "Created", formatTime(signed.CreatedAt))
				field(w, "Expires", formatTime(signed.ExpiresAt))
				field(w, "Payload", signed.Payload)
				field(w, "Signature", signed.Signature)
			})
		},
	}
	cmd.Flags().StringVar(&did, didFlagName, "", didFlagUsage)
	cmd.Flags().StringVar(&nonce, challengeFlagName, "", challengeFlagUsage)
	cmd.Flags().StringVar(&opts.Audience, authAudienceFlagName, "", authAudienceFlagUsage)
	cmd.Flags().StringVar(&opts.Domain, domainFlagName, "", domainFlagUsage)
	cmd.Flags().IntVar(&expiresIn, expiresInFlagName, 0, expiresInFlagUsage)
	return cmd
}

func newAuthVerifyCommand(a *app) *cobra.Command {
	var (
		did       string
		payload   string
		signature string
		opts      challenge.VerifyOptions
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a challenge response",
		Long: "Verify a challenge response against the public key derived from --did." +
			" No keystore is needed. The exit status is 1 when the response is not valid.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range []string{didFlagName, payloadFlagName, signatureFlagName} {
				if err := requireFlag(cmd.Flags(), name); err != nil {
					return err
				}
			}
			v := challenge.NewVerifier()
			v.Now = a.now
			res, err := v.Verify(cmd.Context(), did, payload, signature, opts)
			if err != nil {
				return err
			}
			a.logger.Debug().Bool("valid", res.Valid).Str("reason", string(res.Reason)).Msg("challenge verified")

			err = a.render(res, func(w *tabwriter.Writer) {
				field(w, "Valid", fmt.Sprint(res.Valid))
				if !res.Valid {
					field(w, "Reason", fmt.Sprintf("%s (%s)", res.Reason, describeReason(res.Reason)))
					field(w, "Detail", res.Detail)
					return
				}
				p := res.Payload
				field(w, "DID", p.DID)
				field(w, "Nonce", p.Nonce)
				field(w, "Audience", p.Audience)
				field(w, "Domain", p.Domain)
				field(w, "Issued", formatTime(time.Unix(p.IssuedAt, 0)))
				field(w, "Expires", formatTime(time.Unix(p.ExpiresAt, 0)))
			})
			if err != nil {
				return err
			}
			if !res.Valid {
				return errNotValid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&did, didFlagName, "", didFlagUsage)
	cmd.Flags().StringVar(&payload, payloadFlagName, "", payloadFlagUsage)
	cmd.Flags().StringVar(&signature, signatureFlagName, "", signatureFlagUsage)
	cmd.Flags().StringVar(&opts.ExpectedNonce, nonceFlagName, "", nonceFlagUsage)
	cmd.Flags().StringVar(&opts.ExpectedAudience, authAudienceFlagName, "", authAudienceFlagUsage)
	cmd.Flags().StringVar(&opts.ExpectedDomain, domainFlagName, "", domainFlagUsage)
	return cmd
}
