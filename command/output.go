// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package command

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aumos-ai/agentid/types"
)

// render writes v as indented JSON or hands a tabwriter to table.
func (a *app) render(v interface{}, table func(w *tabwriter.Writer)) error {
	if a.jsonOutput() {
		return writeJSON(a.stdout, v)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type errorBody struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

// printError writes err to stderr as "error [Code]: message", or as a JSON
// object when JSON output was requested.
func (a *app) printError(err error) {
	code := types.CodeOf(err)
	if a.jsonOutput() {
		_ = writeJSON(a.stderr, map[string]errorBody{"error": {Code: code, Message: err.Error()}})
		return
	}
	if code == types.CodeUnknown {
		fmt.Fprintf(a.stderr, "error: %s\n", err)
		return
	}
	fmt.Fprintf(a.stderr, "error [%s]: %s\n", code, err)
}

func row(w *tabwriter.Writer, cols ...string) {
	fmt.Fprintln(w, strings.Join(cols, "\t"))
}

func field(w *tabwriter.Writer, name, value string) {
	if value == "" {
		value = "-"
	}
	fmt.Fprintf(w, "%s:\t%s\n", name, value)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return formatTime(*t)
}

// describeReason is the human wording for a verification outcome.
func describeReason(r types.Reason) string {
	switch r {
	case types.ReasonNone:
		return "valid"
	case types.ReasonMalformedToken:
		return "the token is not a well-formed credential"
	case types.ReasonMalformedPayload:
		return "the challenge payload or signature is malformed"
	case types.ReasonInvalidSignature:
		return "the signature does not verify against the issuer key"
	case types.ReasonExpired:
		return "outside its validity window"
	case types.ReasonIssuerNotAllowed:
		return "the issuer is not in the allowed set"
	case types.ReasonSubjectMismatch:
		return "the subject does not match the expected subject"
	case types.ReasonNonceMismatch:
		return "the nonce does not match the expected challenge"
	case types.ReasonAudienceMismatch:
		return "the audience does not match"
	case types.ReasonDomainMismatch:
		return "the domain does not match"
	case types.ReasonDIDMismatch:
		return "the payload names a different DID than the signer"
	case types.ReasonReplayed:
		return "the challenge was already used"
	default:
		return string(r)
	}
}
