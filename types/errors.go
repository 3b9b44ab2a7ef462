// SPDX-License-Identifier: BSL-1.1
// Copyright (c) 2026 MuVeraAI Corporation

package types

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable, machine-readable identifier of a failure.
type ErrorCode string

const (
	CodeUnknown                ErrorCode = "Unknown"
	CodeMissingPassphrase      ErrorCode = "MissingPassphrase"
	CodeInvalidPassphrase      ErrorCode = "InvalidPassphrase"
	CodeEncryptionModeMismatch ErrorCode = "EncryptionModeMismatch"
	CodeNotFound               ErrorCode = "NotFound"
	CodeCredentialNotFound     ErrorCode = "CredentialNotFound"
	CodeOwnerNotFound          ErrorCode = "OwnerNotFound"
	CodeOwnerTypeMismatch      ErrorCode = "OwnerTypeMismatch"
	CodeIssuerNotOwner         ErrorCode = "IssuerNotOwner"
	CodeInvalidScopes          ErrorCode = "InvalidScopes"
	CodeInvalidExpiry          ErrorCode = "InvalidExpiry"
	CodeInvalidDID             ErrorCode = "InvalidDID"
	CodeUnsupportedDIDMethod   ErrorCode = "UnsupportedDIDMethod"
	CodeKeyMismatch            ErrorCode = "KeyMismatch"
	CodeInvalidArgument        ErrorCode = "InvalidArgument"
	CodeMalformedToken         ErrorCode = "MalformedToken"
	CodeStoreClosed            ErrorCode = "StoreClosed"
)

// CodeOf returns the code of the first coded error in err's chain, or
// CodeUnknown.
func CodeOf(err error) ErrorCode {
	var coded interface{ Code() ErrorCode }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return CodeUnknown
}

// ErrMissingPassphrase is returned when an encrypted keystore is opened
// without a passphrase.
type ErrMissingPassphrase struct{}

func (e *ErrMissingPassphrase) Error() string {
	return "keystore passphrase is required (set AGENTID_PASSPHRASE or pass --no-encrypt)"
}

func (e *ErrMissingPassphrase) Code() ErrorCode { return CodeMissingPassphrase }

// ErrInvalidPassphrase is returned when the passphrase does not unlock the keystore.
type ErrInvalidPassphrase struct{}

func (e *ErrInvalidPassphrase) Error() string {
	return "keystore passphrase is invalid"
}

func (e *ErrInvalidPassphrase) Code() ErrorCode { return CodeInvalidPassphrase }

// ErrEncryptionModeMismatch is returned when a keystore is reopened in a
// different encryption mode than the one it was created with.
type ErrEncryptionModeMismatch struct {
	Stored    string
	Requested string
}

func (e *ErrEncryptionModeMismatch) Error() string {
	return fmt.Sprintf("keystore was created in %s mode and cannot be opened in %s mode", e.Stored, e.Requested)
}

func (e *ErrEncryptionModeMismatch) Code() ErrorCode { return CodeEncryptionModeMismatch }

// ErrIdentityNotFound is returned when a DID cannot be resolved in the local store.
type ErrIdentityNotFound struct {
	DID string
}

func (e *ErrIdentityNotFound) Error() string {
	return fmt.Sprintf("identity not found: %s", e.DID)
}

func (e *ErrIdentityNotFound) Code() ErrorCode { return CodeNotFound }

// ErrKeystoreNotFound is returned when a keystore is opened for reading in a
// directory that holds none.
type ErrKeystoreNotFound struct {
	Dir string
}

func (e *ErrKeystoreNotFound) Error() string {
	return fmt.Sprintf("no keystore in %s (create an identity first)", e.Dir)
}

func (e *ErrKeystoreNotFound) Code() ErrorCode { return CodeNotFound }

// ErrCredentialNotFound is returned when a credential ID is not in the inventory.
type ErrCredentialNotFound struct {
	ID string
}

func (e *ErrCredentialNotFound) Error() string {
	return fmt.Sprintf("credential not found: %s", e.ID)
}

func (e *ErrCredentialNotFound) Code() ErrorCode { return CodeCredentialNotFound }

// ErrOwnerNotFound is returned when an agent's owner DID does not resolve.
type ErrOwnerNotFound struct {
	DID string
}

func (e *ErrOwnerNotFound) Error() string {
	return fmt.Sprintf("owner not found: %s", e.DID)
}

func (e *ErrOwnerNotFound) Code() ErrorCode { return CodeOwnerNotFound }

// ErrOwnerTypeMismatch is returned when an agent's owner DID resolves to a
// non-owner identity.
type ErrOwnerTypeMismatch struct {
	DID    string
	Actual IdentityType
}

func (e *ErrOwnerTypeMismatch) Error() string {
	return fmt.Sprintf("identity %s is of type %s, expected %s", e.DID, e.Actual, IdentityOwner)
}

func (e *ErrOwnerTypeMismatch) Code() ErrorCode { return CodeOwnerTypeMismatch }

// ErrIssuerNotOwner is returned when a non-owner identity tries to issue a credential.
type ErrIssuerNotOwner struct {
	DID    string
	Actual IdentityType
}

func (e *ErrIssuerNotOwner) Error() string {
	return fmt.Sprintf("issuer %s is of type %s; only owners may issue credentials", e.DID, e.Actual)
}

func (e *ErrIssuerNotOwner) Code() ErrorCode { return CodeIssuerNotOwner }

// ErrInvalidScopes is returned when a capability scope list is empty or malformed.
type ErrInvalidScopes struct {
	Reason string
}

func (e *ErrInvalidScopes) Error() string {
	return fmt.Sprintf("invalid scopes: %s", e.Reason)
}

func (e *ErrInvalidScopes) Code() ErrorCode { return CodeInvalidScopes }

// ErrInvalidExpiry is returned when an expiry value is not an absolute timestamp.
type ErrInvalidExpiry struct {
	Value string
}

func (e *ErrInvalidExpiry) Error() string {
	return fmt.Sprintf("invalid expiry %q: expected RFC 3339 timestamp or YYYY-MM-DD", e.Value)
}

func (e *ErrInvalidExpiry) Code() ErrorCode { return CodeInvalidExpiry }

// ErrUnsupportedDIDMethod is returned when a DID uses a method this package does not implement.
type ErrUnsupportedDIDMethod struct {
	Method string
}

func (e *ErrUnsupportedDIDMethod) Error() string {
	return fmt.Sprintf("unsupported DID method: %s", e.Method)
}

func (e *ErrUnsupportedDIDMethod) Code() ErrorCode { return CodeUnsupportedDIDMethod }

// ErrInvalidDID is returned when a DID string is malformed.
type ErrInvalidDID struct {
	DID    string
	Reason string
}

func (e *ErrInvalidDID) Error() string {
	return fmt.Sprintf("invalid DID %q: %s", e.DID, e.Reason)
}

func (e *ErrInvalidDID) Code() ErrorCode { return CodeInvalidDID }

// ErrKeyMismatch is returned when a key pair does not derive the DID it is
// being used for.
type ErrKeyMismatch struct {
	DID string
}

func (e *ErrKeyMismatch) Error() string {
	return fmt.Sprintf("key pair does not belong to %s", e.DID)
}

func (e *ErrKeyMismatch) Code() ErrorCode { return CodeKeyMismatch }

// ErrInvalidArgument reports a malformed input value.
type ErrInvalidArgument struct {
	Field  string
	Reason string
}

func (e *ErrInvalidArgument) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ErrInvalidArgument) Code() ErrorCode { return CodeInvalidArgument }

// ErrStoreClosed is returned by keystore operations after Close.
type ErrStoreClosed struct{}

func (e *ErrStoreClosed) Error() string { return "keystore is closed" }

func (e *ErrStoreClosed) Code() ErrorCode { return CodeStoreClosed }

// ErrMalformedToken is returned by decode-only inspection when a credential
// token is not a well-formed signed token.
type ErrMalformedToken struct {
	Reason string
}

func (e *ErrMalformedToken) Error() string {
	return fmt.Sprintf("malformed token: %s", e.Reason)
}

func (e *ErrMalformedToken) Code() ErrorCode { return CodeMalformedToken }
