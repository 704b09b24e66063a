package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrTransferInProgress = errors.New("a transfer to this peer is already in progress")
	ErrNoPendingTransfer  = errors.New("no pending transfer from this peer")
	ErrNotAccepted        = errors.New("transfer has not been accepted")
	ErrLinkLost           = errors.New("peer link lost")
	ErrTransferRejected   = errors.New("receiver declined the transfer")
	ErrUnexpectedOffset   = errors.New("chunk offset does not match received bytes")
	ErrSizeMismatch       = errors.New("received size does not match announced size")
	ErrDigestMismatch     = errors.New("file digest mismatch")
	ErrInvalidFile        = errors.New("invalid file")
	ErrInvalidKey         = errors.New("invalid transfer key")
	ErrDecrypt            = errors.New("chunk authentication failed")
	ErrClosed             = errors.New("transfer manager closed")
)

type TransferError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *TransferError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.File, e.Err)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *TransferError {
	return &TransferError{Op: op, Err: err}
}

func NewFileError(op, file string, err error) *TransferError {
	return &TransferError{Op: op, File: file, Err: err}
}

func WrapError(op string, err error, details string) *TransferError {
	return &TransferError{Op: op, Err: err, Details: details}
}
