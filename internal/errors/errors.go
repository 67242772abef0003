package errors

import "errors"

var (
	ErrConfigInvalid = errors.New("configuration invalid")

	ErrLedgerCorrupt    = errors.New("ledger file corrupt")
	ErrRecordNotFound   = errors.New("record not found")
	ErrNotClaimed       = errors.New("record is not in progress")
	ErrEmptyFinalFile   = errors.New("final file path is empty")
	ErrOutputDirMissing = errors.New("output directory does not exist")

	ErrUnsafePath = errors.New("destination escapes output directory")
	ErrBadStatus  = errors.New("unexpected HTTP status")
)
