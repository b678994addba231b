package errors

import stderrors "errors"

var (
	// ErrMissingEntity marks an event that references a Line, Position or
	// module the ledger has never materialised.
	ErrMissingEntity = stderrors.New("ledger: missing required entity")
	// ErrMalformedEvent marks an event whose decoded parameters are absent or
	// carry the wrong type.
	ErrMalformedEvent = stderrors.New("ledger: malformed event")
	// ErrUnknownStatus and ErrStatusRegression tag ignored status updates in
	// logs.
	ErrUnknownStatus    = stderrors.New("ledger: unknown status code")
	ErrStatusRegression = stderrors.New("ledger: status regression")
)
