package apperror

import (
	"errors"
	"fmt"
)

// AppError is a structured error carrying a stable machine-readable code.
// Retryable tells callers whether repeating the same call can succeed;
// cryptographic and derivation failures never set it.
type AppError struct {
	Code      string
	Message   string
	Retryable bool
	Logs      []string // ledger diagnostic logs, when available
	Err       error    // wrapped cause, not shown to end users
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the nearest AppError in err's chain, or "".
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsRetryable reports whether err is an AppError marked retryable.
// Unknown errors are treated as non-retryable.
func IsRetryable(err error) bool {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}

// Error codes. Stable; callers branch on these, never on message text.
const (
	CodeSignatureRejected      = "SIGNATURE_REJECTED"
	CodeSignatureRequestFailed = "SIGNATURE_REQUEST_FAILED"
	CodeProofGenerationFailed  = "PROOF_GENERATION_FAILED"
	CodeSlotExhausted          = "SLOT_EXHAUSTED"
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeLedgerSimulationFailed = "LEDGER_SIMULATION_FAILED"
	CodeLedgerSubmissionFailed = "LEDGER_SUBMISSION_FAILED"
	CodeInvalidAmount          = "INVALID_AMOUNT"
	CodeInvalidInput           = "INVALID_INPUT"
	CodeUserRejected           = "USER_REJECTED"
)

// SignatureRejected is terminal for the session: the user declined the
// signing prompt and must explicitly reset before another prompt is shown.
func SignatureRejected() *AppError {
	return &AppError{Code: CodeSignatureRejected, Message: "wallet signature rejected by user"}
}

// SignatureRequestFailed is a transport-level failure; re-prompting is fine.
func SignatureRequestFailed(err error) *AppError {
	return &AppError{Code: CodeSignatureRequestFailed, Message: "signature request failed", Retryable: true, Err: err}
}

// ProofGenerationFailed is non-retryable unless the inputs change.
func ProofGenerationFailed(err error) *AppError {
	return &AppError{Code: CodeProofGenerationFailed, Message: "proof generation failed", Err: err}
}

func SlotExhausted(amount uint64, attempts int) *AppError {
	return &AppError{
		Code:    CodeSlotExhausted,
		Message: fmt.Sprintf("no free commitment slot for amount %d after %d attempts", amount, attempts),
	}
}

func InsufficientBalance(requested uint64) *AppError {
	return &AppError{
		Code:    CodeInsufficientBalance,
		Message: fmt.Sprintf("no unspent commitment covers %d", requested),
	}
}

// LedgerSimulationFailed carries the full program log so the failing
// instruction can be diagnosed. Never auto-retried.
func LedgerSimulationFailed(logs []string, err error) *AppError {
	return &AppError{Code: CodeLedgerSimulationFailed, Message: "ledger simulation failed", Logs: logs, Err: err}
}

// LedgerSubmissionFailed: retryable covers stale blockhash and transport
// errors; program-level rejection is terminal.
func LedgerSubmissionFailed(err error, retryable bool) *AppError {
	return &AppError{Code: CodeLedgerSubmissionFailed, Message: "ledger submission failed", Retryable: retryable, Err: err}
}

func InvalidAmount(amount uint64) *AppError {
	return &AppError{
		Code:    CodeInvalidAmount,
		Message: fmt.Sprintf("amount %d is not in the allowed vocabulary", amount),
	}
}

func InvalidInput(msg string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: msg}
}

// UserRejected labels a transaction-signing rejection so UI layers can avoid
// presenting it as a system failure.
func UserRejected() *AppError {
	return &AppError{Code: CodeUserRejected, Message: "transaction rejected by user"}
}
