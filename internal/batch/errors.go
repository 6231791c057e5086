package batch

import (
	"errors"
	"fmt"

	"github.com/fpang/etsyflow/internal/filehandler"
	"github.com/fpang/etsyflow/internal/remote"
)

// Orchestrator operation errors.
var (
	ErrAssetNotFound     = errors.New("asset not found")
	ErrNothingToProcess  = errors.New("no assets are ready for enhancement")
	ErrPassInProgress    = errors.New("an enhancement pass is already running")
	ErrAssetBusy         = errors.New("asset has a call in flight")
	ErrBatchActive       = errors.New("batch has calls in flight")
	ErrNotRetryable      = errors.New("asset has no normalized image to retry")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrPassHalted        = errors.New("enhancement pass halted")
	ErrPromptLocked      = errors.New("prompt can only be edited before enhancement starts")
)

// DescribeError turns a classified failure into the message stored as an
// asset's lastError.
func DescribeError(err error) string {
	var rerr *remote.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, filehandler.ErrSizeLimitExceeded),
		errors.Is(err, filehandler.ErrUnsupportedContainer),
		errors.Is(err, filehandler.ErrDecodeFailure):
		return err.Error()
	case errors.Is(err, remote.ErrCredential):
		return "API key missing or invalid: select a valid key, then restart the batch"
	case errors.Is(err, remote.ErrSafety):
		return "Rejected by the AI safety filter: try a different photo or prompt"
	case errors.Is(err, remote.ErrEnhancementUnavailable):
		return remote.ErrEnhancementUnavailable.Error()
	case errors.Is(err, remote.ErrMalformedResponse):
		return "The AI service returned a response that could not be read"
	case errors.Is(err, remote.ErrInvalidInput):
		return "The AI service rejected this image as invalid input"
	case errors.As(err, &rerr) && rerr.Exhausted:
		return fmt.Sprintf("The AI service is overloaded: gave up after %d attempts", rerr.Attempts)
	default:
		return "Processing failed: " + err.Error()
	}
}
