package errx

import "errors"

// WrapLLM maps a text-generation failure to an ExecutionFailed AppError.
// Errors that already carry a kind pass through unchanged.
func WrapLLM(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindUnknown {
		return err
	}
	return ExecutionFailed(err, LLMErrorMessage)
}
