package domain

import "errors"

var (
	// ErrUnconfigured means a provider has no credentials. Adapters must
	// return it before making any network call.
	ErrUnconfigured = errors.New("provider not configured")

	// ErrUnavailable covers transient provider failures: network errors,
	// 5xx responses, poll timeouts. Worth racing, not worth retrying.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrMalformedResponse means the provider answered with a success
	// status but the payload contained no usable image.
	ErrMalformedResponse = errors.New("malformed provider response")

	// ErrConversionFailed is the local filter's typed failure.
	ErrConversionFailed = errors.New("line art conversion failed")

	// ErrRaceExhausted means every candidate, including the local filter,
	// failed. There is no remaining fallback.
	ErrRaceExhausted = errors.New("all line art candidates failed")

	ErrUploadFailed = errors.New("artwork upload failed")
)
