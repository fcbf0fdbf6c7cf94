package core

import "errors"

// Every failure here degrades to "retry on the next opportunity";
// none is fatal to the process.
var (
	// ErrFeedParse marks a malformed telemetry payload. The message is
	// discarded, the feed keeps running.
	ErrFeedParse = errors.New("malformed telemetry payload")
	// ErrTokenFetch marks a bad status or shape from the token service.
	// The join attempt aborts; the next snapshot retries.
	ErrTokenFetch = errors.New("token fetch failed")
	// ErrSessionConnect marks a failed media-session join. State reverts
	// to disconnected; the next snapshot retries.
	ErrSessionConnect = errors.New("session connect failed")
	// ErrDeviceCapture marks an unavailable microphone. A mic switch
	// aborts and the previous track is preserved.
	ErrDeviceCapture = errors.New("device capture failed")
)
