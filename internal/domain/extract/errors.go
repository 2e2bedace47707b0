package extract

import "errors"

var (
	// ErrMalformedInput marks a game that could not produce results.
	ErrMalformedInput = errors.New("malformed input")
	// ErrUnknownResult is a result code other than 1-0, 0-1 or 1/2-1/2.
	ErrUnknownResult = errors.New("unknown result code")
	// ErrMalformedTag is a White, Black or Result line that did not parse.
	ErrMalformedTag = errors.New("malformed tag")
	// ErrMissingPlayer is a result seen before both players were named.
	ErrMissingPlayer = errors.New("result without both players")
)
