package pgn

import "errors"

// ErrBadTag marks a tag line that is not [Key "Value"]. It is attached to the
// returned tag, never returned by Scan.
var ErrBadTag = errors.New("pgn: malformed tag pair")
