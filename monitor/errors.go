package monitor

import "errors"

// ErrMalformedTerm is the sentinel a reduction rule wraps when it finds a
// term shape the analyzer cannot legally make progress on — an unrecognized
// Term implementation, a Chs child that is not an Act, or a Chs delivered
// an event for which both or neither guard holds. Grounded on the teacher's
// tla.ErrTLAType / require() convention (tla/value.go): programmer errors
// panic with a wrapped sentinel rather than returning an error value.
var ErrMalformedTerm = errors.New("malformed monitor term")
