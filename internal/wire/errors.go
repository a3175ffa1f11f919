package wire

import "errors"

// ErrMalformedFrame is returned by Decode for any frame that is too
// short or carries an unrecognized type byte. Per spec §4.6/§7 it is
// dropped silently by the caller; no ack is emitted for it.
var ErrMalformedFrame = errors.New("malformed sub-message frame")
