package ordernumber

import "errors"

// ErrExhausted means every random candidate and the fallback were rejected.
var ErrExhausted = errors.New("order number candidates exhausted")
