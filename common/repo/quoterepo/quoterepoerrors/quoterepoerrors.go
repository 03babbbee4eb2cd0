package quoterepoerrors

import "errors"

var ErrQuoteNotFound = errors.New("quote not found in cache")
var ErrQuoteStale = errors.New("cached quote is stale")
