package quotererrors

import "errors"

var ErrQuoteDisabled = errors.New("quote disabled for empty amount or identical assets")
var ErrInvalidQuoterOutput = errors.New("invalid quoter output")
