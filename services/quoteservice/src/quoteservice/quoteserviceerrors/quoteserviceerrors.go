package quoteserviceerrors

import "errors"

var ErrInvalidAmount = errors.New("amount must be a positive integer")
var ErrSameAsset = errors.New("token in and token out are the same asset")
var ErrInvalidToken = errors.New("token must be a hex address")
var ErrInvalidGameID = errors.New("game id must be a non-negative integer")
var ErrInvalidPlayerAddress = errors.New("player must be a hex address")
var ErrPlayerNotFound = errors.New("player data unavailable")
var ErrSnapshotsDisabled = errors.New("ranking snapshots are not configured")
