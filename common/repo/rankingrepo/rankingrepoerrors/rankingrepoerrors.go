package rankingrepoerrors

import "errors"

var ErrEmptySnapshot = errors.New("ranking snapshot has no players")
var ErrSnapshotNotFound = errors.New("ranking snapshot not found")
var ErrUnableToCreateSnapshot = errors.New("unable to create ranking snapshot")
var ErrInvalidStoredValue = errors.New("invalid value stored in ranking snapshot")
