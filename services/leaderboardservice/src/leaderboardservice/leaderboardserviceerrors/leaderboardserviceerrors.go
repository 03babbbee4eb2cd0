package leaderboardserviceerrors

import "errors"

var ErrNoPlayers = errors.New("no players fetched for game")
var ErrInvalidGameID = errors.New("invalid game id")
var ErrBlockUnchanged = errors.New("block number unchanged since last snapshot")
