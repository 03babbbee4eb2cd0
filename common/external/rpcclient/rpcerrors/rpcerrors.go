// Package rpcerrors classifies contract call failures into the kinds the UI layer
// distinguishes: reverted calls, connectivity problems and everything else.
package rpcerrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
)

type Kind int

const (
	KindNone Kind = iota
	KindRevert
	KindNetwork
	KindGeneric
)

// JSON-RPC error code geth uses for "execution reverted".
const revertErrorCode = 3

const (
	MessageNoLiquidity = "Insufficient liquidity for this trade"
	MessageNetwork     = "Network error. Please check your connection"
	MessageGeneric     = "Failed to fetch quote"
)

var ErrUnexpectedOutput = errors.New("unexpected contract call output")

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRevert:
		return "revert"
	case KindNetwork:
		return "network"
	default:
		return "generic"
	}
}

type CallError struct {
	Kind   Kind
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s call failed (%s): %v", e.Method, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Wrap annotates err with its kind. Errors that already carry a kind are returned as is.
func Wrap(method string, err error) error {
	if err == nil {
		return nil
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return err
	}

	return &CallError{
		Kind:   Classify(err),
		Method: method,
		Err:    err,
	}
}

func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}

	return Classify(err)
}

// Classify looks at structured error information first and only falls back to
// matching the message text when nothing structured is available.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return KindRevert
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return KindRevert
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return KindNetwork
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "revert"):
		return KindRevert
	case strings.Contains(message, "fetch"), strings.Contains(message, "network"):
		return KindNetwork
	}

	return KindGeneric
}

func UserMessage(kind Kind) string {
	switch kind {
	case KindNone:
		return ""
	case KindRevert:
		return MessageNoLiquidity
	case KindNetwork:
		return MessageNetwork
	default:
		return MessageGeneric
	}
}
