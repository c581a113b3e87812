// Package chainsource connects the wallet to a remote chain-data server.
package chainsource

import (
	"context"
	"iter"

	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Source is the chain-data server as the wallet sees it.
type Source interface {
	// LatestHeight returns the height of the server's best block.
	LatestHeight(ctx context.Context) (types.BlockHeight, error)
	// TreeState returns the commitment tree state as of the end of the
	// block at height.
	TreeState(ctx context.Context, height types.BlockHeight) (*block.TreeState, error)
	// BlockRange streams compact blocks start..end inclusive, in height
	// order. A failure is yielded once and ends the stream.
	BlockRange(ctx context.Context, start, end types.BlockHeight) iter.Seq2[*block.CompactBlock, error]
	// SubmitTransaction broadcasts a raw transaction. Rejections are
	// reported in the response, not as an error.
	SubmitTransaction(ctx context.Context, raw []byte) (*SendResponse, error)
}

// SendResponse is the server's verdict on a submitted transaction. A zero
// ErrorCode means it was accepted.
type SendResponse struct {
	ErrorCode    int32  `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Accepted reports whether the server took the transaction.
func (r *SendResponse) Accepted() bool {
	return r.ErrorCode == 0
}

// Method names of the JSON-RPC API.
const (
	MethodGetLatestBlock  = "getlatestblock"
	MethodGetTreeState    = "gettreestate"
	MethodGetBlockRange   = "getblockrange"
	MethodSendTransaction = "sendtransaction"
)

// BlockID identifies the tip block.
type BlockID struct {
	Height types.BlockHeight `json:"height"`
	Hash   types.Hash        `json:"hash"`
}

// HeightParam is the parameter of gettreestate.
type HeightParam struct {
	Height types.BlockHeight `json:"height"`
}

// RangeParam is the parameter of getblockrange. End is inclusive.
type RangeParam struct {
	Start types.BlockHeight `json:"start"`
	End   types.BlockHeight `json:"end"`
}

// RawTxParam is the parameter of sendtransaction.
type RawTxParam struct {
	Data string `json:"data"` // hex
}
