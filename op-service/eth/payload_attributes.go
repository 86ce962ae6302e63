package eth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PayloadAttributes is the OP-Stack extension of the Engine API's PayloadAttributesV3, as produced
// by the attributes builder (C11) and consumed by the stateless executor (C13). See spec §3 and §6.
type PayloadAttributes struct {
	Timestamp             hexutil.Uint64 `json:"timestamp"`
	PrevRandao            common.Hash    `json:"prevRandao"`
	SuggestedFeeRecipient common.Address `json:"suggestedFeeRecipient"`
	Withdrawals           *[]struct{}    `json:"withdrawals,omitempty"`
	ParentBeaconBlockRoot *common.Hash   `json:"parentBeaconBlockRoot,omitempty"`

	Transactions []hexutil.Bytes `json:"transactions,omitempty"`
	NoTxPool     bool            `json:"noTxPool,omitempty"`
	GasLimit     *hexutil.Uint64 `json:"gasLimit,omitempty"`
	// EIP1559Params is Holocene's per-payload base-fee parameter override (8 bytes: denominator ||
	// elasticity), nil pre-Holocene or when the system config carries no or all-zero params.
	EIP1559Params *hexutil.Bytes `json:"eip1559Params,omitempty"`
}
