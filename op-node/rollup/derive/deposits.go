package derive

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DepositEventABIHash is the selector of TransactionDeposited(address,address,uint256,bytes),
// the canonical event the deposit contract emits for every deposit (spec §4.8).
var DepositEventABIHash = crypto.Keccak256Hash([]byte("TransactionDeposited(address,address,uint256,bytes)"))

// depositSourceDomain identifies which of the three deposit-source families produced a source
// hash (spec §4.8's "domain-separated" source hashes).
type depositSourceDomain uint64

const (
	userDepositSourceDomain    depositSourceDomain = 0
	l1InfoDepositSourceDomain  depositSourceDomain = 1
	upgradeDepositSourceDomain depositSourceDomain = 2
)

func domainSourceHash(domain depositSourceDomain, depositIDHash common.Hash) common.Hash {
	var input [32 * 2]byte
	binary.BigEndian.PutUint64(input[32-8:32], uint64(domain))
	copy(input[32:], depositIDHash[:])
	return crypto.Keccak256Hash(input[:])
}

// UserDepositSource identifies a deposit originating from a TransactionDeposited log.
type UserDepositSource struct {
	L1BlockHash common.Hash
	LogIndex    uint64
}

func (s UserDepositSource) SourceHash() common.Hash {
	var input [64]byte
	copy(input[:32], s.L1BlockHash[:])
	binary.BigEndian.PutUint64(input[56:64], s.LogIndex)
	depositIDHash := crypto.Keccak256Hash(input[:])
	return domainSourceHash(userDepositSourceDomain, depositIDHash)
}

// L1InfoDepositSource identifies the L1-info attributes deposit (C14) of a given L2 block.
type L1InfoDepositSource struct {
	L1BlockHash common.Hash
	SeqNumber   uint64
}

func (s L1InfoDepositSource) SourceHash() common.Hash {
	var input [64]byte
	copy(input[:32], s.L1BlockHash[:])
	binary.BigEndian.PutUint64(input[56:64], s.SeqNumber)
	depositIDHash := crypto.Keccak256Hash(input[:])
	return domainSourceHash(l1InfoDepositSourceDomain, depositIDHash)
}

// UpgradeDepositSource identifies one deposit transaction in a fork's fixed upgrade-tx sequence,
// uniquely named by a human-readable intent string (spec §4.7 step 4).
type UpgradeDepositSource struct {
	Intent string
}

func (s UpgradeDepositSource) SourceHash() common.Hash {
	intentHash := crypto.Keccak256Hash([]byte(s.Intent))
	return domainSourceHash(upgradeDepositSourceDomain, intentHash)
}

// UnmarshalDepositVersion0 decodes the version-0 opaqueData layout of spec §4.8:
// mint(u128 BE, left-zero-padded to 32B) || value(u256) || gas(u64, left-zero-padded to 8B) ||
// isCreation(u8) || callData.
func UnmarshalDepositVersion0(tx *types.DepositTx, to common.Address, data []byte) error {
	if len(data) < 32+32+8+1 {
		return fmt.Errorf("unexpected opaque data length: %d", len(data))
	}
	offset := 0

	mint := new(big.Int).SetBytes(data[offset+16 : offset+32])
	if mint.Sign() == 0 {
		tx.Mint = nil
	} else {
		tx.Mint = mint
	}
	offset += 32

	tx.Value = new(big.Int).SetBytes(data[offset : offset+32])
	offset += 32

	tx.Gas = binary.BigEndian.Uint64(data[offset : offset+8])
	offset += 8

	isCreation := data[offset]
	offset += 1
	if isCreation == 0 {
		tx.To = &to
	} else {
		tx.To = nil
	}

	tx.Data = append([]byte(nil), data[offset:]...)
	return nil
}

// UnmarshalDepositLogEvent reconstructs a DepositTx from a TransactionDeposited log, following
// spec §4.8's structural checks exactly: 4 topics, canonical selector, aligned data length,
// offset/length-prefixed opaqueData, version-0 payload.
func UnmarshalDepositLogEvent(ev *types.Log) (*types.DepositTx, error) {
	if len(ev.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 event topics (event hash, indexed from, to, version), got %d", len(ev.Topics))
	}
	if ev.Topics[0] != DepositEventABIHash {
		return nil, fmt.Errorf("invalid deposit event selector: %s, expected %s", ev.Topics[0], DepositEventABIHash)
	}
	if len(ev.Data) < 64 {
		return nil, fmt.Errorf("incomplete opaqueData slice header (%d bytes)", len(ev.Data))
	}
	if len(ev.Data)%32 != 0 {
		return nil, fmt.Errorf("unexpected padded log data size: %d", len(ev.Data))
	}

	var from common.Address
	copy(from[:], ev.Topics[1][12:])
	var to common.Address
	copy(to[:], ev.Topics[2][12:])
	version := ev.Topics[3]

	offsetWord := ev.Data[0:32]
	var offset uint64
	for _, b := range offsetWord[:24] {
		if b != 0 {
			return nil, fmt.Errorf("invalid opaqueData offset encoding: %x", offsetWord)
		}
	}
	offset = binary.BigEndian.Uint64(offsetWord[24:32])
	if offset != 32 {
		return nil, fmt.Errorf("invalid opaqueData offset: %d, expected 32", offset)
	}

	lengthWord := ev.Data[32:64]
	for _, b := range lengthWord[:24] {
		if b != 0 {
			return nil, fmt.Errorf("invalid opaqueData length encoding: %x", lengthWord)
		}
	}
	length := binary.BigEndian.Uint64(lengthWord[24:32])
	if 64+length > uint64(len(ev.Data)) {
		return nil, fmt.Errorf("opaqueData overflows log data: length %d, remaining %d", length, len(ev.Data)-64)
	}

	opaqueData := ev.Data[64 : 64+length]

	dep := &types.DepositTx{
		From:                from,
		IsSystemTransaction: false,
	}
	source := UserDepositSource{L1BlockHash: ev.BlockHash, LogIndex: uint64(ev.Index)}
	dep.SourceHash = source.SourceHash()

	if version != (common.Hash{}) {
		return nil, fmt.Errorf("invalid deposit version, only version 0 is supported: %s", version)
	}
	if err := UnmarshalDepositVersion0(dep, to, opaqueData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal version 0 deposit event: %w", err)
	}
	return dep, nil
}
