package derive

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
)

// BatchType is the RLP-prefixed tag distinguishing the two Batch variants (spec §3 Batch).
type BatchType uint8

const (
	SingularBatchType BatchType = 0
	SpanBatchType     BatchType = 1
)

// Batch is the tagged sum of spec §3: a single L2 block's worth of transactions, or a
// span-compressed run of several.
type Batch interface {
	GetBatchType() BatchType
	GetTimestamp() uint64
	LogContext(l log.Logger) log.Logger
}

// SingularBatch carries exactly one L2 block's transactions (spec §3 Batch.Single).
type SingularBatch struct {
	ParentHash   common.Hash `json:"parentHash"`
	EpochNum     uint64      `json:"epochNumber"`
	EpochHash    common.Hash `json:"epochHash"`
	Timestamp    uint64      `json:"timestamp"`
	Transactions [][]byte    `json:"transactions"`
}

func (b *SingularBatch) GetBatchType() BatchType { return SingularBatchType }
func (b *SingularBatch) GetTimestamp() uint64     { return b.Timestamp }
func (b *SingularBatch) LogContext(l log.Logger) log.Logger {
	return l.New("batch_timestamp", b.Timestamp, "parent_hash", b.ParentHash, "batch_epoch", b.EpochNum, "txs", len(b.Transactions))
}

// singularBatchRLP is the RLP-coded representation, tagged with a leading type byte as required
// by spec §3/§4.8 ("Batch (tagged sum)"): `rlp(batch_type || rlp(fields...))`, the encoding scheme
// every OP-Stack batch type uses so a single decode dispatches on the first byte.
type singularBatchRLP struct {
	ParentHash   common.Hash
	EpochNum     uint64
	EpochHash    common.Hash
	Timestamp    uint64
	Transactions [][]byte
}

func (b *SingularBatch) EncodeRLP() ([]byte, error) {
	payload, err := rlp.EncodeToBytes(singularBatchRLP{
		ParentHash:   b.ParentHash,
		EpochNum:     b.EpochNum,
		EpochHash:    b.EpochHash,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(SingularBatchType)}, payload...), nil
}

// SpanBatch is the span-compressed run of spec §3 Batch.Span: a prefix-checked window of blocks
// sharing one encoding, expanded into SingularBatches by the batch stream (C9).
type SpanBatch struct {
	RelTimestamp  uint64 `json:"relTimestamp"`
	L1OriginNum   uint64 `json:"l1OriginNum"`
	ParentCheck   [20]byte `json:"parentCheck"`
	L1OriginCheck [20]byte `json:"l1OriginCheck"`

	// BlockCount, OriginBits, BlockTxCounts, and the flattened Transactions/LegacyProtectedBits
	// together describe each constituent block without repeating per-block parent/epoch hashes
	// (spec §3 Batch.Span).
	BlockCount          uint64   `json:"blockCount"`
	OriginBits          []bool   `json:"originBits"`
	BlockTxCounts       []uint64 `json:"blockTxCounts"`
	Transactions        [][]byte `json:"transactions"`
	LegacyProtectedBits []bool   `json:"legacyProtectedBits"`

	// genesisTime/blockTime are not wire fields; they're threaded in at decode time so
	// GetBlockTimestamp/GetBlockEpochNum can compute absolute values (see decodeSpanBatch).
	genesisTime uint64
	blockTime   uint64
}

func (b *SpanBatch) GetBatchType() BatchType { return SpanBatchType }
func (b *SpanBatch) GetTimestamp() uint64    { return b.genesisTime + b.RelTimestamp }
func (b *SpanBatch) LogContext(l log.Logger) log.Logger {
	return l.New("span_timestamp", b.GetTimestamp(), "block_count", b.BlockCount, "l1_origin_num", b.L1OriginNum)
}

func (b *SpanBatch) GetBlockCount() int { return int(b.BlockCount) }

func (b *SpanBatch) GetStartEpochNum() uint64 { return b.L1OriginNum }

// GetBlockEpochNum returns the absolute L1 origin number of the i-th block: the start epoch, plus
// one for every OriginBits[1..i] flag that is set (a flag means "this block advances the epoch
// relative to the previous one").
func (b *SpanBatch) GetBlockEpochNum(i int) uint64 {
	epoch := b.L1OriginNum
	for j := 1; j <= i && j < len(b.OriginBits); j++ {
		if b.OriginBits[j] {
			epoch++
		}
	}
	return epoch
}

func (b *SpanBatch) GetBlockTimestamp(i int) uint64 {
	return b.GetTimestamp() + uint64(i)*b.blockTime
}

func (b *SpanBatch) GetBlockTransactions(i int) [][]byte {
	start := uint64(0)
	for j := 0; j < i; j++ {
		start += b.BlockTxCounts[j]
	}
	end := start + b.BlockTxCounts[i]
	if end > uint64(len(b.Transactions)) {
		return nil
	}
	return b.Transactions[start:end]
}

func (b *SpanBatch) CheckParentHash(hash common.Hash) bool {
	return checkPrefix20(b.ParentCheck, hash)
}

func (b *SpanBatch) CheckOriginHash(hash common.Hash) bool {
	return checkPrefix20(b.L1OriginCheck, hash)
}

func checkPrefix20(prefix [20]byte, hash common.Hash) bool {
	var got [20]byte
	copy(got[:], hash[:20])
	return got == prefix
}

// spanBatchRLP is the wire-coded form; see SpanBatch's doc comment for the relationship between
// stored fields and the derived per-block accessors.
type spanBatchRLP struct {
	RelTimestamp        uint64
	L1OriginNum         uint64
	ParentCheck         []byte
	L1OriginCheck       []byte
	BlockCount          uint64
	OriginBits          []bool
	BlockTxCounts       []uint64
	Transactions        [][]byte
	LegacyProtectedBits []bool
}

func (b *SpanBatch) EncodeRLP() ([]byte, error) {
	payload, err := rlp.EncodeToBytes(spanBatchRLP{
		RelTimestamp:        b.RelTimestamp,
		L1OriginNum:         b.L1OriginNum,
		ParentCheck:         b.ParentCheck[:],
		L1OriginCheck:       b.L1OriginCheck[:],
		BlockCount:          b.BlockCount,
		OriginBits:          b.OriginBits,
		BlockTxCounts:       b.BlockTxCounts,
		Transactions:        b.Transactions,
		LegacyProtectedBits: b.LegacyProtectedBits,
	})
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(SpanBatchType)}, payload...), nil
}

// DecodeBatch dispatches on the leading type byte (spec §3 Batch tagged sum) and decodes the
// remaining RLP payload into the matching variant. genesisTime/blockTime let SpanBatch compute
// absolute timestamps/epochs without re-threading the rollup config through every accessor.
func DecodeBatch(data []byte, genesisTime, blockTime uint64) (Batch, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty batch data")
	}
	switch BatchType(data[0]) {
	case SingularBatchType:
		var r singularBatchRLP
		if err := rlp.DecodeBytes(data[1:], &r); err != nil {
			return nil, fmt.Errorf("failed to decode singular batch: %w", err)
		}
		return &SingularBatch{
			ParentHash:   r.ParentHash,
			EpochNum:     r.EpochNum,
			EpochHash:    r.EpochHash,
			Timestamp:    r.Timestamp,
			Transactions: r.Transactions,
		}, nil
	case SpanBatchType:
		var r spanBatchRLP
		if err := rlp.DecodeBytes(data[1:], &r); err != nil {
			return nil, fmt.Errorf("failed to decode span batch: %w", err)
		}
		if len(r.ParentCheck) != 20 || len(r.L1OriginCheck) != 20 {
			return nil, fmt.Errorf("invalid span batch prefix-check length")
		}
		sb := &SpanBatch{
			RelTimestamp:        r.RelTimestamp,
			L1OriginNum:         r.L1OriginNum,
			BlockCount:          r.BlockCount,
			OriginBits:          r.OriginBits,
			BlockTxCounts:       r.BlockTxCounts,
			Transactions:        r.Transactions,
			LegacyProtectedBits: r.LegacyProtectedBits,
			genesisTime:         genesisTime,
			blockTime:           blockTime,
		}
		copy(sb.ParentCheck[:], r.ParentCheck)
		copy(sb.L1OriginCheck[:], r.L1OriginCheck)
		if uint64(len(sb.BlockTxCounts)) != sb.BlockCount || uint64(len(sb.OriginBits)) != sb.BlockCount {
			return nil, fmt.Errorf("span batch block_count mismatch with per-block arrays")
		}
		return sb, nil
	default:
		return nil, fmt.Errorf("invalid batch type: %w", NewCriticalError(fmt.Errorf("unrecognized batch type %d", data[0])))
	}
}
