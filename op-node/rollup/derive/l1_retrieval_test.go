package derive

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

func TestHeaderInfoFieldAccess(t *testing.T) {
	h := &types.Header{
		Number:     big.NewInt(5),
		Time:       100,
		ParentHash: common.HexToHash("0xaa"),
		BaseFee:    big.NewInt(7),
		MixDigest:  common.HexToHash("0xbb"),
	}
	info := NewHeaderInfo(h)
	require.Equal(t, uint64(5), info.NumberU64())
	require.Equal(t, uint64(100), info.Time())
	require.Equal(t, common.HexToHash("0xaa"), info.ParentHash())
	require.Equal(t, big.NewInt(7), info.BaseFee())
	require.Equal(t, common.HexToHash("0xbb"), info.MixDigest())
	require.Nil(t, info.BlobBaseFee(), "pre-Ecotone header has no excess blob gas")
	require.Nil(t, info.ParentBeaconRoot())
}

type fakeL1Fetcher struct {
	info     eth.BlockInfo
	txs      types.Transactions
	byNumber eth.BlockInfo
	err      error
}

func (f *fakeL1Fetcher) InfoByHash(ctx context.Context, hash common.Hash) (eth.BlockInfo, error) {
	return f.info, nil
}

func (f *fakeL1Fetcher) InfoByNumber(ctx context.Context, number uint64) (eth.BlockInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byNumber, nil
}

func (f *fakeL1Fetcher) InfoAndTxsByHash(ctx context.Context, hash common.Hash) (eth.BlockInfo, types.Transactions, error) {
	return f.info, f.txs, nil
}

func (f *fakeL1Fetcher) FetchReceipts(ctx context.Context, hash common.Hash) ([]*types.Receipt, error) {
	return nil, nil
}

func TestL1RetrievalSelectsBatcherInboxTx(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	batcher := crypto.PubkeyToAddress(priv.PublicKey)
	inbox := common.HexToAddress("0xff00ff00ff00ff00ff00ff00ff00ff00ff00ff00")

	cfg := &rollup.Config{BatchInboxAddress: inbox, BatcherAddress: batcher}
	signer := types.LatestSignerForChainID(nil)

	tx, err := types.SignNewTx(priv, signer, &types.LegacyTx{
		Nonce:    0,
		To:       &inbox,
		Gas:      21000,
		GasPrice: big.NewInt(1),
		Data:     []byte{0x01, 0x02, 0x03},
	})
	require.NoError(t, err)

	other, err := types.SignNewTx(priv, signer, &types.LegacyTx{
		Nonce:    1,
		To:       &common.Address{},
		Gas:      21000,
		GasPrice: big.NewInt(1),
		Data:     []byte{0xff},
	})
	require.NoError(t, err)

	header := &types.Header{Number: big.NewInt(1), Time: 10}
	fetch := &fakeL1Fetcher{info: NewHeaderInfo(header), txs: types.Transactions{tx, other}}

	origin := eth.L1BlockRef{Hash: common.HexToHash("0x01"), Number: 1, Time: 10}
	traversal := NewL1Traversal(log.New(), fetch, origin)
	retrieval := NewL1Retrieval(log.New(), cfg, fetch, nil, traversal)

	data, err := retrieval.NextData()
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03}, data)

	_, err = retrieval.NextData()
	require.ErrorIs(t, err, EOF)
}

func TestL1TraversalAdvanceOriginRejectsReorg(t *testing.T) {
	origin := eth.L1BlockRef{Hash: common.HexToHash("0x01"), Number: 1}
	badChild := NewHeaderInfo(&types.Header{Number: big.NewInt(2), ParentHash: common.HexToHash("0xdead")})
	traversal := NewL1Traversal(log.New(), &fakeL1Fetcher{byNumber: badChild}, origin)

	err := traversal.AdvanceOrigin(context.Background())
	reason, ok := IsReset(err)
	require.True(t, ok)
	require.Equal(t, ResetL1OriginMismatch, reason)
}

func TestL1TraversalAdvanceOriginFollowsChild(t *testing.T) {
	origin := eth.L1BlockRef{Hash: common.HexToHash("0x01"), Number: 1}
	child := NewHeaderInfo(&types.Header{Number: big.NewInt(2), ParentHash: origin.Hash, Time: 20})
	traversal := NewL1Traversal(log.New(), &fakeL1Fetcher{byNumber: child}, origin)

	require.NoError(t, traversal.AdvanceOrigin(context.Background()))
	require.Equal(t, uint64(2), traversal.Origin().Number)
	require.Equal(t, uint64(20), traversal.Origin().Time)
}

func TestDecodeBlobPayloadStripsHighByteAndLength(t *testing.T) {
	var b Blob
	// First field element: high byte 0, then a 3-byte big-endian length envelope (value 2)
	// followed by payload bytes 0xAB, 0xCD within the same 31-byte usable region.
	b[1] = 0
	b[2] = 0
	b[3] = 2
	b[4] = 0xAB
	b[5] = 0xCD
	payload, err := decodeBlobPayload([]*Blob{&b})
	require.NoError(t, err)
	require.Equal(t, []byte{0xAB, 0xCD}, payload)
}

func TestDecodeBlobPayloadRejectsNonZeroHighByte(t *testing.T) {
	var b Blob
	b[0] = 1
	_, err := decodeBlobPayload([]*Blob{&b})
	require.Error(t, err)
}
