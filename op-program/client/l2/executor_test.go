package l2

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/fault-proof-core/op-node/rollup"
	"github.com/ethereum-optimism/fault-proof-core/op-service/eth"
)

func emptyBlockAttrs(timestamp uint64, gasLimit uint64) *eth.PayloadAttributes {
	gl := hexutil.Uint64(gasLimit)
	return &eth.PayloadAttributes{
		Timestamp:             hexutil.Uint64(timestamp),
		PrevRandao:            common.HexToHash("0xbeef"),
		SuggestedFeeRecipient: common.HexToAddress("0x1234"),
		GasLimit:              &gl,
	}
}

func TestExecutorEmptyBlockBedrock(t *testing.T) {
	cfg := &rollup.Config{L2ChainID: 10}
	exec := NewExecutor(log.New(), cfg, big.NewInt(10))

	parent := &types.Header{
		Number:   big.NewInt(100),
		GasLimit: 30_000_000,
		GasUsed:  15_000_000,
		BaseFee:  big.NewInt(1_000_000_000),
		Time:     1000,
	}

	oracle := newFakeOracle()
	db := NewStateDB(log.New(), oracle, nil, types.EmptyRootHash, parent)

	attrs := emptyBlockAttrs(1002, 30_000_000)
	header, err := exec.ExecutePayload(db, parent, attrs)
	require.NoError(t, err)

	require.Equal(t, coinbase, header.Coinbase)
	require.Equal(t, uint64(101), header.Number.Uint64())
	require.Equal(t, parent.Hash(), header.ParentHash)
	require.Equal(t, uint64(0), header.GasUsed)
	require.Equal(t, types.EmptyRootHash, header.TxHash)
	require.Equal(t, types.EmptyRootHash, header.ReceiptHash)
	require.Nil(t, header.WithdrawalsHash)
	require.NotNil(t, header.BaseFee)
	require.Equal(t, types.EmptyRootHash, header.Root)
}

func TestExecutorEmptyBlockPostCanyonSetsEmptyWithdrawalsRoot(t *testing.T) {
	canyonTime := uint64(1000)
	cfg := &rollup.Config{L2ChainID: 10, RegolithTime: &canyonTime, CanyonTime: &canyonTime}
	exec := NewExecutor(log.New(), cfg, big.NewInt(10))

	parent := &types.Header{
		Number:   big.NewInt(5),
		GasLimit: 30_000_000,
		GasUsed:  0,
		BaseFee:  big.NewInt(1_000_000_000),
		Time:     999,
	}

	oracle := newFakeOracle()
	db := NewStateDB(log.New(), oracle, nil, types.EmptyRootHash, parent)

	attrs := emptyBlockAttrs(1000, 30_000_000)
	header, err := exec.ExecutePayload(db, parent, attrs)
	require.NoError(t, err)

	require.NotNil(t, header.WithdrawalsHash)
	require.Equal(t, types.EmptyRootHash, *header.WithdrawalsHash)
}

// realBlockFixture bundles the genuine OP-mainnet header/transaction/payload-attribute bytes for
// one of spec §8's three named regression anchors, ported verbatim from the upstream executor's
// own test fixtures. What those fixtures don't carry over is the matching
// testdata/block_<N>_exec/output.json trie-preimage dump the upstream tests load alongside them
// (see DESIGN.md) — so these tests exercise the real header and transaction codecs against
// bit-exact mainnet bytes, short of the full state-dependent re-execution that dump would enable.
type realBlockFixture struct {
	blockNumber       uint64
	parentHeaderRLP   string
	expectedHeaderRLP string
	rawTxs            []string
	timestamp         uint64
	prevRandao        common.Hash
	parentBeaconRoot  common.Hash
}

func decodeRealHeader(t *testing.T, rlpHex string) *types.Header {
	t.Helper()
	var h types.Header
	require.NoError(t, rlp.DecodeBytes(common.FromHex(rlpHex), &h))
	return &h
}

// block120794432Fixture is OP-mainnet block #120794432 (https://optimistic.etherscan.io/block/120794432):
// the L1-info deposit transaction alone, Ecotone-era.
func block120794432Fixture() realBlockFixture {
	return realBlockFixture{
		blockNumber:      120794432,
		parentHeaderRLP:  "f90244a0ff7c6abc94edcaddd02c12ec7d85ffbb3ba293f3b76897e4adece57e692bcc39a01dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347944200000000000000000000000000000000000011a0a0b24abb13d6149947247a8817517971bb8d213de1e23225e2b20d36a5b6427ca0c31e4a2ada52ac698643357ca89ef2740d384076ef0e17b653bcb6ea7dd8902ea09f4fcf34e78afc216240e3faa72c822f8eea4757932eb9e0fd42839d192bb903b901000440000210068007000000940000000220000006000820048404800002000004040100001b2000008800001040000018280000400001200004000101086000000802800080004008010001080000200100a00000204840000118042080000400804001000a0400080200111000000800050000020200064000000012000800048000000000101800200002000000080008001581402002200210341089000080c2d004106000000018000000804285800800000020000180008000020000000000020103410400000000200400008000280400000100020000002002000021000811000920808000010000000200210400000020008000400000000000211008808407332d3f8401c9c3808327c44d84665a343780a0edba75784acf3165bffd96df8b78ffdb3781db91f886f22b4bee0a6f722df93988000000000000000083202ef8a056e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b4218080a0917693152c4a041efbc196e9d169087093336da96a8bb3af1e55fce447a7b8a9",
		expectedHeaderRLP: "f90243a09506905902f5c3613c5441a8697c09e7aafdb64082924d8bd2857f9e34a47a9aa01dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347944200000000000000000000000000000000000011a0a1e9207c3c68cd4854074f08226a3643debed27e45bf1b22ab528f8de16245eda0121e8765953af84974b845fd9b01f5ff9b0f7d2886a2464535e8e9976a1c8daba092c6a5e34d7296d63d1698258c40539a20080c668fc9d63332363cfbdfa37976b9010000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000808407332d408401c9c38082ab4b84665a343980a0edba75784acf3165bffd96df8b78ffdb3781db91f886f22b4bee0a6f722df93988000000000000000083201f31a056e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b4218080a0917693152c4a041efbc196e9d169087093336da96a8bb3af1e55fce447a7b8a9",
		rawTxs: []string{
			"7ef8f8a003b511b9b71520cd62cad3b5fd5b1b8eaebd658447723c31c7f1eba87cfe98c894deaddeaddeaddeaddeaddeaddeaddeaddead00019442000000000000000000000000000000000000158080830f424080b8a4440a5e2000000558000c5fc5000000000000000300000000665a33a70000000001310e960000000000000000000000000000000000000000000000000000000214d2697300000000000000000000000000000000000000000000000000000000000000015346d208a396843018a2e666c8e7832067358433fb87ca421273c6a4e69f78d50000000000000000000000006887246668a3b87f54deb3b94ba47a6f63f32985",
		},
		timestamp:        0x665a3439,
		prevRandao:       common.HexToHash("0xedba75784acf3165bffd96df8b78ffdb3781db91f886f22b4bee0a6f722df939"),
		parentBeaconRoot: common.HexToHash("0x917693152c4a041efbc196e9d169087093336da96a8bb3af1e55fce447a7b8a9"),
	}
}

// block121003241Fixture is OP-mainnet block #121003241 (https://optimistic.etherscan.io/block/121003241).
func block121003241Fixture() realBlockFixture {
	return realBlockFixture{
		blockNumber:      121003241,
		parentHeaderRLP:  "f90245a01fe9a4a3f3a03b5e9bf26739dc0402016bcd0b4eba84f6daec89cd25ede03785a01dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347944200000000000000000000000000000000000011a0f0f4294d35c59be9ac60e3c8b10f72f082eb20db04e84b89622eaf36dc288f94a037567276c3663d85aa9c8f6d9fa3a9b02511a5314c08d83648caae01da377f0da0a5cc7888ada10b0cf445632d9239c129cb55b9822edcc6062262660cc9786457b9010007000032410480052001888000000000000200000400200040040000442002000a892000100000020008001100112000000000408000b012000002c200b48080000068040001480885003408000880010044000010241440800428208400004044000880820800800100100000000801820000000000000081000030000800204000000840000000802a0000000100400004000180300000004120104000001922000102000000000060001289c024840010000521800000000022140000208040001203800420620019020200004000209008009000000000004000880070120010220820502000500400202000000000040028000089c00080100000010008808407365ce88401c9c380832415e9846660938980a022e77867678dc60aace7567ee344620f47a66be343eac90a82bf619ea37de357880000000000000000840398f69aa056e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b4218080a050f4a35e2f059621cba649e719d23a2a9d030189fd19172a689c76d3adf39fec",
		expectedHeaderRLP: "f90245a090957c484fec69a6b308f18d83a320b18a5471ba9566e5b56dfc656abd354744a01dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347944200000000000000000000000000000000000011a049dfddc9ce6d832c6ab981aea324c3d57b1b1d93823656b43d02608e6b59f3bda0533a1c4f39fa301e354292186123681d97ae64a788cf2af61e6f70e3080c1ac3a0c888d1dfb9590590036630c91d4ff2401a4946524f315bffbbbed795820e3744b90100060000024200002000118880000000008004000104000000000000000400010000080000000000000000040100000000000800c08000200a0000020000200080000000040040000800000008000000000040080004000000804000010002000040802088028c0010000014000200080102001000000800000000001000082000000000002000000000000000000000000044100080200000000100000c00800002000040001100000040100280000400040480000000000000800600000020c040001402008000401001201620020000000000000004000000800200000320000010200200080000400000000000040000000004008080002000000000010000808407365ce98401c9c3808312f8db846660938b80a022e77867678dc60aace7567ee344620f47a66be343eac90a82bf619ea37de3578800000000000000008403970597a056e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b4218080a050f4a35e2f059621cba649e719d23a2a9d030189fd19172a689c76d3adf39fec",
		rawTxs: []string{
			"7ef8f8a02c3adbd572915b3ef2fe7c81418461cb32407df8cb1bd4c1f5f4b45e474bfce694deaddeaddeaddeaddeaddeaddeaddeaddead00019442000000000000000000000000000000000000158080830f424080b8a4440a5e2000000558000c5fc5000000000000000400000000666092ff00000000013195d800000000000000000000000000000000000000000000000000000004da0e1101000000000000000000000000000000000000000000000000000000000000000493a1359bf7a89d8b2b2073a153c47f9c399f8f7a864e4f25744d6832cb6fadd80000000000000000000000006887246668a3b87f54deb3b94ba47a6f63f32985",
			"f86a03840998d150827b0c9422fb762f614ede47d33ca2de13a5fb16354a7a5b872defc438f220008038a0e83ca5fd673c57230b1ea308752959568a795fc0b2eccc4128bb295673f4f576a04de60eb10a6aa6fcffd5a956523a92451b06cf669cf332139ac2937880e4ee2f",
			"f87e8301abd284050d2c55830493e094a43305ce0164d87d7b2368f91a1dcc4ebda751278097c201015dc7073aac5a2702007a6c235e4c4f676660938937a07575b3c2ed04981845adc29fc27bf573ccd17462c2d5789e3844d66d29277a79a005175e178a234d48c7e15bfaa979f1b78636228d550a200d9e34e05169d1b770",
			"02f8af0a8083989680840578b8db83025dbe94dc6ff44d5d932cbd77b52e5612ba0529dc6226f180b844a9059cbb00000000000000000000000056c38d1b4676c9c2259d0820dcbce069d3321d5f00000000000000000000000000000000000000000000000029563f7ac07ae000c080a0d0b1d61b918d88059cc8dbee2833c2ce78573b76c731e266d110ed330fb72563a05ca02995f5ec74c0bd9b7209785d75369a1f43a5f045189a51f851ea9b9a791b",
			"02f8740a832c6a52834c4b4085012a05f200825208948c1e1a0b0f9420139e12fa1379b6a76d381d7c8f870a18f74161700080c001a00b7dcc69c346c674167fdd0cee4b13622838d4d9a1f64ef0270d366e61c49fdaa02d99fcd56b7ef8aec6a04c0204a6fd66dcddb755cd54226527a51e5ba22aacd7",
			"f86a808403b23254825208945e809a85aa182a9921edd10a4163745bb3e362848704f7793d6560098038a0c921dce37651444a6c3004e85263d7ef593225d6f5a6ac19265c5a1044f598caa003cbfcc7b3d89a023c7d423496bc0f55c281c501cdd00909e6e09485d90d6500",
			"f8aa8207a88403a9e89182cac994dc6ff44d5d932cbd77b52e5612ba0529dc6226f180b844a9059cbb0000000000000000000000002e2927d05851ae228ab68dd04434dece401cf72b00000000000000000000000000000000000000000000000029998b20cdd0c00038a0a3d6514ad022c5b79f8b41cb59b7e48b62ca90d409a5438783f89947009a548ea037de75cc680392eac97820b5884239ca0a0a990e63fc118b0040b631ac73fc52",
		},
		timestamp:        0x6660938b,
		prevRandao:       common.HexToHash("0x22e77867678dc60aace7567ee344620f47a66be343eac90a82bf619ea37de357"),
		parentBeaconRoot: common.HexToHash("0x50f4a35e2f059621cba649e719d23a2a9d030189fd19172a689c76d3adf39fec"),
	}
}

// block121057303Fixture is OP-mainnet block #121057303 (https://optimistic.etherscan.io/block/121057303).
func block121057303Fixture() realBlockFixture {
	return realBlockFixture{
		blockNumber:      121057303,
		parentHeaderRLP:  "f90245a071101c6ce251190d11965257bf7f3b079d5af139a80ec1d2541110ded5da9bd6a01dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347944200000000000000000000000000000000000011a0df99471388344de2cff6b0ff98f9c66429c94f055d0aa4b96f5c5064c47e8ac0a0ebbb62603141a37336a38057ec8eca40e5aea904dafdff82a93c72d0ab9671cea05064f082249a9a7b00c8fc287a6e943b38ba6fe8e1fdc4bb0c10c89b9286a938b9010088000000c0120200100410c08048120b528040a00000000808840180040800201484b4c800040300208020c0001a08014040004021c0000028108018a980614100494020b00008004e020048800088004088094100094180406000c006564401001400005a00080006c0040348030a400a02810f08060104002410910001000011509000050a8200004000000820000280145a10a84000821000c080110020000404000000002e100090b0840000ac2214042040002024084081102800100010d1009226090008900820828280002400808d83a20000187001036005294c60085445800b8000410000a00200c1b19470000000049001052600300100020108808084073730168401c9c3808321106784666239e580a0d8ecef54b9a072a935b297c177b54dbbd5ee9e0fd811a2b69de4b1f28656ad16880000000000000000840392cf07a056e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b4218080a0fa918fbee01a47f475d70995e78b4505bd8714962012720cab27f7e66ec4ea5b",
		expectedHeaderRLP: "f90245a0e2608bb1dd6e93302da709acfb82782ee2dcdcbaafdd07fa581958d4d0193560a01dcc4de8dec75d7aab85b567b6ccd41ad312451b948a7413f0a142fd40d49347944200000000000000000000000000000000000011a0c8286187544a27fdd14372a0182b366be0c0f0f4c4a0a2ef31ee4538972266f5a08799d21d8d3e65106c57a16ea61b4d5ad8e440753b2788e1b8fdec17d6a88c72a06de5e10918168a54b43414e95a4c965baf0bf84c0c11c0711363f663a76c02b8b901000220004001000000000100000000000000000000000010000004000000000000000000c0008000000020001000000800000000000000200200002040000000000000080010000809000020080000000000040000000000000000000000008000000000000000000004000000020000200000000000000000020100100008002000000000000000000000000000000000000020000020000100000000000000000000001000000000000004000000040000000000000010000000000000100000000000020000040000000000000000000000000000000000000000000000000000000008000000000004000000000000000000000000081000000000000000008084073730178401c9c3808306757184666239e780a0d8ecef54b9a072a935b297c177b54dbbd5ee9e0fd811a2b69de4b1f28656ad16880000000000000000840390bc3da056e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b4218080a0fa918fbee01a47f475d70995e78b4505bd8714962012720cab27f7e66ec4ea5b",
		rawTxs: []string{
			"7ef8f8a01a2c45522a69a90b583aa08a0968847a6fbbdc5480fe6f967b5fcb9384f46e9594deaddeaddeaddeaddeaddeaddeaddeaddead00019442000000000000000000000000000000000000158080830f424080b8a4440a5e2000000558000c5fc500000000000000010000000066623963000000000131b8d700000000000000000000000000000000000000000000000000000003ec02c0240000000000000000000000000000000000000000000000000000000000000001c10a3bb5847ad354f9a70b56f253baaea1c3841647851c4c62e10b22fe4e86940000000000000000000000006887246668a3b87f54deb3b94ba47a6f63f32985",
			"02f8b40a8316b3cf8405f5e100850bdfd63e00830249f09494b008aa00579c1307b0ef2c499ad98a8ce58e5880b844a9059cbb0000000000000000000000006713cbd38b831255b60b6c28cbdd15c769baad6d0000000000000000000000000000000000000000000000000000000024a12a1ec001a065ae43157da3a4f80cf3a63f572b408cde608af3f4cd98783d8277414d842b72a070caa5b8fcda2f1e9f40f8b310acbe57b95dbcd8f285775b7e53d783539beb94",
			"f9032d8301c3338406244dd88304c7fc941111111254eeb25477b68fb85ed929f73a96058280b902c412aa3caf000000000000000000000000b63aae6c353636d66df13b89ba4425cfe13d10ba000000000000000000000000420000000000000000000000000000000000000600000000000000000000000068f180fcce6836688e9084f035309e29bf0a2095000000000000000000000000b63aae6c353636d66df13b89ba4425cfe13d10ba0000000000000000000000003f343211f0487eb43af2e0e773ba012015e6651a000000000000000000000000000000000000000000000000074a17b261ebbf4000000000000000000000000000000000000000000000000000000000002b13e70000000000000000000000000000000000000000000000000000000000000004000000000000000000000000000000000000000000000000000000000000014000000000000000000000000000000000000000000000000000000000000001800000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000001120000000000000000000000000000000000000000000000000000000000f400a0c9e75c48000000000000000020120000000000000000000000000000000000000000000000000000c600006302a000000000000000000000000000000000000000000000000000000000000f5b3fee63c1e581e1b9cc9cc17616ce81f0fa5b958d36f789fb2c0042000000000000000000000000000000000000061111111254eeb25477b68fb85ed929f73a96058202a000000000000000000000000000000000000000000000000000000000001b4ccdee63c1e58185c31ffa3706d1cce9d525a00f1c7d4a2911754c42000000000000000000000000000000000000061111111254eeb25477b68fb85ed929f73a960582000000000000000000000000000037a088fb0295e0b68236fa1742c8d1ee86d682e86928ce4b32f27c2010addbdb7020a01310030aba22db3e46766fb7bc3ba666535d25dfd9df5f13d55632ec8638d01b",
			"02f901d30a8303cd348316e36084608dcd0e8302cde8945800249621da520adfdca16da20d8a5fc0f814d880b901640ddedd8400000000000000000000000000000000000000000000000000000000000000a000000000000000000000000000000000000000000000000000000000000000e00000000000000000000000000000000000000000000000000000000000000120000000000000000000000000000000000000000000000000000000000002d9f4000000000000000000000000000000000000000000000000005d423c655aa00000000000000000000000000000000000000000000000000000000000000000010000000000000000000000000eb22708b72cc00b04346eee1767c0e147f8db2d00000000000000000000000000000000000000000000000000000000000000010000000000000000000000000000000000000000000000000000769127d620c000000000000000000000000000000000000000000000000000000000000000016692be0dfa2ce53a3d8c88ebcab639cf00c16197a717bc3ddeab46bbab181bbec001a0bdfb7260ed744771034511f4823380f16bb50427e1888f352c9c94d5d569e66da05cabb47cf62ed550d06af2f9555ff290f4b403fee7e32f67f19d3948db0dc1cb",
		},
		timestamp:        1717713383,
		prevRandao:       common.HexToHash("0xd8ecef54b9a072a935b297c177b54dbbd5ee9e0fd811a2b69de4b1f28656ad16"),
		parentBeaconRoot: common.HexToHash("0xfa918fbee01a47f475d70995e78b4505bd8714962012720cab27f7e66ec4ea5b"),
	}
}

// TestExecutorRealMainnetBlocksLinkAndDecode covers spec §8's three named regression anchors.
// Re-executing them bit-exactly requires the upstream testdata/block_<N>_exec/output.json
// trie-preimage dump that ships alongside these fixtures upstream but isn't part of this module's
// source tree (see DESIGN.md); what's verified here is that the genuine mainnet header and
// transaction bytes decode correctly and that each expected header really does chain off its
// named parent, the same linkage ExecutePayload itself produces.
func TestExecutorRealMainnetBlocksLinkAndDecode(t *testing.T) {
	for _, f := range []realBlockFixture{block120794432Fixture(), block121003241Fixture(), block121057303Fixture()} {
		parent := decodeRealHeader(t, f.parentHeaderRLP)
		expected := decodeRealHeader(t, f.expectedHeaderRLP)

		require.Equal(t, f.blockNumber-1, parent.Number.Uint64(), "block %d", f.blockNumber)
		require.Equal(t, f.blockNumber, expected.Number.Uint64(), "block %d", f.blockNumber)
		require.Equal(t, parent.Hash(), expected.ParentHash, "block %d", f.blockNumber)
		require.Equal(t, coinbase, expected.Coinbase, "block %d", f.blockNumber)
		require.Equal(t, f.timestamp, expected.Time, "block %d", f.blockNumber)
		require.Equal(t, f.prevRandao, expected.MixDigest, "block %d", f.blockNumber)
		require.NotNil(t, expected.ParentBeaconRoot, "block %d", f.blockNumber)
		require.Equal(t, f.parentBeaconRoot, *expected.ParentBeaconRoot, "block %d", f.blockNumber)

		for i, raw := range f.rawTxs {
			var tx types.Transaction
			require.NoError(t, tx.UnmarshalBinary(common.FromHex(raw)), "block %d tx %d", f.blockNumber, i)
		}
	}
}

func TestExecutorComputeOutputRootIsDeterministic(t *testing.T) {
	cfg := &rollup.Config{L2ChainID: 10}
	exec := NewExecutor(log.New(), cfg, big.NewInt(10))

	parent := &types.Header{Number: big.NewInt(1), GasLimit: 30_000_000, BaseFee: big.NewInt(1), Time: 1}
	oracle := newFakeOracle()
	db := NewStateDB(log.New(), oracle, nil, types.EmptyRootHash, parent)

	attrs := emptyBlockAttrs(2, 30_000_000)
	header, err := exec.ExecutePayload(db, parent, attrs)
	require.NoError(t, err)

	root1 := exec.ComputeOutputRoot(db, header)
	root2 := exec.ComputeOutputRoot(db, header)
	require.Equal(t, root1, root2)
	require.NotEqual(t, common.Hash{}, root1)
}
