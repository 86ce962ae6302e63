// Package predeploys holds the canonical addresses of OP-Stack predeploy contracts referenced by
// the derivation and execution core.
package predeploys

import "github.com/ethereum/go-ethereum/common"

var (
	// L2ToL1MessagePasserAddr is the fixed account whose storage root is the withdrawals root
	// folded into the output root (spec §3).
	L2ToL1MessagePasserAddr = common.HexToAddress("0x4200000000000000000000000000000000000016")

	// L1BlockAddr is the predeploy the L1-info transaction calls into (spec §4.7/§6).
	L1BlockAddr = common.HexToAddress("0x4200000000000000000000000000000000000015")

	// GasPriceOracleAddr exposes L1 fee parameters to L2 transactions.
	GasPriceOracleAddr = common.HexToAddress("0x420000000000000000000000000000000000000F")

	// Create2DeployerAddr must be deployed at the Canyon activation block (spec §4.9 step 3).
	Create2DeployerAddr = common.HexToAddress("0x13b0D85CcB8bf860b6b79AF3029fCA081AE9beF2")

	// SequencerFeeVaultAddr receives transaction priority fees and is the default fee recipient
	// the attributes builder (C11) assigns to every payload.
	SequencerFeeVaultAddr = common.HexToAddress("0x4200000000000000000000000000000000000011")

	// L1FeeVaultAddr and BaseFeeVaultAddr are Ecotone-era fee-split destinations; the Ecotone
	// network upgrade redeploys their implementations behind existing proxies.
	L1FeeVaultAddr   = common.HexToAddress("0x420000000000000000000000000000000000001A")
	BaseFeeVaultAddr = common.HexToAddress("0x4200000000000000000000000000000000000019")

	// OperatorFeeVaultAddr is Isthmus's additional fee-split destination.
	OperatorFeeVaultAddr = common.HexToAddress("0x420000000000000000000000000000000000001B")
)

// Create2DeployerCodeHash is the expected runtime code hash once the Canyon-activation injection
// has run; used to short-circuit re-injection on subsequent blocks.
var Create2DeployerCodeHash = common.HexToHash("0xb0550b5b431e30d38000efb7107aaa0ade03d48a7198a14e24e143f218dfc7b")
