package dex

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Pool accessor selectors, called raw to avoid dragging the full pool ABI
// around for five view functions.
var (
	selToken0    = common.Hex2Bytes("0dfe1681") // token0()
	selToken1    = common.Hex2Bytes("d21220a7") // token1()
	selFee       = common.Hex2Bytes("ddca3f43") // fee()
	selLiquidity = common.Hex2Bytes("1a686502") // liquidity()
	selSlot0     = common.Hex2Bytes("3850c7bd") // slot0()
	selDecimals  = common.Hex2Bytes("313ce567") // decimals()
)

// Swap event signature for concentrated-liquidity pools:
// event Swap(address indexed sender, address indexed recipient, int256 amount0, int256 amount1, uint160 sqrtPriceX96, uint128 liquidity, int24 tick)
var SwapEventSignature = common.HexToHash("0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67")

const quoterV2ABIJSON = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "tokenIn", "type": "address"},
					{"internalType": "address", "name": "tokenOut", "type": "address"},
					{"internalType": "uint256", "name": "amountIn", "type": "uint256"},
					{"internalType": "uint24", "name": "fee", "type": "uint24"},
					{"internalType": "uint160", "name": "sqrtPriceLimitX96", "type": "uint160"}
				],
				"internalType": "struct IQuoterV2.QuoteExactInputSingleParams",
				"name": "params",
				"type": "tuple"
			}
		],
		"name": "quoteExactInputSingle",
		"outputs": [
			{"internalType": "uint256", "name": "amountOut", "type": "uint256"},
			{"internalType": "uint160", "name": "sqrtPriceX96After", "type": "uint160"},
			{"internalType": "uint32", "name": "initializedTicksCrossed", "type": "uint32"},
			{"internalType": "uint256", "name": "gasEstimate", "type": "uint256"}
		],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

const erc20SymbolABIJSON = `[{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"}]`

var (
	quoterV2ABI    abi.ABI
	erc20SymbolABI abi.ABI
)

func init() {
	var err error
	quoterV2ABI, err = abi.JSON(strings.NewReader(quoterV2ABIJSON))
	if err != nil {
		panic(err)
	}
	erc20SymbolABI, err = abi.JSON(strings.NewReader(erc20SymbolABIJSON))
	if err != nil {
		panic(err)
	}
}
