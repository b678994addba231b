package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const oracleABI = `[
 {"type":"function","name":"getLatestAnswer","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"int256"}]}
]`

const creditLibABI = `[
 {"type":"function","name":"computeId","stateMutability":"pure","inputs":[{"name":"line","type":"address"},{"name":"lender","type":"address"},{"name":"token","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]}
]`

const lineABI = `[
 {"type":"function","name":"ids","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"bytes32"}]},
 {"type":"function","name":"deadline","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"escrow","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"spigot","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"swapTarget","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},

 {"type":"event","name":"DeployLine","inputs":[{"name":"oracle","type":"address","indexed":true},{"name":"arbiter","type":"address","indexed":true},{"name":"borrower","type":"address","indexed":true}]},
 {"type":"event","name":"UpdateStatus","inputs":[{"name":"status","type":"uint256","indexed":true}]},
 {"type":"event","name":"AddCredit","inputs":[{"name":"lender","type":"address","indexed":true},{"name":"token","type":"address","indexed":true},{"name":"deposit","type":"uint256","indexed":true},{"name":"id","type":"bytes32","indexed":false}]},
 {"type":"event","name":"IncreaseCredit","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"deposit","type":"uint256","indexed":true}]},
 {"type":"event","name":"SetRates","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"drawnRate","type":"uint128","indexed":true},{"name":"facilityRate","type":"uint128","indexed":true}]},
 {"type":"event","name":"Borrow","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":true}]},
 {"type":"event","name":"InterestAccrued","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":true}]},
 {"type":"event","name":"RepayInterest","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":true}]},
 {"type":"event","name":"RepayPrincipal","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":true}]},
 {"type":"event","name":"WithdrawProfit","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":true}]},
 {"type":"event","name":"WithdrawDeposit","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":true}]},
 {"type":"event","name":"CloseCreditPosition","inputs":[{"name":"id","type":"bytes32","indexed":true}]},
 {"type":"event","name":"Default","inputs":[{"name":"id","type":"bytes32","indexed":true}]},
 {"type":"event","name":"Liquidate","inputs":[{"name":"id","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":true},{"name":"token","type":"address","indexed":true}]},
 {"type":"event","name":"TradeSpigotRevenue","inputs":[{"name":"revenueToken","type":"address","indexed":true},{"name":"revenueTokenAmount","type":"uint256","indexed":false},{"name":"debtToken","type":"address","indexed":true},{"name":"debtTokensBought","type":"uint256","indexed":true}]},
 {"type":"event","name":"ReservesChanged","inputs":[{"name":"token","type":"address","indexed":true},{"name":"diff","type":"int256","indexed":true},{"name":"tokenType","type":"uint256","indexed":false}]},
 {"type":"event","name":"MutualConsentRegistered","inputs":[{"name":"proposalId","type":"bytes32","indexed":false},{"name":"taker","type":"address","indexed":false}]},
 {"type":"event","name":"MutualConsentRevoked","inputs":[{"name":"proposalId","type":"bytes32","indexed":false}]}
]`

const escrowABI = `[
 {"type":"function","name":"minimumCollateralRatio","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint32"}]},
 {"type":"function","name":"getCollateralValue","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},

 {"type":"event","name":"AddCollateral","inputs":[{"name":"token","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":true}]},
 {"type":"event","name":"RemoveCollateral","inputs":[{"name":"token","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":true}]},
 {"type":"event","name":"EnableCollateral","inputs":[{"name":"token","type":"address","indexed":true}]}
]`

const spigotABI = `[
 {"type":"function","name":"operator","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"treasury","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},

 {"type":"event","name":"AddSpigot","inputs":[{"name":"revenueContract","type":"address","indexed":true},{"name":"ownerSplit","type":"uint256","indexed":false},{"name":"claimFnSig","type":"bytes4","indexed":false},{"name":"trsfrFnSig","type":"bytes4","indexed":false}]},
 {"type":"event","name":"RemoveSpigot","inputs":[{"name":"revenueContract","type":"address","indexed":true},{"name":"token","type":"address","indexed":false}]},
 {"type":"event","name":"ClaimRevenue","inputs":[{"name":"token","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":true},{"name":"escrowed","type":"uint256","indexed":false},{"name":"revenueContract","type":"address","indexed":false}]},
 {"type":"event","name":"ClaimOwnerTokens","inputs":[{"name":"token","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":true},{"name":"owner","type":"address","indexed":false}]},
 {"type":"event","name":"ClaimOperatorTokens","inputs":[{"name":"token","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":true},{"name":"operator","type":"address","indexed":false}]},
 {"type":"event","name":"UpdateOwnerSplit","inputs":[{"name":"revenueContract","type":"address","indexed":true},{"name":"split","type":"uint8","indexed":true}]},
 {"type":"event","name":"UpdateOwner","inputs":[{"name":"newOwner","type":"address","indexed":true}]},
 {"type":"event","name":"UpdateOperator","inputs":[{"name":"newOperator","type":"address","indexed":true}]},
 {"type":"event","name":"UpdateWhitelistFunction","inputs":[{"name":"func","type":"bytes4","indexed":true},{"name":"allowed","type":"bool","indexed":true}]}
]`

const factoryABI = `[
 {"type":"event","name":"DeployedSecuredLine","inputs":[{"name":"deployedAt","type":"address","indexed":true},{"name":"escrow","type":"address","indexed":true},{"name":"spigot","type":"address","indexed":true},{"name":"swapTarget","type":"address","indexed":false},{"name":"revenueSplit","type":"uint8","indexed":false}]},
 {"type":"event","name":"DeployedSpigot","inputs":[{"name":"deployedAt","type":"address","indexed":true},{"name":"owner","type":"address","indexed":true},{"name":"operator","type":"address","indexed":false}]},
 {"type":"event","name":"DeployedEscrow","inputs":[{"name":"deployedAt","type":"address","indexed":true},{"name":"minCRatio","type":"uint32","indexed":true},{"name":"oracle","type":"address","indexed":true},{"name":"owner","type":"address","indexed":false}]}
]`

const erc20ABI = `[
 {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
 {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
 {"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

const yearnLensABI = `[
 {"type":"function","name":"getPriceUsdcRecommended","stateMutability":"view","inputs":[{"name":"tokenAddress","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

var (
	oracleContract    = mustParse(oracleABI)
	creditLibContract = mustParse(creditLibABI)
	lineContract      = mustParse(lineABI)
	escrowContract    = mustParse(escrowABI)
	spigotContract    = mustParse(spigotABI)
	factoryContract   = mustParse(factoryABI)
	erc20Contract     = mustParse(erc20ABI)
	yearnLensContract = mustParse(yearnLensABI)
)
