package artifacts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const contractDeployerABIJSON = `[
  {
    "type": "function",
    "name": "create",
    "stateMutability": "payable",
    "inputs": [
      {"name": "_salt", "type": "bytes32"},
      {"name": "_bytecodeHash", "type": "bytes32"},
      {"name": "_input", "type": "bytes"}
    ],
    "outputs": [{"name": "", "type": "address"}]
  },
  {
    "type": "function",
    "name": "create2",
    "stateMutability": "payable",
    "inputs": [
      {"name": "_salt", "type": "bytes32"},
      {"name": "_bytecodeHash", "type": "bytes32"},
      {"name": "_input", "type": "bytes"}
    ],
    "outputs": [{"name": "", "type": "address"}]
  },
  {
    "type": "event",
    "name": "ContractDeployed",
    "anonymous": false,
    "inputs": [
      {"name": "deployerAddress", "type": "address", "indexed": true},
      {"name": "bytecodeHash", "type": "bytes32", "indexed": true},
      {"name": "contractAddress", "type": "address", "indexed": true}
    ]
  }
]`

// ContractDeployerABI is the part of the rollup's ContractDeployer system
// contract used for deployments.
var ContractDeployerABI = mustParseABI(contractDeployerABIJSON)

// ContractDeployedEvent is emitted by the ContractDeployer for every new contract
var ContractDeployedEvent = ContractDeployerABI.Events["ContractDeployed"]

func mustParseABI(s string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return &parsed
}
