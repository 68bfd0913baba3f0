package eas

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// easABIJSON is the subset of the EAS contract interface used here.
const easABIJSON = `[
  {
    "type": "function",
    "name": "attest",
    "stateMutability": "payable",
    "inputs": [
      {
        "name": "request",
        "type": "tuple",
        "components": [
          {"name": "schema", "type": "bytes32"},
          {
            "name": "data",
            "type": "tuple",
            "components": [
              {"name": "recipient", "type": "address"},
              {"name": "expirationTime", "type": "uint64"},
              {"name": "revocable", "type": "bool"},
              {"name": "refUID", "type": "bytes32"},
              {"name": "data", "type": "bytes"},
              {"name": "value", "type": "uint256"}
            ]
          }
        ]
      }
    ],
    "outputs": [{"name": "", "type": "bytes32"}]
  },
  {
    "type": "function",
    "name": "getAttestation",
    "stateMutability": "view",
    "inputs": [{"name": "uid", "type": "bytes32"}],
    "outputs": [
      {
        "name": "",
        "type": "tuple",
        "components": [
          {"name": "uid", "type": "bytes32"},
          {"name": "schema", "type": "bytes32"},
          {"name": "time", "type": "uint64"},
          {"name": "expirationTime", "type": "uint64"},
          {"name": "revocationTime", "type": "uint64"},
          {"name": "refUID", "type": "bytes32"},
          {"name": "recipient", "type": "address"},
          {"name": "attester", "type": "address"},
          {"name": "revocable", "type": "bool"},
          {"name": "data", "type": "bytes"}
        ]
      }
    ]
  },
  {
    "type": "event",
    "name": "Attested",
    "anonymous": false,
    "inputs": [
      {"name": "recipient", "type": "address", "indexed": true},
      {"name": "attester", "type": "address", "indexed": true},
      {"name": "uid", "type": "bytes32", "indexed": false},
      {"name": "schemaUID", "type": "bytes32", "indexed": true}
    ]
  }
]`

// schemaRegistryABIJSON is the subset of the SchemaRegistry interface used here.
const schemaRegistryABIJSON = `[
  {
    "type": "function",
    "name": "register",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "schema", "type": "string"},
      {"name": "resolver", "type": "address"},
      {"name": "revocable", "type": "bool"}
    ],
    "outputs": [{"name": "", "type": "bytes32"}]
  }
]`

var (
	easABI            = mustParseABI(easABIJSON)
	schemaRegistryABI = mustParseABI(schemaRegistryABIJSON)
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("eas: invalid ABI: " + err.Error())
	}
	return parsed
}

// Attestation mirrors the EAS Attestation struct. Field names and order
// follow the ABI tuple so unpacked values convert directly.
type Attestation struct {
	Uid            [32]byte
	Schema         [32]byte
	Time           uint64
	ExpirationTime uint64
	RevocationTime uint64
	RefUID         [32]byte
	Recipient      common.Address
	Attester       common.Address
	Revocable      bool
	Data           []byte
}

// AttestationRequestData mirrors the EAS AttestationRequestData struct.
type AttestationRequestData struct {
	Recipient      common.Address
	ExpirationTime uint64
	Revocable      bool
	RefUID         [32]byte
	Data           []byte
	Value          *big.Int
}

// AttestationRequest mirrors the EAS AttestationRequest struct.
type AttestationRequest struct {
	Schema [32]byte
	Data   AttestationRequestData
}

// AttestedTopic is the topic hash of the Attested event.
func AttestedTopic() common.Hash {
	return easABI.Events["Attested"].ID
}
