package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Supported network tags.
const (
	NetworkBase          = "base"
	NetworkBaseSepolia   = "base-sepolia"
	NetworkAvalanche     = "avalanche"
	NetworkAvalancheFuji = "avalanche-fuji"
)

// NetworkConfig holds the chain parameters for one supported network.
type NetworkConfig struct {
	ChainID *big.Int
	Testnet bool
	USDC    AssetInfo
}

// AssetInfo describes a supported ERC-20 asset and its EIP-712 domain
// parameters.
type AssetInfo struct {
	Address  string
	Name     string
	Version  string
	Decimals int
}

// networkConfigs maps network tag to chain parameters. Read-only after
// package init.
var networkConfigs = map[string]NetworkConfig{
	NetworkBase: {
		ChainID: big.NewInt(8453),
		USDC: AssetInfo{
			Address:  "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	},
	NetworkBaseSepolia: {
		ChainID: big.NewInt(84532),
		Testnet: true,
		USDC: AssetInfo{
			Address:  "0x036cbd53842c5426634e7929541ec2318f3dcf7e",
			Name:     "USDC",
			Version:  "2",
			Decimals: 6,
		},
	},
	NetworkAvalanche: {
		ChainID: big.NewInt(43114),
		USDC: AssetInfo{
			Address:  "0xb97ef9ef8734c71904d8002f8b6bc66dd9c48a6e",
			Name:     "USD Coin",
			Version:  "2",
			Decimals: 6,
		},
	},
	NetworkAvalancheFuji: {
		ChainID: big.NewInt(43113),
		Testnet: true,
		USDC: AssetInfo{
			Address:  "0x5425890298aed601595a70ab815c96711a31bc65",
			Name:     "USDC",
			Version:  "2",
			Decimals: 6,
		},
	},
}

// GetNetworkConfig returns the chain parameters for a network tag.
func GetNetworkConfig(network string) (NetworkConfig, error) {
	config, ok := networkConfigs[network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported network: %s", network)
	}

	return config, nil
}

// IsSupportedNetwork reports whether the network tag is known.
func IsSupportedNetwork(network string) bool {
	_, ok := networkConfigs[network]
	return ok
}

// SupportedNetworks returns the known network tags in stable order.
func SupportedNetworks() []string {
	return []string{NetworkBase, NetworkBaseSepolia, NetworkAvalanche, NetworkAvalancheFuji}
}

// USDCAddress returns the lowercase USDC contract address for a network.
func USDCAddress(network string) (string, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return "", err
	}

	return strings.ToLower(config.USDC.Address), nil
}
