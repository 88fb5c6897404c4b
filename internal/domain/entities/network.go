package entities

import (
	"strconv"
	"strings"
)

// Network describes the chain the custodial wallets live on
type Network struct {
	ChainID       int64  `json:"chainId"`
	Name          string `json:"name"`
	ExplorerURL   string `json:"explorerUrl,omitempty"`
	TokenContract string `json:"tokenContract"`
	TokenSymbol   string `json:"tokenSymbol"`
	TokenDecimals int32  `json:"tokenDecimals"`
}

// CAIP2ID returns the CAIP-2 formatted chain ID
func (n *Network) CAIP2ID() string {
	return "eip155:" + strconv.FormatInt(n.ChainID, 10)
}

// Tag is the network label stored on wallets
func (n *Network) Tag() string {
	if n.Name != "" {
		return n.Name
	}
	return n.CAIP2ID()
}

// TxURL returns the explorer link for a transaction hash
func (n *Network) TxURL(txHash string) string {
	if n.ExplorerURL == "" || txHash == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + txHash
}

// AddressURL returns the explorer link for an address
func (n *Network) AddressURL(address string) string {
	if n.ExplorerURL == "" || address == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/address/" + address
}
