package adapter

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

// tronAddressVersion is the version byte of mainnet TRON addresses ("41" in hex, "T" in base58)
const tronAddressVersion byte = 0x41

// NormalizeTronAddress returns the base58check form of a TRON address given
// either as base58 ("T...") or as hex with or without the 41 prefix. Hex
// input is matched case-insensitively.
func NormalizeTronAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if strings.HasPrefix(addr, "T") {
		payload, version, err := base58.CheckDecode(addr)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidAddress, addr, err)
		}
		if version != tronAddressVersion || len(payload) != common.AddressLength {
			return "", fmt.Errorf("%w: %s is not a TRON address", ErrInvalidAddress, addr)
		}
		return addr, nil
	}

	h := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(h) == 2*common.AddressLength {
		h = "41" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil || len(raw) != common.AddressLength+1 {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	if raw[0] != tronAddressVersion {
		return "", fmt.Errorf("%w: %s has version byte %#x", ErrInvalidAddress, addr, raw[0])
	}

	return base58.CheckEncode(raw[1:], raw[0]), nil
}

// TronAddressHex returns the 41-prefixed lowercase hex form of a TRON address
func TronAddressHex(addr string) (string, error) {
	b58, err := NormalizeTronAddress(addr)
	if err != nil {
		return "", err
	}
	payload, version, err := base58.CheckDecode(b58)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return hex.EncodeToString(append([]byte{version}, payload...)), nil
}

// NormalizeEVMAddress validates a hex EVM address and returns its checksummed form
func NormalizeEVMAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %s", ErrInvalidAddress, addr)
	}
	return common.HexToAddress(addr).Hex(), nil
}

// SameEVMAddress compares two hex addresses ignoring case and checksum
func SameEVMAddress(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}
