package hubble

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// On-chain scaling: base asset quantities carry 18 decimals, prices 6.
	quantityDecimals = 18
	priceDecimals    = 6
)

// SignedOrder is one maker order ready for submission. BaseAssetQuantity is
// signed and scaled to 18 decimals, Price to 6, matching the order hash the
// venue verifies on-chain.
type SignedOrder struct {
	AMMIndex          int64
	Trader            common.Address
	BaseAssetQuantity *big.Int
	Price             *big.Int
	Salt              *big.Int
	ReduceOnly        bool
	Signature         string
}

// Signer produces EIP-712 order signatures for the maker venue's orderbook
// contract.
type Signer struct {
	privKey   *ecdsa.PrivateKey
	address   common.Address
	chainID   int64
	orderBook common.Address
}

func NewSigner(hexKey string, chainID int64, orderBook string) (*Signer, error) {
	clean := strings.TrimSpace(hexKey)
	if clean == "" {
		return nil, errors.New("private key is required")
	}
	clean = strings.TrimPrefix(clean, "0x")
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(orderBook) {
		return nil, fmt.Errorf("invalid orderbook address %q", orderBook)
	}
	return &Signer{
		privKey:   key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:   chainID,
		orderBook: common.HexToAddress(orderBook),
	}, nil
}

func (s *Signer) Address() common.Address {
	return s.address
}

// SignOrder builds and signs one order. Quantity is the human-readable
// signed size; price the human-readable limit price.
func (s *Signer) SignOrder(ammIndex int64, quantity, price float64, reduceOnly bool, salt *big.Int) (SignedOrder, error) {
	if quantity == 0 {
		return SignedOrder{}, errors.New("quantity must be non-zero")
	}
	if price <= 0 {
		return SignedOrder{}, errors.New("price must be > 0")
	}
	scaledQty, err := scaleToInt(quantity, quantityDecimals)
	if err != nil {
		return SignedOrder{}, err
	}
	scaledPrice, err := scaleToInt(price, priceDecimals)
	if err != nil {
		return SignedOrder{}, err
	}
	order := SignedOrder{
		AMMIndex:          ammIndex,
		Trader:            s.address,
		BaseAssetQuantity: scaledQty,
		Price:             scaledPrice,
		Salt:              new(big.Int).Set(salt),
		ReduceOnly:        reduceOnly,
	}
	digest, err := s.orderDigest(order)
	if err != nil {
		return SignedOrder{}, err
	}
	sig, err := crypto.Sign(digest, s.privKey)
	if err != nil {
		return SignedOrder{}, err
	}
	sig[64] += 27
	order.Signature = hexutil.Encode(sig)
	return order, nil
}

func (s *Signer) orderDigest(order SignedOrder) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "ammIndex", Type: "uint256"},
				{Name: "trader", Type: "address"},
				{Name: "baseAssetQuantity", Type: "int256"},
				{Name: "price", Type: "uint256"},
				{Name: "salt", Type: "uint256"},
				{Name: "reduceOnly", Type: "bool"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Hubble",
			Version:           "2.0",
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: s.orderBook.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"ammIndex":          math.NewHexOrDecimal256(order.AMMIndex),
			"trader":            order.Trader.Hex(),
			"baseAssetQuantity": (*math.HexOrDecimal256)(order.BaseAssetQuantity),
			"price":             (*math.HexOrDecimal256)(order.Price),
			"salt":              (*math.HexOrDecimal256)(order.Salt),
			"reduceOnly":        order.ReduceOnly,
		},
	}
	domainHash, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, err
	}
	messageHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256([]byte("\x19\x01"), domainHash, messageHash), nil
}

// scaleToInt converts a human-readable value to a fixed-decimal integer via
// its decimal rendering, so scaling does not lose precision to float
// multiplication.
func scaleToInt(v float64, decimals int) (*big.Int, error) {
	rendered := strings.TrimPrefix(fmt.Sprintf("%.*f", decimals, v), "+")
	neg := strings.HasPrefix(rendered, "-")
	rendered = strings.TrimPrefix(rendered, "-")
	parts := strings.SplitN(rendered, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	for len(frac) < decimals {
		frac += "0"
	}
	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("cannot scale %f", v)
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}
