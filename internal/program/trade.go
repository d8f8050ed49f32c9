package program

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/near/borsh-go"
)

// TradeState is the lifecycle position of a trade.
type TradeState uint8

const (
	TradeInitialized TradeState = iota
	TradeFundsLocked
	TradeDocumentsSubmitted
	TradeCancelled
	TradeFailed
	TradeShipmentConfirmed
	TradeSettled
)

var tradeStateNames = [...]string{
	"Initialized",
	"FundsLocked",
	"DocumentsSubmitted",
	"Cancelled",
	"Failed",
	"ShipmentConfirmed",
	"Settled",
}

func (s TradeState) String() string {
	if int(s) < len(tradeStateNames) {
		return tradeStateNames[s]
	}
	return fmt.Sprintf("TradeState(%d)", uint8(s))
}

// Trade is the escrow account of one purchase.
type Trade struct {
	Buyer           solana.PublicKey
	Seller          solana.PublicKey
	FreightVerifier solana.PublicKey
	Mint            solana.PublicKey
	Amount          uint64
	DocumentHash    *[32]byte
	State           TradeState
	Seed            uint64
	Bump            uint8
}

// tradeWire mirrors the borsh layout after the discriminator.
type tradeWire struct {
	Buyer           [32]byte
	Seller          [32]byte
	FreightVerifier [32]byte
	Mint            [32]byte
	Amount          uint64
	DocumentHash    *[32]byte
	State           uint8
	Seed            uint64
	Bump            uint8
}

var (
	ErrNotTradeAccount = errors.New("account is not a trade")
	ErrShortAccount    = errors.New("account data too short")
)

// fixed portion: four keys, amount, option tag, state, seed, bump
const (
	optionTagOffset = discriminatorLength + 4*32 + 8
	tradeFixedSize  = 4*32 + 8 + 1 + 1 + 8 + 1
)

// DecodeTrade parses raw account data. Trailing allocation padding is
// ignored.
func DecodeTrade(data []byte) (*Trade, error) {
	disc := AccountDiscriminator("Trade")
	if len(data) < discriminatorLength || !bytes.Equal(data[:discriminatorLength], disc[:]) {
		return nil, ErrNotTradeAccount
	}
	if len(data) <= optionTagOffset {
		return nil, ErrShortAccount
	}
	size := tradeFixedSize
	switch data[optionTagOffset] {
	case 0:
	case 1:
		size += 32
	default:
		return nil, fmt.Errorf("invalid document hash tag %d", data[optionTagOffset])
	}
	body := data[discriminatorLength:]
	if len(body) < size {
		return nil, ErrShortAccount
	}

	var w tradeWire
	if err := borsh.Deserialize(&w, body[:size]); err != nil {
		return nil, fmt.Errorf("decode trade: %w", err)
	}
	return &Trade{
		Buyer:           solana.PublicKeyFromBytes(w.Buyer[:]),
		Seller:          solana.PublicKeyFromBytes(w.Seller[:]),
		FreightVerifier: solana.PublicKeyFromBytes(w.FreightVerifier[:]),
		Mint:            solana.PublicKeyFromBytes(w.Mint[:]),
		Amount:          w.Amount,
		DocumentHash:    w.DocumentHash,
		State:           TradeState(w.State),
		Seed:            w.Seed,
		Bump:            w.Bump,
	}, nil
}

// EncodeTrade is the inverse of DecodeTrade.
func EncodeTrade(t *Trade) ([]byte, error) {
	w := tradeWire{
		Buyer:           t.Buyer,
		Seller:          t.Seller,
		FreightVerifier: t.FreightVerifier,
		Mint:            t.Mint,
		Amount:          t.Amount,
		DocumentHash:    t.DocumentHash,
		State:           uint8(t.State),
		Seed:            t.Seed,
		Bump:            t.Bump,
	}
	body, err := borsh.Serialize(w)
	if err != nil {
		return nil, fmt.Errorf("encode trade: %w", err)
	}
	disc := AccountDiscriminator("Trade")
	return append(disc[:], body...), nil
}
