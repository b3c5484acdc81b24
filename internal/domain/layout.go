package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Fixed account layouts. Field order and widths follow the on-chain program:
// 8-byte discriminator, then fields little endian, strings as u32 length + bytes.
const (
	DiscriminatorLen = 8

	MarketLen = DiscriminatorLen +
		IdentityLen + // authority
		IdentityLen + // oracle
		4 + QuestionMaxLen + // question
		8 + // total_yes
		8 + // total_no
		1 + // outcome
		1 + // status
		8 + // end_time
		1 // is_curated

	BetLen = DiscriminatorLen +
		IdentityLen + // bettor
		IdentityLen + // market
		1 + // side
		8 + // amount
		1 // withdrawn
)

var (
	marketDiscriminator = accountDiscriminator("Market")
	betDiscriminator    = accountDiscriminator("Bet")
)

// accountDiscriminator is sha256("account:<Name>")[:8].
func accountDiscriminator(name string) [DiscriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [DiscriminatorLen]byte
	copy(d[:], sum[:DiscriminatorLen])
	return d
}

// EncodeMarket serializes m into exactly MarketLen bytes. Trailing space is zero.
func EncodeMarket(m Market) ([]byte, error) {
	if len(m.Question) > QuestionMaxLen {
		return nil, fmt.Errorf("encode market: %w", ErrQuestionTooLong)
	}
	buf := make([]byte, MarketLen)
	off := copy(buf, marketDiscriminator[:])
	off += copy(buf[off:], m.Authority[:])
	off += copy(buf[off:], m.Oracle[:])
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(m.Question)))
	off += 4
	off += copy(buf[off:], m.Question)
	binary.LittleEndian.PutUint64(buf[off:], m.TotalYes)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], m.TotalNo)
	off += 8
	buf[off] = byte(m.Outcome)
	off++
	buf[off] = byte(m.Status)
	off++
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.EndTime))
	off += 8
	buf[off] = boolByte(m.IsCurated)
	return buf, nil
}

// DecodeMarket parses a Market layout. The Key field is left zero.
func DecodeMarket(data []byte) (Market, error) {
	var m Market
	if len(data) < MarketLen {
		return m, fmt.Errorf("decode market: short buffer %d < %d", len(data), MarketLen)
	}
	if [DiscriminatorLen]byte(data[:DiscriminatorLen]) != marketDiscriminator {
		return m, fmt.Errorf("decode market: discriminator mismatch")
	}
	off := DiscriminatorLen
	off += copy(m.Authority[:], data[off:])
	off += copy(m.Oracle[:], data[off:])
	qlen := int(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if qlen > QuestionMaxLen {
		return m, fmt.Errorf("decode market: question length %d exceeds %d", qlen, QuestionMaxLen)
	}
	m.Question = string(data[off : off+qlen])
	off += qlen
	m.TotalYes = binary.LittleEndian.Uint64(data[off:])
	off += 8
	m.TotalNo = binary.LittleEndian.Uint64(data[off:])
	off += 8
	m.Outcome = Outcome(data[off])
	off++
	m.Status = Status(data[off])
	off++
	m.EndTime = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	curated, err := byteBool(data[off])
	if err != nil {
		return m, fmt.Errorf("decode market: is_curated: %w", err)
	}
	m.IsCurated = curated

	if m.Outcome > OutcomeNo {
		return m, fmt.Errorf("decode market: invalid outcome %d", m.Outcome)
	}
	if m.Status > StatusResolved {
		return m, fmt.Errorf("decode market: invalid status %d", m.Status)
	}
	return m, nil
}

// EncodeBet serializes b into exactly BetLen bytes.
func EncodeBet(b Bet) []byte {
	buf := make([]byte, BetLen)
	off := copy(buf, betDiscriminator[:])
	off += copy(buf[off:], b.Bettor[:])
	off += copy(buf[off:], b.Market[:])
	buf[off] = byte(b.Side)
	off++
	binary.LittleEndian.PutUint64(buf[off:], b.Amount)
	off += 8
	buf[off] = boolByte(b.Withdrawn)
	return buf
}

// DecodeBet parses a Bet layout. The Key field is left zero.
func DecodeBet(data []byte) (Bet, error) {
	var b Bet
	if len(data) < BetLen {
		return b, fmt.Errorf("decode bet: short buffer %d < %d", len(data), BetLen)
	}
	if [DiscriminatorLen]byte(data[:DiscriminatorLen]) != betDiscriminator {
		return b, fmt.Errorf("decode bet: discriminator mismatch")
	}
	off := DiscriminatorLen
	off += copy(b.Bettor[:], data[off:])
	off += copy(b.Market[:], data[off:])
	b.Side = Side(data[off])
	off++
	b.Amount = binary.LittleEndian.Uint64(data[off:])
	off += 8
	withdrawn, err := byteBool(data[off])
	if err != nil {
		return b, fmt.Errorf("decode bet: withdrawn: %w", err)
	}
	b.Withdrawn = withdrawn

	if !b.Side.Valid() {
		return b, fmt.Errorf("decode bet: invalid side %d", b.Side)
	}
	return b, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func byteBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool byte %d", b)
	}
}
