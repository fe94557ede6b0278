package unit

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SignatureSize is the fixed width of a Schnorr signature over secp256k1.
const SignatureSize = 64

// encode renders a unit to its canonical byte layout:
//
//	creator id       (uvarint)
//	parent count      (uvarint)
//	parent hashes      (count * 32 bytes, raw)
//	tx count          (uvarint)
//	tx[i] length + bytes  (uvarint, bytes) per entry
//	coin share length + bytes (uvarint, bytes; length 0 means absent)
//	signature         (64 bytes, only when withSig is true)
func encode(u *Unit, withSig bool) []byte {
	buf := make([]byte, 0, 128+len(u.Parents)*HashSize+u.txsLen())

	buf = binary.AppendUvarint(buf, uint64(u.Creator))

	buf = binary.AppendUvarint(buf, uint64(len(u.Parents)))
	for _, p := range u.Parents {
		buf = append(buf, p[:]...)
	}

	buf = binary.AppendUvarint(buf, uint64(len(u.Txs)))
	for _, tx := range u.Txs {
		buf = binary.AppendUvarint(buf, uint64(len(tx)))
		buf = append(buf, tx...)
	}

	buf = binary.AppendUvarint(buf, uint64(len(u.CoinShare)))
	buf = append(buf, u.CoinShare...)

	if withSig {
		buf = append(buf, u.Signature...)
	}
	return buf
}

func (u *Unit) txsLen() int {
	n := 0
	for _, tx := range u.Txs {
		n += len(tx) + binary.MaxVarintLen64
	}
	return n
}

// HashSize mirrors crypto.HashSize for local arithmetic without importing
// the crypto package twice.
const HashSize = 32

// Parse decodes a unit from its full canonical serialization (signature
// included), the inverse of Bytes().
func Parse(data []byte) (*Unit, error) {
	r := bytes.NewReader(data)

	creator, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("parse unit: creator id: %w", err)
	}

	parentCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("parse unit: parent count: %w", err)
	}
	parents := make([]Hash, parentCount)
	for i := range parents {
		if _, err := r.Read(parents[i][:]); err != nil {
			return nil, fmt.Errorf("parse unit: parent %d: %w", i, err)
		}
	}

	txCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("parse unit: tx count: %w", err)
	}
	txs := make([][]byte, txCount)
	for i := range txs {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("parse unit: tx %d length: %w", i, err)
		}
		tx := make([]byte, n)
		if n > 0 {
			if _, err := r.Read(tx); err != nil {
				return nil, fmt.Errorf("parse unit: tx %d body: %w", i, err)
			}
		}
		txs[i] = tx
	}

	coinLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("parse unit: coin share length: %w", err)
	}
	var coinShare []byte
	if coinLen > 0 {
		coinShare = make([]byte, coinLen)
		if _, err := r.Read(coinShare); err != nil {
			return nil, fmt.Errorf("parse unit: coin share body: %w", err)
		}
	}

	sig := make([]byte, SignatureSize)
	if _, err := r.Read(sig); err != nil {
		return nil, fmt.Errorf("parse unit: signature: %w", err)
	}

	return &Unit{
		Creator:   uint32(creator),
		Parents:   parents,
		Txs:       txs,
		CoinShare: coinShare,
		Signature: sig,
	}, nil
}
