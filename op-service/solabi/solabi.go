// Package solabi provides small, allocation-light helpers for reading and writing the
// fixed-width, left-padded-to-32-bytes encoding that Solidity ABI calldata uses — exactly the
// subset the L1-info transaction codec (C14) and deposit log decoder (C12) need, without pulling
// in a full ABI reflection library for a handful of known-shape values.
package solabi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const wordSize = 32

var ErrInvalidSignature = errors.New("invalid function signature")

func WriteSignature(w io.Writer, sig []byte) error {
	if len(sig) != 4 {
		return fmt.Errorf("signature must be 4 bytes, got %d", len(sig))
	}
	_, err := w.Write(sig)
	return err
}

func ReadAndValidateSignature(r io.Reader, expected []byte) ([]byte, error) {
	var sig [4]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		return nil, fmt.Errorf("failed to read signature: %w", err)
	}
	if !bytes.Equal(sig[:], expected) {
		return nil, fmt.Errorf("%w: got %x, expected %x", ErrInvalidSignature, sig, expected)
	}
	return sig[:], nil
}

func WriteUint64(w io.Writer, v uint64) error {
	var buf [wordSize]byte
	binary.BigEndian.PutUint64(buf[wordSize-8:], v)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint64(r io.Reader) (uint64, error) {
	var buf [wordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("failed to read uint64 word: %w", err)
	}
	for _, b := range buf[:wordSize-8] {
		if b != 0 {
			return 0, fmt.Errorf("uint64 word has non-zero padding")
		}
	}
	return binary.BigEndian.Uint64(buf[wordSize-8:]), nil
}

func WriteUint256(w io.Writer, v *big.Int) error {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("cannot encode negative uint256")
	}
	b := v.Bytes()
	if len(b) > wordSize {
		return fmt.Errorf("uint256 value overflows 32 bytes")
	}
	var buf [wordSize]byte
	copy(buf[wordSize-len(b):], b)
	_, err := w.Write(buf[:])
	return err
}

func ReadUint256(r io.Reader) (*big.Int, error) {
	var buf [wordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("failed to read uint256 word: %w", err)
	}
	return new(big.Int).SetBytes(buf[:]), nil
}

func WriteHash(w io.Writer, h common.Hash) error {
	_, err := w.Write(h[:])
	return err
}

func ReadHash(r io.Reader) (common.Hash, error) {
	var h common.Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return common.Hash{}, fmt.Errorf("failed to read hash word: %w", err)
	}
	return h, nil
}

func WriteAddress(w io.Writer, a common.Address) error {
	var buf [wordSize]byte
	copy(buf[wordSize-common.AddressLength:], a[:])
	_, err := w.Write(buf[:])
	return err
}

func ReadAddress(r io.Reader) (common.Address, error) {
	var buf [wordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return common.Address{}, fmt.Errorf("failed to read address word: %w", err)
	}
	for _, b := range buf[:wordSize-common.AddressLength] {
		if b != 0 {
			return common.Address{}, fmt.Errorf("address word has non-zero padding")
		}
	}
	var a common.Address
	copy(a[:], buf[wordSize-common.AddressLength:])
	return a, nil
}

// EthBytes32 is a left-as-is 32-byte word, used for the legacy L1 fee overhead/scalar fields.
type EthBytes32 [32]byte

func WriteEthBytes32(w io.Writer, b EthBytes32) error {
	_, err := w.Write(b[:])
	return err
}

func ReadEthBytes32(r io.Reader) (EthBytes32, error) {
	var b EthBytes32
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return EthBytes32{}, fmt.Errorf("failed to read bytes32 word: %w", err)
	}
	return b, nil
}

func WriteBool(w io.Writer, v bool) error {
	var buf [wordSize]byte
	if v {
		buf[wordSize-1] = 1
	}
	_, err := w.Write(buf[:])
	return err
}

func ReadBool(r io.Reader) (bool, error) {
	var buf [wordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, fmt.Errorf("failed to read bool word: %w", err)
	}
	for _, b := range buf[:wordSize-1] {
		if b != 0 {
			return false, fmt.Errorf("bool word has non-zero padding")
		}
	}
	if buf[wordSize-1] > 1 {
		return false, fmt.Errorf("bool word out of range: %d", buf[wordSize-1])
	}
	return buf[wordSize-1] == 1, nil
}

// WriteBytes writes a dynamic `bytes` value: a 32-byte length word, the data, then zero-padding to
// the next word boundary.
func WriteBytes(w io.Writer, data []byte) error {
	if err := WriteUint64(w, uint64(len(data))); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if pad := (wordSize - len(data)%wordSize) % wordSize; pad != 0 {
		_, err := w.Write(make([]byte, pad))
		return err
	}
	return nil
}

func ReadBytes(r io.Reader) ([]byte, error) {
	length, err := ReadUint64(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bytes length: %w", err)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read bytes payload: %w", err)
	}
	if pad := (wordSize - int(length)%wordSize) % wordSize; pad != 0 {
		padding := make([]byte, pad)
		if _, err := io.ReadFull(r, padding); err != nil {
			return nil, fmt.Errorf("failed to read bytes padding: %w", err)
		}
		for _, b := range padding {
			if b != 0 {
				return nil, fmt.Errorf("non-zero padding in bytes value")
			}
		}
	}
	return data, nil
}

// EmptyReader reports whether r has been fully consumed.
func EmptyReader(r io.Reader) bool {
	var b [1]byte
	n, err := r.Read(b[:])
	return n == 0 && errors.Is(err, io.EOF)
}
