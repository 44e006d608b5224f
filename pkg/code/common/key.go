package common

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

type Key struct {
	bytesValue  []byte
	stringValue string
}

func NewKeyFromBytes(value []byte) (*Key, error) {
	k := &Key{
		bytesValue:  value,
		stringValue: base58.Encode(value),
	}

	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

func NewKeyFromString(value string) (*Key, error) {
	bytesValue, err := base58.Decode(value)
	if err != nil {
		return nil, errors.Wrap(err, "error decoding string as base58")
	}

	k := &Key{
		bytesValue:  bytesValue,
		stringValue: value,
	}

	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

// NewKeyFromFile reads a private key stored as a JSON byte array, the format
// written by solana-keygen.
func NewKeyFromFile(path string) (*Key, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading key file")
	}

	var value []byte
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, errors.Wrap(err, "error decoding key file")
	}
	for _, i := range ints {
		if i < 0 || i > 255 {
			return nil, errors.Errorf("invalid key byte %d", i)
		}
		value = append(value, byte(i))
	}

	k, err := NewKeyFromBytes(value)
	if err != nil {
		return nil, err
	}
	if k.IsPublic() {
		return nil, errors.New("key file doesn't contain a private key")
	}
	return k, nil
}

func NewRandomKey() (*Key, error) {
	_, privateKeyBytes, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "error generating private key")
	}

	return NewKeyFromBytes(privateKeyBytes)
}

func (k *Key) ToBytes() []byte {
	return k.bytesValue
}

func (k *Key) ToBase58() string {
	return k.stringValue
}

func (k *Key) IsPublic() bool {
	return len(k.bytesValue) != ed25519.PrivateKeySize
}

// WriteToFile stores the key as a JSON byte array readable by NewKeyFromFile.
// Existing files are never overwritten.
func (k *Key) WriteToFile(path string) error {
	ints := make([]int, len(k.bytesValue))
	for i, b := range k.bytesValue {
		ints[i] = int(b)
	}

	encoded, err := json.Marshal(ints)
	if err != nil {
		return errors.Wrap(err, "error encoding key")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "error creating key directory")
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return errors.Wrap(err, "error creating key file")
	}
	defer f.Close()

	if _, err := f.Write(encoded); err != nil {
		return errors.Wrap(err, "error writing key file")
	}
	return nil
}

func (k *Key) Validate() error {
	if k == nil {
		return errors.New("key is nil")
	}

	if len(k.bytesValue) != ed25519.PublicKeySize && len(k.bytesValue) != ed25519.PrivateKeySize {
		return errors.New("key must be an ed25519 public or private key")
	}

	if base58.Encode(k.bytesValue) != k.stringValue {
		return errors.New("bytes and string representation don't match")
	}

	return nil
}
