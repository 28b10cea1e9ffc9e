package cache

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/chacha20poly1305"
)

// Serializer converts payloads to and from bytes.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Round trip: Deserialize(Serialize(x)) must equal x for supported values,
//   modulo the generic representation the codec decodes into.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte) (any, error)
}

// MsgpackSerializer is the default serializer.
type MsgpackSerializer struct{}

// Serialize encodes v as msgpack.
func (MsgpackSerializer) Serialize(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Deserialize decodes msgpack into a generic value.
func (MsgpackSerializer) Deserialize(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// JSONSerializer encodes payloads as JSON. Numbers decode as float64.
type JSONSerializer struct{}

// Serialize encodes v as JSON.
func (JSONSerializer) Serialize(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Deserialize decodes JSON into a generic value.
func (JSONSerializer) Deserialize(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

const (
	flagPlain   byte = 0
	flagGzipped byte = 1
)

// CompressingSerializer gzips the output of Inner when it reaches Threshold
// bytes. A one-byte header records whether the body is compressed.
type CompressingSerializer struct {
	Inner     Serializer
	Threshold int
}

// NewCompressingSerializer wraps inner (MsgpackSerializer when nil).
func NewCompressingSerializer(inner Serializer, threshold int) *CompressingSerializer {
	if inner == nil {
		inner = MsgpackSerializer{}
	}
	return &CompressingSerializer{Inner: inner, Threshold: threshold}
}

// Serialize encodes v and compresses it when large enough.
func (s *CompressingSerializer) Serialize(v any) ([]byte, error) {
	data, err := s.Inner.Serialize(v)
	if err != nil {
		return nil, err
	}
	if len(data) < s.Threshold {
		return append([]byte{flagPlain}, data...), nil
	}
	zipped, err := gzipBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, "compress payload")
	}
	return append([]byte{flagGzipped}, zipped...), nil
}

// Deserialize reverses Serialize.
func (s *CompressingSerializer) Deserialize(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, errors.New("empty compressed payload")
	}
	body := data[1:]
	switch data[0] {
	case flagPlain:
	case flagGzipped:
		inflated, err := gunzipBytes(body)
		if err != nil {
			return nil, newError("inflate", "", ErrDecompression, err)
		}
		body = inflated
	default:
		return nil, errors.Newf("unknown compression flag %d", data[0])
	}
	return s.Inner.Deserialize(body)
}

// EncryptingSerializer seals the output of Inner with XChaCha20-Poly1305.
// The random nonce is prepended to the ciphertext.
type EncryptingSerializer struct {
	inner Serializer
	aead  cipher.AEAD
}

// NewEncryptingSerializer wraps inner (MsgpackSerializer when nil) with a
// 32-byte key.
func NewEncryptingSerializer(inner Serializer, key []byte) (*EncryptingSerializer, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Wrapf(ErrInvalidEncryptionKey, "got %d bytes, want %d", len(key), chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "init cipher")
	}
	if inner == nil {
		inner = MsgpackSerializer{}
	}
	return &EncryptingSerializer{inner: inner, aead: aead}, nil
}

// Serialize encodes and seals v.
func (s *EncryptingSerializer) Serialize(v any) ([]byte, error) {
	plain, err := s.inner.Serialize(v)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plain)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

// Deserialize opens and decodes data.
func (s *EncryptingSerializer) Deserialize(data []byte) (any, error) {
	n := s.aead.NonceSize()
	if len(data) < n+s.aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, errors.Wrap(err, "open ciphertext")
	}
	return s.inner.Deserialize(plain)
}

var (
	_ Serializer = MsgpackSerializer{}
	_ Serializer = JSONSerializer{}
	_ Serializer = (*CompressingSerializer)(nil)
	_ Serializer = (*EncryptingSerializer)(nil)
)
