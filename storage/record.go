package storage

import (
	"fmt"
	"maps"

	"github.com/jmcleod/pantrypal/internal/util"
)

const (
	// SchemeAESGCM marks a record sealed with AES-256-GCM.
	SchemeAESGCM = "aes256gcm"
	// SchemeRaw marks a record whose Ciphertext holds plaintext bytes.
	SchemeRaw = "raw"

	recordVer = 1
)

// Record is a stored blob, sealed or raw, plus free-form metadata.
type Record struct {
	Ver        int               `json:"ver"`
	Scheme     string            `json:"scheme"`
	Nonce      []byte            `json:"nonce,omitempty"`
	Ciphertext []byte            `json:"ciphertext"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return &Record{
		Ver:        r.Ver,
		Scheme:     r.Scheme,
		Nonce:      append([]byte(nil), r.Nonce...),
		Ciphertext: append([]byte(nil), r.Ciphertext...),
		Meta:       maps.Clone(r.Meta),
	}
}

// SealRecord encrypts plaintext into a Record bound to aad.
func SealRecord(key, plaintext, aad []byte) (*Record, error) {
	nonce, ct, err := util.Seal(key, plaintext, aad)
	if err != nil {
		return nil, err
	}
	return &Record{Ver: recordVer, Scheme: SchemeAESGCM, Nonce: nonce, Ciphertext: ct}, nil
}

// RawRecord stores data without encryption.
func RawRecord(data []byte) *Record {
	return &Record{Ver: recordVer, Scheme: SchemeRaw, Ciphertext: append([]byte(nil), data...)}
}

// OpenRecord decrypts a sealed Record.
func OpenRecord(key []byte, r *Record, aad []byte) ([]byte, error) {
	if r.Ver != recordVer {
		return nil, fmt.Errorf("unsupported record version: %d", r.Ver)
	}
	if r.Scheme != SchemeAESGCM {
		return nil, fmt.Errorf("unsupported record scheme: %s", r.Scheme)
	}
	return util.Open(key, r.Nonce, r.Ciphertext, aad)
}
