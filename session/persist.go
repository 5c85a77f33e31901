package session

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/pantrypal/internal/util"
	"github.com/jmcleod/pantrypal/storage"
)

const (
	// Namespace is the fixed storage namespace holding the Session State.
	Namespace = "auth-storage"

	stateKey      = "state"
	masterKeyKey  = "master-key"
	stateKeyInfo  = "pantrypal:session:v1"
	masterKeyAAD  = "pantrypal:session_master_key:v1"
	persistFormat = 0
)

var errPersisterClosed = errors.New("session persister closed")

// ErrCorruptState is returned by Load when the saved record cannot be
// decrypted or decoded.
var ErrCorruptState = errors.New("saved session state is unreadable")

// persisted is the on-disk envelope around State.
type persisted struct {
	State   State `json:"state"`
	Version int   `json:"version"`
}

// RepositoryPersister seals the Session State with AES-256-GCM and stores
// it in a storage.Repository under Namespace.
//
// The record key is derived from a master key kept next to the state. With
// no passphrase the master key is stored raw, which only obfuscates the
// file. With a passphrase the master key is sealed under an argon2id key.
type RepositoryPersister struct {
	repo   storage.Repository
	logger *slog.Logger

	mu  sync.Mutex
	key *memguard.Enclave
	// pending is a replacement master key record not yet written. It is
	// set when the stored key can't be opened with the passphrase.
	pending *storage.Record
}

var _ Persister = (*RepositoryPersister)(nil)

// PersisterOption configures a RepositoryPersister.
type PersisterOption func(*RepositoryPersister)

// WithPersisterLogger sets the logger used for key recovery warnings.
func WithPersisterLogger(l *slog.Logger) PersisterOption {
	return func(p *RepositoryPersister) {
		p.logger = l
	}
}

// NewRepositoryPersister loads or creates the master key in repo.
//
// If the stored master key can't be opened with passphrase, the persister
// starts signed out under a fresh master key. The stored key and state are
// left alone until the first Save, which overwrites both: a run with a
// mistyped passphrase that never changes the session loses nothing, while
// signing in under a new passphrase permanently replaces the old session.
func NewRepositoryPersister(repo storage.Repository, passphrase string, opts ...PersisterOption) (*RepositoryPersister, error) {
	p := &RepositoryPersister{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	master, pending, err := p.loadOrCreateMasterKey(passphrase)
	if err != nil {
		return nil, err
	}
	recordKey, err := util.SubKey(master, stateKeyInfo)
	util.WipeBytes(master)
	if err != nil {
		return nil, err
	}
	// NewEnclave wipes recordKey.
	p.key = memguard.NewEnclave(recordKey)
	p.pending = pending
	return p, nil
}

func (p *RepositoryPersister) Load() (State, error) {
	p.mu.Lock()
	replacing := p.pending != nil
	p.mu.Unlock()
	if replacing {
		return State{}, nil
	}

	rec, err := p.repo.Get(Namespace, stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("reading session state: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		return State{}, errPersisterClosed
	}
	buf, err := p.key.Open()
	if err != nil {
		return State{}, fmt.Errorf("opening session key: %w", err)
	}
	defer buf.Destroy()

	data, err := storage.OpenRecord(buf.Bytes(), rec, []byte(Namespace))
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	defer util.WipeBytes(data)

	var ps persisted
	if err := json.Unmarshal(data, &ps); err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return ps.State, nil
}

func (p *RepositoryPersister) Save(st State) error {
	data, err := json.Marshal(persisted{State: st, Version: persistFormat})
	if err != nil {
		return err
	}
	defer util.WipeBytes(data)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.key == nil {
		return errPersisterClosed
	}
	buf, err := p.key.Open()
	if err != nil {
		return fmt.Errorf("opening session key: %w", err)
	}
	defer buf.Destroy()

	rec, err := storage.SealRecord(buf.Bytes(), data, []byte(Namespace))
	if err != nil {
		return fmt.Errorf("sealing session state: %w", err)
	}
	if p.pending != nil {
		if err := p.repo.Put(Namespace, masterKeyKey, p.pending); err != nil {
			return fmt.Errorf("writing session master key: %w", err)
		}
		p.pending = nil
	}
	return p.repo.Put(Namespace, stateKey, rec)
}

// Close drops the in-memory record key. The repository is owned by the caller.
func (p *RepositoryPersister) Close() error {
	p.mu.Lock()
	p.key = nil
	p.mu.Unlock()
	return nil
}

// kdfMeta is stored in Record.Meta of a passphrase-sealed master key.
type kdfMeta struct {
	Salt   string              `json:"salt"`
	Params util.Argon2idParams `json:"params"`
}

// loadOrCreateMasterKey returns the master key. When the stored key can't
// be used, it returns a fresh key together with its unwritten record.
func (p *RepositoryPersister) loadOrCreateMasterKey(passphrase string) (master []byte, pending *storage.Record, err error) {
	rec, err := p.repo.Get(Namespace, masterKeyKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("reading session master key: %w", err)
	}

	if rec != nil {
		switch rec.Scheme {
		case storage.SchemeRaw:
			if len(rec.Ciphertext) == util.KeySize {
				master := append([]byte(nil), rec.Ciphertext...)
				if passphrase == "" {
					return master, nil, nil
				}
				// A passphrase was configured after the fact: keep the key and
				// seal it so existing sessions stay readable.
				sealed, err := sealMasterKey(master, passphrase)
				if err == nil {
					err = p.repo.Put(Namespace, masterKeyKey, sealed)
				}
				if err != nil {
					util.WipeBytes(master)
					return nil, nil, err
				}
				return master, nil, nil
			}
		case storage.SchemeAESGCM:
			if passphrase != "" {
				if master, err := openMasterKey(rec, passphrase); err == nil {
					return master, nil, nil
				}
			}
		}
		p.logger.Warn("session: saved master key does not match the configured passphrase, starting signed out")
	}

	master, err = util.RandomBytes(util.KeySize)
	if err != nil {
		return nil, nil, err
	}
	sealed, err := sealMasterKey(master, passphrase)
	if err != nil {
		util.WipeBytes(master)
		return nil, nil, err
	}
	if rec != nil {
		return master, sealed, nil
	}
	if err := p.repo.Put(Namespace, masterKeyKey, sealed); err != nil {
		util.WipeBytes(master)
		return nil, nil, err
	}
	return master, nil, nil
}

// sealMasterKey wraps master under passphrase, or stores it raw when the
// passphrase is empty.
func sealMasterKey(master []byte, passphrase string) (*storage.Record, error) {
	if passphrase == "" {
		return storage.RawRecord(master), nil
	}

	salt, err := util.RandomBytes(16)
	if err != nil {
		return nil, err
	}
	params := util.DefaultArgon2idParams()
	wk, err := util.DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wk)

	rec, err := storage.SealRecord(wk, master, []byte(masterKeyAAD))
	if err != nil {
		return nil, fmt.Errorf("sealing session master key: %w", err)
	}
	meta, err := json.Marshal(kdfMeta{Salt: hex.EncodeToString(salt), Params: params})
	if err != nil {
		return nil, err
	}
	rec.Meta = map[string]string{"kdf": "argon2id", "kdf_params": string(meta)}
	return rec, nil
}

func openMasterKey(rec *storage.Record, passphrase string) ([]byte, error) {
	if rec.Meta["kdf"] != "argon2id" {
		return nil, fmt.Errorf("unsupported kdf %q", rec.Meta["kdf"])
	}
	var meta kdfMeta
	if err := json.Unmarshal([]byte(rec.Meta["kdf_params"]), &meta); err != nil {
		return nil, fmt.Errorf("decoding kdf params: %w", err)
	}
	salt, err := hex.DecodeString(meta.Salt)
	if err != nil {
		return nil, fmt.Errorf("decoding kdf salt: %w", err)
	}
	wk, err := util.DeriveKey(passphrase, salt, meta.Params)
	if err != nil {
		return nil, err
	}
	defer util.WipeBytes(wk)

	master, err := storage.OpenRecord(wk, rec, []byte(masterKeyAAD))
	if err != nil {
		return nil, err
	}
	if len(master) != util.KeySize {
		util.WipeBytes(master)
		return nil, fmt.Errorf("session master key has length %d", len(master))
	}
	return master, nil
}
