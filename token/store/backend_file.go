package store

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	fileMode    = 0o600
	folderMode  = 0o700
	hkdfContext = "solugarde token store v1"
)

var _ Backend = (*FileBackend)(nil)

// FileBackend stores all keys in a single JSON document on disk.
// When a secret is supplied the document is sealed with XChaCha20-Poly1305 using a key
// derived through HKDF-SHA256.
type FileBackend struct {
	path   string
	aead   cipher.AEAD
	values map[string]string
	loaded bool
	lock   sync.Mutex
}

// NewFileBackend prepares a backend at path. The file is read lazily on first access.
func NewFileBackend(path, secret string) (*FileBackend, error) {
	fb := &FileBackend{path: path}
	if secret == "" {
		return fb, nil
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfContext)), key); err != nil {
		return nil, fmt.Errorf("[NewFileBackend] derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("[NewFileBackend] cipher: %w", err)
	}
	fb.aead = aead
	return fb, nil
}

func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Get(key string) (string, bool, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.load(); err != nil {
		return "", false, err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FileBackend) Set(key, value string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	previous, existed := f.values[key]
	f.values[key] = value
	if err := f.persist(); err != nil {
		if existed {
			f.values[key] = previous
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *FileBackend) Delete(key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if _, ok := f.values[key]; !ok {
		return nil
	}
	previous := f.values[key]
	delete(f.values, key)
	if err := f.persist(); err != nil {
		f.values[key] = previous
		return err
	}
	return nil
}

func (f *FileBackend) load() error {
	if f.loaded {
		return nil
	}
	values := make(map[string]string)

	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("[FileBackend.load] read %s: %w", f.path, err)
	default:
		if f.aead != nil {
			if data, err = f.open(data); err != nil {
				return fmt.Errorf("[FileBackend.load] decrypt %s: %w", f.path, err)
			}
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &values); err != nil {
				return fmt.Errorf("[FileBackend.load] decode %s: %w", f.path, err)
			}
		}
	}

	f.values = values
	f.loaded = true
	return nil
}

// persist writes to a temporary file and renames it so readers never see a torn document
func (f *FileBackend) persist() error {
	data, err := json.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("[FileBackend.persist] encode: %w", err)
	}
	if f.aead != nil {
		if data, err = f.seal(data); err != nil {
			return fmt.Errorf("[FileBackend.persist] encrypt: %w", err)
		}
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, folderMode); err != nil {
		return fmt.Errorf("[FileBackend.persist] mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("[FileBackend.persist] temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileBackend.persist] write: %w", err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileBackend.persist] chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[FileBackend.persist] close: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("[FileBackend.persist] rename: %w", err)
	}
	return nil
}

func (f *FileBackend) seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, f.aead.NonceSize(), f.aead.NonceSize()+len(plain)+f.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return f.aead.Seal(nonce, nonce, plain, nil), nil
}

func (f *FileBackend) open(sealed []byte) ([]byte, error) {
	if len(sealed) < f.aead.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:f.aead.NonceSize()], sealed[f.aead.NonceSize():]
	return f.aead.Open(nil, nonce, ciphertext, nil)
}
