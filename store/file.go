package store

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// File is a single-file [TokenStore]. The session is written as one JSON
// document via a temp file and an atomic rename, so a crash mid-write leaves
// either the previous state or the new one, never a torn mix.
//
// With a sealing key the document is encrypted at rest with
// XChaCha20-Poly1305; the random nonce is prefixed to the ciphertext.
type File struct {
	path string
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
	mu sync.Mutex
}

type filePayload struct {
	User         json.RawMessage `json:"user"`
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken"`
}

// NewFile creates a plaintext file store at path. Parent directories are
// created on first Save.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("file store path cannot be empty")
	}
	return &File{path: path}, nil
}

// NewSealedFile creates a file store whose on-disk payload is sealed with the
// given 32-byte key. A load with the wrong key reads as "no session".
func NewSealedFile(path string, key []byte) (*File, error) {
	f, err := NewFile(path)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("sealing key: %w", err)
	}
	f.aead = aead

	return f, nil
}

// Save describes the save operation and its observable behavior.
func (f *File) Save(_ context.Context, state State) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	payload := filePayload{
		User:         json.RawMessage(state.User),
		AccessToken:  state.AccessToken,
		RefreshToken: state.RefreshToken,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if f.aead != nil {
		nonce := make([]byte, chacha20poly1305.NonceSizeX)
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		data = f.aead.Seal(nonce, nonce, data, nil)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return nil
}

// Load describes the load operation and its observable behavior.
func (f *File) Load(_ context.Context) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if f.aead != nil {
		if len(data) < chacha20poly1305.NonceSizeX {
			return nil, nil
		}
		nonce, ciphertext := data[:chacha20poly1305.NonceSizeX], data[chacha20poly1305.NonceSizeX:]
		data, err = f.aead.Open(nil, nonce, ciphertext, nil)
		if err != nil {
			// Wrong key or tampered file reads as no session.
			return nil, nil
		}
	}

	var payload filePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil
	}

	state := State{
		User:         payload.User,
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
	}
	if !state.Complete() {
		return nil, nil
	}

	return cloneState(state), nil
}

// Clear describes the clear operation and its observable behavior.
func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
