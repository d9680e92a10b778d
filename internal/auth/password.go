package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost is the default bcrypt cost factor
	DefaultCost = 12
)

var ErrInvalidAPIKey = errors.New("invalid client id or api key")

// HashAPIKey creates a bcrypt hash of an API key
func HashAPIKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckAPIKey compares an API key with a hash
func CheckAPIKey(key, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key))
	return err == nil
}

// Client is a registered API client
type Client struct {
	ID   string
	Role string
	hash string
}

// APIKeyStore holds the hashed API keys of registered clients
type APIKeyStore struct {
	clients map[string]Client
}

// ParseAPIKeys builds a store from "client_id:role:bcrypt_hash" entries
func ParseAPIKeys(entries []string) (*APIKeyStore, error) {
	store := &APIKeyStore{clients: make(map[string]Client, len(entries))}
	for _, entry := range entries {
		// bcrypt hashes contain '$' but never ':'
		parts := strings.SplitN(strings.TrimSpace(entry), ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("malformed api key entry %q", entry)
		}
		if _, err := bcrypt.Cost([]byte(parts[2])); err != nil {
			return nil, fmt.Errorf("api key entry for %s: %w", parts[0], err)
		}
		store.clients[parts[0]] = Client{ID: parts[0], Role: parts[1], hash: parts[2]}
	}
	return store, nil
}

// Len returns the number of registered clients
func (s *APIKeyStore) Len() int {
	return len(s.clients)
}

// Authenticate verifies an API key and returns the client it belongs to
func (s *APIKeyStore) Authenticate(clientID, key string) (*Client, error) {
	client, ok := s.clients[clientID]
	if !ok || !CheckAPIKey(key, client.hash) {
		return nil, ErrInvalidAPIKey
	}
	return &client, nil
}
