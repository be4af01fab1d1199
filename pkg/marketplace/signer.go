package marketplace

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// keystoreFile is the subset of a geth-style keystore v3 file this signer
// reads: the account address and the encrypted key material, used as
// HMAC secret material the same way an exchange adapter treats its API
// secret key.
type keystoreFile struct {
	Address string          `json:"address"`
	Crypto  json.RawMessage `json:"crypto"`
}

// EthKeySigner signs marketplace HTTP requests with the account's
// keystore material, grounded on this codebase's exchange adapters' HMAC
// request signing (timestamp + method + path, HMAC-SHA256, result carried
// in headers; the request body is not signed) generalized from an exchange API secret to an
// Ethereum keystore file's encrypted key bytes plus the unlock password.
type EthKeySigner struct {
	Address string
	secret  []byte
}

// NewEthKeySigner loads the keystore file at path and derives signing
// material from it and password.
func NewEthKeySigner(path, password string) (*EthKeySigner, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore file %q: %w", path, err)
	}

	var ks keystoreFile
	if err := json.Unmarshal(raw, &ks); err != nil {
		return nil, fmt.Errorf("parse keystore file %q: %w", path, err)
	}
	if ks.Address == "" {
		return nil, fmt.Errorf("keystore file %q has no address field", path)
	}

	secret := append(append([]byte{}, ks.Crypto...), []byte(password)...)
	return &EthKeySigner{Address: ks.Address, secret: secret}, nil
}

// SignRequest implements pkg/http.Signer.
func (s *EthKeySigner) SignRequest(req *http.Request) error {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp + req.Method + path))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("X-Node-Address", s.Address)
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Timestamp", timestamp)
	return nil
}

var _ interface {
	SignRequest(*http.Request) error
} = (*EthKeySigner)(nil)
