// Copyright (c) 2025 BVK Chaitanya

package gateway

import (
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"os"
	"time"

	jose "gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Credentials identify the client to the gateway. KeyName and KeyPEM are
// optional; when set, a short lived ES256 JWT is sent as a bearer token in
// the websocket handshake.
type Credentials struct {
	ClientID int
	Account  string

	KeyName string
	KeyPEM  string
}

func (c *Credentials) Check() error {
	if c.ClientID < 0 {
		return fmt.Errorf("client id cannot be negative: %w", os.ErrInvalid)
	}
	if (len(c.KeyName) == 0) != (len(c.KeyPEM) == 0) {
		return fmt.Errorf("key name and key pem must be set together: %w", os.ErrInvalid)
	}
	return nil
}

type nonceSource struct{}

func (n nonceSource) Nonce() (string, error) {
	r, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return "", err
	}
	return r.String(), nil
}

type tokenClaims struct {
	*jwt.Claims
	ClientID int    `json:"client_id"`
	Account  string `json:"account,omitempty"`
}

// bearerToken returns a signed JWT for the credentials or an empty string
// when no key is configured.
func (c *Credentials) bearerToken(endpoint string, now time.Time) (string, error) {
	if len(c.KeyPEM) == 0 {
		return "", nil
	}
	block, _ := pem.Decode([]byte(c.KeyPEM))
	if block == nil {
		slog.Error("could not parse the PEM private key")
		return "", fmt.Errorf("could not decode pem block: %w", os.ErrInvalid)
	}
	priKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("could not parse the EC private key: %w", err)
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.ES256, Key: priKey},
		(&jose.SignerOptions{NonceSource: nonceSource{}}).WithType("JWT").WithHeader("kid", c.KeyName),
	)
	if err != nil {
		return "", fmt.Errorf("could not create jwt signer: %w", err)
	}
	cl := &tokenClaims{
		Claims: &jwt.Claims{
			Subject:   c.KeyName,
			Issuer:    "orbtrader",
			Audience:  jwt.Audience{endpoint},
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(2 * time.Minute)),
		},
		ClientID: c.ClientID,
		Account:  c.Account,
	}
	return jwt.Signed(signer).Claims(cl).CompactSerialize()
}
