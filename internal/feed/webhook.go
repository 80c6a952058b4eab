package feed

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/plaid/plaid-go/v20/plaid"
)

// webhookMaxAge bounds how stale a webhook signature may be.
const webhookMaxAge = 5 * time.Minute

// VerifyWebhook checks a Plaid-Verification header against the raw
// webhook body: the JWT must be ES256-signed by the key Plaid publishes
// for its kid, issued within the last five minutes, and carry the SHA-256
// of the body.
func (c *PlaidClient) VerifyWebhook(ctx context.Context, body []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("missing verification signature")
	}

	parser := jwt.NewParser(jwt.WithLeeway(30 * time.Second))
	unverified, _, err := parser.ParseUnverified(signature, jwt.MapClaims{})
	if err != nil {
		return fmt.Errorf("failed to parse verification token: %w", err)
	}
	if unverified.Method.Alg() != jwt.SigningMethodES256.Alg() {
		return fmt.Errorf("unexpected signing algorithm %q", unverified.Method.Alg())
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return fmt.Errorf("verification token has no kid")
	}

	pubKey, err := c.verificationKey(ctx, kid)
	if err != nil {
		return fmt.Errorf("failed to fetch verification key: %w", err)
	}

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(signature, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return pubKey, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("invalid verification token: %w", err)
	}

	issued, ok := claims["iat"].(float64)
	if !ok {
		return fmt.Errorf("verification token has no iat")
	}
	if time.Since(time.Unix(int64(issued), 0)) > webhookMaxAge {
		return fmt.Errorf("verification token is older than %s", webhookMaxAge)
	}

	wantHash, _ := claims["request_body_sha256"].(string)
	if wantHash == "" {
		return fmt.Errorf("verification token has no body hash")
	}
	sum := sha256.Sum256(body)
	got := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(wantHash))) != 1 {
		return fmt.Errorf("webhook body hash mismatch")
	}
	return nil
}

// verificationKey resolves the ECDSA public key for a kid, caching
// results per client; Plaid rotates keys rarely and re-announces them
// by kid.
func (c *PlaidClient) verificationKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	c.jwkMu.Lock()
	cached := c.jwkCache[kid]
	c.jwkMu.Unlock()
	if cached != nil {
		return cached, nil
	}

	req := plaid.NewWebhookVerificationKeyGetRequest(kid)
	resp, _, err := c.client.PlaidApi.WebhookVerificationKeyGet(ctx).
		WebhookVerificationKeyGetRequest(*req).
		Execute()
	if err != nil {
		return nil, c.wrapPlaidError("get webhook verification key", err)
	}

	key := resp.GetKey()
	pub, err := jwkToPublicKey(&key)
	if err != nil {
		return nil, err
	}

	c.jwkMu.Lock()
	c.jwkCache[kid] = pub
	c.jwkMu.Unlock()
	return pub, nil
}

func jwkToPublicKey(jwk *plaid.JWKPublicKey) (*ecdsa.PublicKey, error) {
	if jwk == nil || jwk.Kty != "EC" || jwk.Crv != "P-256" || jwk.X == "" || jwk.Y == "" {
		return nil, fmt.Errorf("unsupported verification key format")
	}
	x, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key x coordinate: %w", err)
	}
	y, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key y coordinate: %w", err)
	}
	return &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}, nil
}
