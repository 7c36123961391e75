package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yourusername/paygate/ledger"
	"github.com/yourusername/paygate/models"
)

var (
	ErrOrderNotPaid = errors.New("order is not paid")
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims bind a download token to exactly one order and product. The jti is
// the key of the persisted token row holding the use counter.
type Claims struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	jwt.RegisteredClaims
}

// Issuer mints and redeems signed download tokens. Signature and expiry live
// in the JWT; the use bound lives in the store so concurrent redemptions are
// serialized by the database, not by this process.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	maxUses int
	store   *ledger.Store
}

func NewIssuer(secret string, ttl time.Duration, maxUses int, store *ledger.Store) *Issuer {
	return &Issuer{
		secret:  []byte(secret),
		ttl:     ttl,
		maxUses: maxUses,
		store:   store,
	}
}

// Issue mints a token for a PAID order: persists the token row, then signs a
// JWT carrying the binding. Fails with ErrOrderNotPaid for any other status.
func (i *Issuer) Issue(order *models.Order) (string, *models.DownloadToken, error) {
	if order.Status != models.StatusPaid {
		return "", nil, ErrOrderNotPaid
	}

	now := time.Now()
	token := &models.DownloadToken{
		TokenID:   uuid.NewString(),
		OrderID:   order.OrderID,
		ProductID: order.ProductID,
		ExpiresAt: now.Add(i.ttl),
		MaxUses:   i.maxUses,
	}
	if err := i.store.CreateToken(token); err != nil {
		return "", nil, err
	}

	claims := &Claims{
		OrderID:   order.OrderID,
		ProductID: order.ProductID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        token.TokenID,
			ExpiresAt: jwt.NewNumericDate(token.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, token, nil
}

// Validate checks signature integrity and expiry without consuming a use.
func (i *Issuer) Validate(signed string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Redeem validates the token and consumes one use atomically. Returns
// ErrTokenExpired, ledger.ErrTokenMaxUses, or ErrInvalidToken; on success
// the claims identify the order and product to serve.
func (i *Issuer) Redeem(signed string) (*Claims, error) {
	claims, err := i.Validate(signed)
	if err != nil {
		return nil, err
	}

	if err := i.store.ConsumeTokenUse(claims.ID); err != nil {
		if errors.Is(err, ledger.ErrTokenNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return claims, nil
}
