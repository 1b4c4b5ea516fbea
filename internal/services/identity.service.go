package services

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nimasrn/cash-ledger/internal/model"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// IdentityClaims is the payload the auth module puts in access tokens.
type IdentityClaims struct {
	UserID      int64    `json:"user_id"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// IdentityService verifies HS256 access tokens. It never issues them.
type IdentityService struct {
	secret []byte
	issuer string
}

func NewIdentityService(secret, issuer string) *IdentityService {
	return &IdentityService{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (s *IdentityService) Resolve(token string) (*model.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	return &model.Identity{
		UserID:      claims.UserID,
		Name:        claims.Name,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}, nil
}
