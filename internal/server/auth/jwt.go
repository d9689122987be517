// Package auth issues and checks the server's HS256 tokens: access tokens
// that identify a user, and short-lived verification tokens that unlock one
// protected account for one user.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	purposeAccess = "access"
	purposeUnlock = "unlock"
)

// Claims holds the registered claims plus who the token is for. AccountID
// is set only on verification tokens.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string
	AccountID string `json:",omitempty"`
	Purpose   string
}

func sign(claims Claims, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func parse(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, err
	}

	if !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}

func GenerateToken(userID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	return sign(Claims{UserID: userID, Purpose: purposeAccess}, secretKey, validityDuration)
}

func GetUserIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims, err := parse(tokenString, secretKey)
	if err != nil {
		return "", err
	}
	if claims.Purpose != purposeAccess || claims.UserID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.UserID, nil
}

// GenerateVerificationToken proves that userID passed the secondary check
// for accountID.
func GenerateVerificationToken(userID, accountID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	return sign(Claims{UserID: userID, AccountID: accountID, Purpose: purposeUnlock}, secretKey, validityDuration)
}

// CheckVerificationToken accepts only an unexpired unlock token minted for
// exactly this user and account.
func CheckVerificationToken(tokenString, userID, accountID string, secretKey []byte) error {
	claims, err := parse(tokenString, secretKey)
	if err != nil {
		return err
	}
	if claims.Purpose != purposeUnlock || claims.UserID != userID || claims.AccountID != accountID {
		return common.ErrInvalidToken
	}
	return nil
}
