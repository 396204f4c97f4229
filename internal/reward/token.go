package reward

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when a reward token fails verification.
var ErrInvalidToken = errors.New("invalid reward token")

// Claims bind a reward to a participant and the quiz it was earned in. The
// quiz creation time lets the notification side correlate the reward with the
// exact quiz edition.
type Claims struct {
	UserID        string `json:"userId"`
	QuizID        string `json:"quizId"`
	QuizCreatedAt int64  `json:"quizCreatedAt"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies reward tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
}

func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// Issue mints a signed token for one winner.
func (i *Issuer) Issue(userID, quizID string, quizCreatedAt time.Time) (string, error) {
	claims := &Claims{
		UserID:        userID,
		QuizID:        quizID,
		QuizCreatedAt: quizCreatedAt.Unix(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses a token and returns its claims if the signature checks out.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
