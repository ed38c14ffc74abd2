package captcha

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
)

const maxOperand = 20

type question struct {
	Text   string
	Answer int
}

// newQuestion renders a+b, or the larger operand minus the smaller one so the
// answer is never negative.
func newQuestion(a, b int, subtract bool) question {
	if !subtract {
		return question{Text: fmt.Sprintf("%d + %d = ?", a, b), Answer: a + b}
	}
	if a < b {
		a, b = b, a
	}
	return question{Text: fmt.Sprintf("%d - %d = ?", a, b), Answer: a - b}
}

// cryptoIntn returns a uniform int in [0, n).
func cryptoIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// randomQuestion draws two operands in [1, maxOperand] and an operator.
func randomQuestion(intn func(int) (int, error)) (question, error) {
	var draws [3]int
	for i, n := range [3]int{maxOperand, maxOperand, 2} {
		v, err := intn(n)
		if err != nil {
			return question{}, err
		}
		draws[i] = v
	}
	return newQuestion(draws[0]+1, draws[1]+1, draws[2] == 1), nil
}

// newToken returns 32 random bytes as base64url.
func newToken() (string, error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}
