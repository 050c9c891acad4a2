// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

package relay

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// SessionCode is the human-entered join code of a room.
type SessionCode string

const (
	// CodeLength is the number of characters in a session code.
	CodeLength = 6

	// CodeAlphabet omits characters that are easy to confuse when read off a
	// TV screen (I, L, O, 0, 1).
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	maxCodeAttempts = 20
)

// ParseSessionCode normalizes user input (trim, upper-case) and checks that
// it is six ASCII letters or digits. Generated codes only use CodeAlphabet,
// but codes minted elsewhere may use the full range. Invalid codes can never
// name a room, so they fail with ErrRoomNotFound.
func ParseSessionCode(s string) (SessionCode, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != CodeLength {
		return "", fmt.Errorf("%w: code must be %d characters", ErrRoomNotFound, CodeLength)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: invalid character %q in code", ErrRoomNotFound, r)
		}
	}
	return SessionCode(code), nil
}

func (c SessionCode) String() string { return string(c) }

// GenerateSessionCode draws random codes until taken reports one as free,
// giving up after a fixed number of attempts.
func GenerateSessionCode(taken func(SessionCode) bool) (SessionCode, error) {
	alphabetLen := big.NewInt(int64(len(CodeAlphabet)))
	buf := make([]byte, CodeLength)

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		for i := range buf {
			n, err := rand.Int(rand.Reader, alphabetLen)
			if err != nil {
				return "", fmt.Errorf("generate session code: %w", err)
			}
			buf[i] = CodeAlphabet[n.Int64()]
		}
		code := SessionCode(buf)
		if !taken(code) {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
