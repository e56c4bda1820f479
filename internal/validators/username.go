package validators

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrUserNameEmpty   = errors.New("no username provided")
	ErrUserNameTooLong = errors.New("username must be at most 80 characters long")
)

func UserNameValidator(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrUserNameEmpty
	}
	if utf8.RuneCountInString(name) > 80 {
		return ErrUserNameTooLong
	}
	return nil
}
