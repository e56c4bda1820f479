// Package validators holds request field and file checks shared by the
// handlers.
package validators

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrEmailEmpty   = errors.New("no email address provided")
	ErrEmailInvalid = errors.New("invalid email address provided")
)

func EmailValidator(e string) error {
	if e == "" {
		return ErrEmailEmpty
	}

	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return ErrEmailInvalid
	}

	domain := e[strings.LastIndex(e, "@")+1:]
	if !strings.Contains(domain, ".") {
		return ErrEmailInvalid
	}

	return nil
}
