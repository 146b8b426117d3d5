package auth

import "errors"

var (
	ErrNotFound = errors.New("auth: not found")
	// ErrEmailTaken is returned on duplicate signup attempts.
	ErrEmailTaken = errors.New("auth: email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password, so
	// the response never reveals whether an account exists.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrSessionInvalid covers bad signatures and expired tokens alike.
	ErrSessionInvalid = errors.New("auth: session expired or invalid")
	ErrInvalidInput   = errors.New("auth: invalid input")
)
