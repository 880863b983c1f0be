package domain

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidToken       = errors.New("could not validate credentials")
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")

	ErrPostNotFound = errors.New("post not found")

	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelPrivate  = errors.New("this channel is private")
	ErrNotMember       = errors.New("not a member of this channel")
	ErrAlreadyMember   = errors.New("already a member of this channel")
	ErrSoleAdmin       = errors.New("cannot leave channel - you are the only admin")
)
