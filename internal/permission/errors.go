package permission

import "errors"

var (
	ErrUnknownRole       = errors.New("unknown role")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrUnknownCategory   = errors.New("unknown command category")
)
