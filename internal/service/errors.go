package service

import "errors"

var (
	ErrExpired        = errors.New("expired")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrDeviceNotFound = errors.New("device not found")
	ErrDeviceRevoked  = errors.New("device revoked")
)
