package domain

import "errors"

var (
	// ErrNotFound — напоминание или пользователь не найдены.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID — идентификатор уже занят.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrInvalidDraft — черновик не прошёл финальную проверку.
	ErrInvalidDraft = errors.New("invalid draft")
)
