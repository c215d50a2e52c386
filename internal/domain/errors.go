package domain

import "errors"

var (
	// ErrInvalidInput: запрос отклонен до обращения к store (ошибка клиента).
	ErrInvalidInput = errors.New("invalid input")

	// ErrConfig не хватает параметров конфигурации для операции.
	ErrConfig = errors.New("configuration error")
)
