package domain

import "fmt"

// ConfigurationError - обязательный параметр отсутствует или содержит шаблонное значение.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// FetchError - сбой загрузки или разбора ленты либо ответа NewsAPI.
type FetchError struct {
	Kind   SourceKind
	Origin string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Kind, e.Origin, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError - сбой проверки существования или вставки в хранилище.
type StoreError struct {
	Op  string
	URL string
	Err error
}

func (e *StoreError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
