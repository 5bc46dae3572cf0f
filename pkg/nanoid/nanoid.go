// Package nanoid generates compact unique identifiers.
package nanoid

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	lowerUpper     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	primaryKey     = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	defaultSize    = 16
	primaryKeySize = 16
)

func getSize(l ...int) int {
	size := defaultSize
	if len(l) > 0 {
		size = l[0]
	}
	return size
}

// Must generate optional length nanoid
func Must(l ...int) string {
	return gonanoid.Must(getSize(l...))
}

// String generate optional length nanoid, use const by default
func String(l ...int) string {
	return gonanoid.MustGenerate(lowerUpper, getSize(l...))
}

// PrimaryKey generate primary key
func PrimaryKey(l ...int) func() string {
	size := primaryKeySize
	if len(l) > 0 {
		size = l[0]
	}
	return func() string {
		return gonanoid.MustGenerate(primaryKey, size)
	}
}
