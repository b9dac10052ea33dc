// Package util provides small parsing and formatting helpers for registry-cleaner.
package util
