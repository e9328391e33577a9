//go:build cgo && !purego

package kvstore

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteDriverType = "sqlite3"
	sqliteBuildType  = "cgo"
)
