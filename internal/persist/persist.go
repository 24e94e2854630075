package persist

import (
	"errors"
	"fmt"
)

type DriverName string

var (
	DriverFS     DriverName = "fs"
	DriverMemory DriverName = "memory"

	ErrNotFound = errors.New("record not found")
)

// Driver stores JSON encoded records by directory and id.
type Driver interface {
	Init() error
	Store(dir string, id string, data any) error
	Load(dir string, id string, obj any) error
	DirList(dir string) ([]string, error)
	Delete(dir string, id string) error
	UserDir() string
}

func LoadDriver(name DriverName, dataDir string) (Driver, error) {
	switch name {
	case DriverFS, "":
		return &FS{DataDir: dataDir}, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown driver: %s", name)
	}
}
