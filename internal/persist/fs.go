package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FS keeps one JSON file per record below DataDir.
type FS struct {
	DataDir string // the root data dir
}

func (d *FS) UserDir() string {
	return "users"
}

func (d *FS) Init() error {
	l := log.WithFields(log.Fields{
		"app": "persist",
		"fn":  "Init",
	})
	l.Debug("starting")
	if d.DataDir == "" {
		return errors.New("no data dir")
	}
	dir := filepath.Join(d.DataDir, d.UserDir())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	return nil
}

func (d *FS) path(dir, id string) (string, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid record id %q", id)
	}
	return filepath.Join(d.DataDir, dir, id), nil
}

// Store writes data to a temporary file and renames it over the record so
// readers never see a partial write.
func (d *FS) Store(dir string, id string, data any) error {
	l := log.WithFields(log.Fields{
		"app": "persist",
		"fn":  "Store",
	})
	l.Debug("starting")
	p, err := d.path(dir, id)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	jd, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "."+id+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(jd); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

func (d *FS) Load(dir string, id string, obj any) error {
	l := log.WithFields(log.Fields{
		"app": "persist",
		"fn":  "Load",
	})
	l.Debug("starting")
	p, err := d.path(dir, id)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return json.Unmarshal(data, obj)
}

func (d *FS) DirList(dir string) ([]string, error) {
	l := log.WithFields(log.Fields{
		"app": "persist",
		"fn":  "DirList",
		"dir": dir,
	})
	l.Debug("starting")
	entries, err := os.ReadDir(filepath.Join(d.DataDir, dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

func (d *FS) Delete(dir string, id string) error {
	l := log.WithFields(log.Fields{
		"app": "persist",
		"fn":  "Delete",
	})
	l.Debug("starting")
	p, err := d.path(dir, id)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
