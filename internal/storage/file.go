package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
	"gopkg.in/yaml.v3"
)

// File codecs.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

type codec struct {
	ext       string
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

var codecs = map[string]codec{
	FormatYAML: {ext: ".yaml", marshal: yaml.Marshal, unmarshal: yaml.Unmarshal},
	FormatTOML: {ext: ".toml", marshal: toml.Marshal, unmarshal: toml.Unmarshal},
}

// File stores one document per plugin in a directory.
type File struct {
	mu    sync.Mutex
	dir   string
	codec codec
	log   *logging.Logger
}

// NewFile creates a file store rooted at dir, creating it if needed.
func NewFile(dir, format string, log *logging.Logger) (*File, error) {
	if dir == "" {
		return nil, fault.New(fault.KindInvalidArgument, "file storage directory is required")
	}
	if format == "" {
		format = FormatYAML
	}
	c, ok := codecs[format]
	if !ok {
		return nil, fault.New(fault.KindUnsupported, "unknown file storage format: "+format, fault.WithSubject(format))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	f := &File{dir: dir, codec: c, log: log.Sub("storage")}
	f.log.Info().Str("dir", dir).Str("format", format).Msg("file storage opened")
	return f, nil
}

func (f *File) path(name string) string {
	return filepath.Join(f.dir, name+f.codec.ext)
}

func (f *File) Save(_ context.Context, name string, values map[string]any) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := f.codec.marshal(values)
	if err != nil {
		return storageErr(err, "encode", name)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	tmp := f.path(name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return storageErr(err, "write", name)
	}
	if err := os.Rename(tmp, f.path(name)); err != nil {
		os.Remove(tmp)
		return storageErr(err, "write", name)
	}
	return nil
}

func (f *File) Load(_ context.Context, name string) (map[string]any, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	f.mu.Lock()
	data, err := os.ReadFile(f.path(name))
	f.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "read", name)
	}

	values := map[string]any{}
	if err := f.codec.unmarshal(data, &values); err != nil {
		return nil, storageErr(err, "decode", name)
	}
	return values, nil
}

func (f *File) Delete(_ context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr(err, "delete", name)
	}
	return nil
}

func (f *File) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return storageErr(err, "list", f.dir)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), f.codec.ext) {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, e.Name())); err != nil {
			return storageErr(err, "delete", e.Name())
		}
	}
	return nil
}

func (f *File) Close() error { return nil }
