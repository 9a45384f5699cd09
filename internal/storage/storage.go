// Package storage persists plugin configuration values.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

// Storage saves one value map per plugin name.
type Storage interface {
	Save(ctx context.Context, name string, values map[string]any) error
	// Load returns nil and no error when nothing is stored under name.
	Load(ctx context.Context, name string) (map[string]any, error)
	Delete(ctx context.Context, name string) error
	Clear(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string
	// Path is the directory for the file backend or the database file for sqlite.
	Path string
	// Format is the file backend codec: "yaml" (default) or "toml".
	Format string
	// DSN is the mysql data source name.
	DSN   string
	Redis RedisOptions
}

// Backends returns the accepted backend names.
func Backends() []string {
	return []string{BackendMemory, BackendFile, BackendSQLite, BackendMySQL, BackendRedis}
}

// Open creates the backend described by opts.
func Open(ctx context.Context, opts Options, log *logging.Logger) (Storage, error) {
	var (
		s   Storage
		err error
	)
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendFile:
		s, err = NewFile(opts.Path, opts.Format, log)
	case BackendSQLite:
		s, err = OpenSQL(ctx, DialectSQLite, opts.Path, log)
	case BackendMySQL:
		s, err = OpenSQL(ctx, DialectMySQL, opts.DSN, log)
	case BackendRedis:
		s, err = NewRedis(ctx, opts.Redis, log)
	default:
		return nil, fault.New(fault.KindUnsupported, "unknown storage backend: "+opts.Backend,
			fault.WithSubject(opts.Backend))
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// checkName rejects names that cannot be used as a key on every backend.
func checkName(name string) error {
	if name == "" {
		return fault.New(fault.KindInvalidArgument, "storage key is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fault.New(fault.KindInvalidArgument, "invalid storage key: "+name, fault.WithSubject(name))
	}
	return nil
}

func encodeJSON(name string, values map[string]any) ([]byte, error) {
	data, err := json.Marshal(values)
	if err != nil {
		return nil, fault.Wrap(fault.KindStorageFailure, err, fmt.Sprintf("encode %s", name), fault.WithSubject(name))
	}
	return data, nil
}

func decodeJSON(name string, data []byte) (map[string]any, error) {
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fault.Wrap(fault.KindStorageFailure, err, fmt.Sprintf("decode %s", name), fault.WithSubject(name))
	}
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

func storageErr(err error, op, name string) error {
	return fault.Wrap(fault.KindStorageFailure, err, fmt.Sprintf("%s %s", op, name), fault.WithSubject(name))
}
