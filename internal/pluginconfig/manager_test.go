package pluginconfig

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
	"github.com/soyeahso/trellis/internal/secure"
	"github.com/soyeahso/trellis/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (r *recorder) handle(_ context.Context, ev eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newBus(t *testing.T) (*eventbus.Bus, *recorder) {
	t.Helper()
	bus := eventbus.New(eventbus.Config{MaxRetries: 1}, logging.New(nil, "silent"))
	require.NoError(t, bus.RegisterChannel(eventbus.ChannelConfig))
	bus.Start()
	rec := &recorder{}
	_, err := bus.Subscribe(eventbus.ChannelConfig, rec.handle)
	require.NoError(t, err)
	return bus, rec
}

func newProvider(t *testing.T) *secure.AEAD {
	t.Helper()
	p, err := secure.NewFromPassphrase(secure.AlgorithmAESGCM, "test-passphrase")
	require.NoError(t, err)
	return p
}

func calendarSchema() Schema {
	return Schema{
		"apiKey":    {Type: TypeString, Sensitive: true},
		"weekStart": {Type: TypeString, Default: "monday"},
		"maxEvents": {Type: TypeNumber, Default: 50},
		"sources":   {Type: TypeArray},
	}
}

func TestRegisterSchema_Duplicate(t *testing.T) {
	m := New(Options{Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))

	err := m.RegisterSchema("calendar", Schema{})
	assert.True(t, fault.IsKind(err, fault.KindDuplicateRegistration))

	s, ok := m.Schema("calendar")
	require.True(t, ok)
	assert.Len(t, s, 4)
}

func TestSetConfig_AppliesDefaults(t *testing.T) {
	bus, rec := newBus(t)
	m := New(Options{Events: bus, Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))

	require.NoError(t, m.SetConfig(context.Background(), "calendar", Values{"maxEvents": 10}))

	cfg, ok := m.GetConfig("calendar")
	require.True(t, ok)
	assert.Equal(t, "monday", cfg["weekStart"])
	assert.Equal(t, 10, cfg["maxEvents"])
	assert.Equal(t, []string{eventbus.ConfigChanged}, rec.types())
}

func TestSetConfig_EncryptsSensitiveFields(t *testing.T) {
	p := newProvider(t)
	m := New(Options{Encryption: p, Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))

	require.NoError(t, m.SetConfig(context.Background(), "calendar", Values{"apiKey": "x"}))

	cfg, _ := m.GetConfig("calendar")
	stored, ok := cfg["apiKey"].(string)
	require.True(t, ok)
	assert.NotEqual(t, "x", stored)
	assert.True(t, secure.IsEnvelope(stored))

	plain, err := p.Decrypt(stored)
	require.NoError(t, err)
	assert.Equal(t, `"x"`, plain)

	dec, err := m.GetDecryptedConfig("calendar")
	require.NoError(t, err)
	assert.Equal(t, "x", dec["apiKey"])
	assert.Equal(t, "monday", dec["weekStart"])
}

func TestSetConfig_EncryptsNonStringSensitiveValues(t *testing.T) {
	p := newProvider(t)
	m := New(Options{Encryption: p, Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("billing", Schema{
		"limits": {Type: TypeObject, Sensitive: true},
	}))

	require.NoError(t, m.SetConfig(context.Background(), "billing", Values{
		"limits": map[string]any{"monthly": 100},
	}))

	dec, err := m.GetDecryptedConfig("billing")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"monthly": float64(100)}, dec["limits"])
}

func TestSetConfig_SensitiveValuesKeepTheirType(t *testing.T) {
	m := New(Options{Encryption: newProvider(t), Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("vault", Schema{
		"pin":     {Sensitive: true},
		"enabled": {Sensitive: true},
		"note":    {Sensitive: true},
		"code":    {Type: TypeString, Sensitive: true},
		"retries": {Sensitive: true},
	}))

	require.NoError(t, m.SetConfig(context.Background(), "vault", Values{
		"pin":     "1234",
		"enabled": "true",
		"note":    "null",
		"code":    "007",
		"retries": 3,
	}))

	dec, err := m.GetDecryptedConfig("vault")
	require.NoError(t, err)
	assert.Equal(t, "1234", dec["pin"])
	assert.Equal(t, "true", dec["enabled"])
	assert.Equal(t, "null", dec["note"])
	assert.Equal(t, "007", dec["code"])
	assert.Equal(t, float64(3), dec["retries"])
}

func TestDecodePlain_RawStrings(t *testing.T) {
	assert.Equal(t, "plain key", decodePlain("plain key", ""))
	assert.Equal(t, "1234", decodePlain("1234", TypeString))
	assert.Equal(t, float64(1234), decodePlain("1234", ""))
	assert.Equal(t, "x", decodePlain(`"x"`, TypeString))
}

func TestSetConfig_EncryptsForeignEnvelope(t *testing.T) {
	p := newProvider(t)
	m := New(Options{Encryption: p, Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))

	fake := `{"encrypted":true,"value":"c2VjcmV0","metadata":{"algorithm":"aes-256-gcm","iv":"AAAA"}}`
	require.True(t, secure.IsEnvelope(fake))
	require.NoError(t, m.SetConfig(context.Background(), "calendar", Values{"apiKey": fake}))

	cfg, _ := m.GetConfig("calendar")
	assert.NotEqual(t, fake, cfg["apiKey"])
	plain, err := p.Decrypt(cfg["apiKey"].(string))
	require.NoError(t, err)
	want, err := json.Marshal(fake)
	require.NoError(t, err)
	assert.Equal(t, string(want), plain)

	dec, err := m.GetDecryptedConfig("calendar")
	require.NoError(t, err)
	assert.Equal(t, fake, dec["apiKey"])
}

func TestSetConfig_DoesNotReencryptEnvelope(t *testing.T) {
	p := newProvider(t)
	m := New(Options{Encryption: p, Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))
	ctx := context.Background()

	require.NoError(t, m.SetConfig(ctx, "calendar", Values{"apiKey": "x"}))
	first, _ := m.GetConfig("calendar")

	first["weekStart"] = "sunday"
	require.NoError(t, m.SetConfig(ctx, "calendar", first))

	second, _ := m.GetConfig("calendar")
	assert.Equal(t, first["apiKey"], second["apiKey"])
	dec, err := m.GetDecryptedConfig("calendar")
	require.NoError(t, err)
	assert.Equal(t, "x", dec["apiKey"])
	assert.Equal(t, "sunday", dec["weekStart"])
}

func TestSetConfig_NoProviderStoresPlaintext(t *testing.T) {
	m := New(Options{Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))
	require.NoError(t, m.SetConfig(context.Background(), "calendar", Values{"apiKey": "x"}))

	cfg, _ := m.GetConfig("calendar")
	assert.Equal(t, "x", cfg["apiKey"])
}

func TestSetConfig_ValidationFailureKeepsPrevious(t *testing.T) {
	bus, rec := newBus(t)
	m := New(Options{Events: bus, Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))
	ctx := context.Background()

	require.NoError(t, m.SetConfig(ctx, "calendar", Values{"maxEvents": 5}))

	err := m.SetConfig(ctx, "calendar", Values{"maxEvents": "lots"})
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindValidationFailed))
	assert.NotEmpty(t, fault.SubjectOf(err))

	cfg, _ := m.GetConfig("calendar")
	assert.Equal(t, 5, cfg["maxEvents"])
	assert.Equal(t, []string{eventbus.ConfigChanged, eventbus.ConfigValidationFailed}, rec.types())
}

func TestSetConfig_WithoutSchemaStoresAsIs(t *testing.T) {
	m := New(Options{Log: logging.New(nil, "silent")})
	require.NoError(t, m.SetConfig(context.Background(), "adhoc", Values{"anything": true}))

	cfg, ok := m.GetConfig("adhoc")
	require.True(t, ok)
	assert.Equal(t, true, cfg["anything"])
}

func TestMiddleware_TransformsInOrder(t *testing.T) {
	m := New(Options{Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))

	m.Use(func(_ context.Context, _ string, v Values) (Values, error) {
		v["weekStart"] = "sunday"
		return v, nil
	})
	m.Use(func(_ context.Context, plugin string, v Values) (Values, error) {
		v["weekStart"] = v["weekStart"].(string) + "-" + plugin
		return v, nil
	})
	m.Use(nil)

	require.NoError(t, m.SetConfig(context.Background(), "calendar", Values{}))
	cfg, _ := m.GetConfig("calendar")
	assert.Equal(t, "sunday-calendar", cfg["weekStart"])
}

func TestMiddleware_DoesNotMutateCallerMap(t *testing.T) {
	m := New(Options{Log: logging.New(nil, "silent")})
	m.Use(func(_ context.Context, _ string, v Values) (Values, error) {
		v["injected"] = true
		return v, nil
	})

	input := Values{"a": 1}
	require.NoError(t, m.SetConfig(context.Background(), "p", input))
	assert.NotContains(t, input, "injected")
}

func TestMiddleware_Halt(t *testing.T) {
	bus, rec := newBus(t)
	m := New(Options{Events: bus, Log: logging.New(nil, "silent")})
	m.Use(func(context.Context, string, Values) (Values, error) {
		return nil, ErrHalt
	})

	require.NoError(t, m.SetConfig(context.Background(), "calendar", Values{"a": 1}))
	_, ok := m.GetConfig("calendar")
	assert.False(t, ok)
	assert.Empty(t, rec.types())
}

func TestMiddleware_ErrorPropagates(t *testing.T) {
	m := New(Options{Log: logging.New(nil, "silent")})
	boom := errors.New("boom")
	m.Use(func(context.Context, string, Values) (Values, error) {
		return nil, boom
	})

	err := m.SetConfig(context.Background(), "calendar", Values{})
	assert.ErrorIs(t, err, boom)
}

func TestGetDecryptedConfig_Missing(t *testing.T) {
	m := New(Options{Log: logging.New(nil, "silent")})
	_, err := m.GetDecryptedConfig("nope")
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
}

func TestGetDecryptedConfig_WrongKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	writer := New(Options{Storage: store, Encryption: newProvider(t), Log: logging.New(nil, "silent")})
	require.NoError(t, writer.RegisterSchema("calendar", calendarSchema()))
	require.NoError(t, writer.SetConfig(ctx, "calendar", Values{"apiKey": "x"}))

	other, err := secure.NewFromPassphrase(secure.AlgorithmAESGCM, "different")
	require.NoError(t, err)
	reader := New(Options{Storage: store, Encryption: other, Log: logging.New(nil, "silent")})
	require.NoError(t, reader.RegisterSchema("calendar", calendarSchema()))
	_, err = reader.LoadConfig(ctx, "calendar")
	require.NoError(t, err)

	_, err = reader.GetDecryptedConfig("calendar")
	assert.True(t, fault.IsKind(err, fault.KindDecryptionFailure))
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	p := newProvider(t)

	first := New(Options{Storage: store, Encryption: p, Log: logging.New(nil, "silent")})
	require.NoError(t, first.RegisterSchema("calendar", calendarSchema()))
	require.NoError(t, first.SetConfig(ctx, "calendar", Values{"apiKey": "secret", "maxEvents": 20}))

	second := New(Options{Storage: store, Encryption: p, Log: logging.New(nil, "silent")})
	require.NoError(t, second.RegisterSchema("calendar", calendarSchema()))

	loaded, err := second.LoadConfig(ctx, "calendar")
	require.NoError(t, err)
	assert.Equal(t, 20, loaded["maxEvents"])

	dec, err := second.GetDecryptedConfig("calendar")
	require.NoError(t, err)
	assert.Equal(t, "secret", dec["apiKey"])
	assert.Equal(t, []string{"calendar"}, second.Plugins())
}

func TestLoadConfig_Errors(t *testing.T) {
	ctx := context.Background()

	noStore := New(Options{Log: logging.New(nil, "silent")})
	_, err := noStore.LoadConfig(ctx, "calendar")
	assert.True(t, fault.IsKind(err, fault.KindUnsupported))

	bus, rec := newBus(t)
	store := storage.NewMemory()
	m := New(Options{Events: bus, Storage: store, Log: logging.New(nil, "silent")})
	require.NoError(t, m.RegisterSchema("calendar", calendarSchema()))

	_, err = m.LoadConfig(ctx, "calendar")
	assert.True(t, fault.IsKind(err, fault.KindNotFound))

	require.NoError(t, store.Save(ctx, "calendar", Values{"maxEvents": "many"}))
	_, err = m.LoadConfig(ctx, "calendar")
	assert.True(t, fault.IsKind(err, fault.KindValidationFailed))
	assert.Equal(t, []string{eventbus.ConfigValidationFailed}, rec.types())

	_, ok := m.GetConfig("calendar")
	assert.False(t, ok)
}

type failingStore struct{ storage.Storage }

func (failingStore) Save(context.Context, string, map[string]any) error {
	return fault.New(fault.KindStorageFailure, "disk full")
}

func (failingStore) Delete(context.Context, string) error {
	return fault.New(fault.KindStorageFailure, "disk full")
}

func TestSetConfig_StorageFailure(t *testing.T) {
	bus, rec := newBus(t)
	m := New(Options{Events: bus, Storage: failingStore{storage.NewMemory()}, Log: logging.New(nil, "silent")})

	err := m.SetConfig(context.Background(), "calendar", Values{"a": 1})
	assert.True(t, fault.IsKind(err, fault.KindStorageFailure))

	_, ok := m.GetConfig("calendar")
	assert.False(t, ok)
	assert.Equal(t, []string{eventbus.ConfigError}, rec.types())

	err = m.DeleteConfig(context.Background(), "calendar")
	assert.True(t, fault.IsKind(err, fault.KindStorageFailure))
}

func TestSaveAndDeleteConfig(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	bus, rec := newBus(t)
	m := New(Options{Events: bus, Storage: store, Log: logging.New(nil, "silent")})

	assert.True(t, fault.IsKind(m.SaveConfig(ctx, "calendar"), fault.KindNotFound))

	require.NoError(t, m.SetConfig(ctx, "calendar", Values{"a": 1}))
	require.NoError(t, store.Clear(ctx))
	require.NoError(t, m.SaveConfig(ctx, "calendar"))

	saved, err := store.Load(ctx, "calendar")
	require.NoError(t, err)
	assert.Equal(t, 1, saved["a"])

	require.NoError(t, m.DeleteConfig(ctx, "calendar"))
	_, ok := m.GetConfig("calendar")
	assert.False(t, ok)
	saved, err = store.Load(ctx, "calendar")
	require.NoError(t, err)
	assert.Nil(t, saved)

	// deleting again is quiet
	require.NoError(t, m.DeleteConfig(ctx, "calendar"))
	assert.Equal(t, []string{eventbus.ConfigChanged, eventbus.ConfigChanged}, rec.types())
}

func TestSaveConfig_NoStorage(t *testing.T) {
	m := New(Options{Log: logging.New(nil, "silent")})
	assert.True(t, fault.IsKind(m.SaveConfig(context.Background(), "x"), fault.KindUnsupported))
}
