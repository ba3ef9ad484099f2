// Package config implements the State component: it loads the two
// declarative configuration documents, flattens them into a dotted
// key/value view, and persists changes back with a .bak of the previous
// version.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/deskflow/kernel/internal/eventbus"
	"github.com/deskflow/kernel/internal/logging"
)

const TopicConfigChanged = "state.config.changed"

// State owns the two configuration documents and their flattened view.
type State struct {
	settings Settings
	modules  Modules
	flat     map[string]interface{}
	bus      *eventbus.Bus
}

// Load reads both documents from disk, materializing defaults for any
// that are missing, and flattens them into the dotted key/value map.
func Load(bus *eventbus.Bus) (*State, error) {
	s := &State{bus: bus}

	settings, err := loadOrCreate(SettingsPath(), defaultSettings())
	if err != nil {
		return nil, fmt.Errorf("load settings document: %w", err)
	}
	s.settings = settings

	modules, err := loadOrCreate(ModulesPath(), defaultModules())
	if err != nil {
		return nil, fmt.Errorf("load modules document: %w", err)
	}
	s.modules = modules

	s.rebuildFlat()
	return s, nil
}

func loadOrCreate[T any](path string, fallback T) (T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if writeErr := writeDocument(path, fallback); writeErr != nil {
			return fallback, writeErr
		}
		return fallback, nil
	}
	if err != nil {
		return fallback, err
	}
	var doc T
	if err := json.Unmarshal(data, &doc); err != nil {
		return fallback, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func writeDocument(path string, doc interface{}) error {
	if err := os.MkdirAll(dirOf(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return "."
	}
	return path[:idx]
}

// Settings and Modules return read-only snapshots of the parsed documents.
func (s *State) Settings() Settings { return s.settings }
func (s *State) Modules() Modules   { return s.modules }

// GetConfig looks up key (e.g. "general.theme", "workers.python.enabled")
// in the flattened view, returning fallback if it is absent.
func (s *State) GetConfig(key string, fallback interface{}) interface{} {
	if v, ok := s.flat[key]; ok {
		return v
	}
	return fallback
}

// SetConfig mutates the flattened view and the backing struct in place,
// then publishes state.config.changed. It does not persist to disk —
// SaveConfiguration does that explicitly: runtime mutations are in-memory
// and persisted only on save.
func (s *State) SetConfig(key string, value interface{}) error {
	if err := s.applyToStructs(key, value); err != nil {
		return err
	}
	s.rebuildFlat()
	if s.bus != nil {
		s.bus.Publish(TopicConfigChanged, map[string]interface{}{"key": key, "value": value})
	}
	return nil
}

// applyToStructs writes value back into the typed Settings/Modules structs
// by dotted path, so SaveConfiguration re-serializes a consistent document.
func (s *State) applyToStructs(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return fmt.Errorf("empty config key")
	}
	switch parts[0] {
	case "general", "export", "vat":
		return setFieldPath(reflect.ValueOf(&s.settings).Elem(), parts, value)
	case "workers":
		if len(parts) < 3 {
			return fmt.Errorf("workers config key must be workers.<name>.<field>")
		}
		wc, ok := s.modules.Workers[parts[1]]
		if !ok {
			wc = WorkerConfig{}
		}
		if err := setFieldPath(reflect.ValueOf(&wc).Elem(), parts[2:], value); err != nil {
			return err
		}
		if s.modules.Workers == nil {
			s.modules.Workers = map[string]WorkerConfig{}
		}
		s.modules.Workers[parts[1]] = wc
		return nil
	default:
		return fmt.Errorf("unknown config section %q", parts[0])
	}
}

// setFieldPath walks struct fields by their json tag, matching the head of
// path case-insensitively against the field's json name (the Go field name
// when the field has no json tag).
func setFieldPath(v reflect.Value, path []string, value interface{}) error {
	if len(path) == 0 {
		return fmt.Errorf("empty field path")
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := jsonName(field)
		if !strings.EqualFold(tag, path[0]) {
			continue
		}
		fv := v.Field(i)
		if len(path) == 1 {
			return assign(fv, value)
		}
		if fv.Kind() == reflect.Struct {
			return setFieldPath(fv, path[1:], value)
		}
		return fmt.Errorf("field %q is not a nested section", path[0])
	}
	return fmt.Errorf("unknown config field %q", path[0])
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	return strings.Split(tag, ",")[0]
}

func assign(fv reflect.Value, value interface{}) error {
	rv := reflect.ValueOf(value)
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(fmt.Sprint(value))
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			parsed, err := strconv.ParseBool(fmt.Sprint(value))
			if err != nil {
				return err
			}
			b = parsed
		}
		fv.SetBool(b)
	case reflect.Float64, reflect.Float32:
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	case reflect.Int, reflect.Int64:
		f, err := toFloat(value)
		if err != nil {
			return err
		}
		fv.SetInt(int64(f))
	case reflect.Ptr:
		elem := reflect.New(fv.Type().Elem())
		if err := assign(elem.Elem(), value); err != nil {
			return err
		}
		fv.Set(elem)
	default:
		if rv.Type().AssignableTo(fv.Type()) {
			fv.Set(rv)
			return nil
		}
		return fmt.Errorf("unsupported config field kind %s", fv.Kind())
	}
	return nil
}

func toFloat(value interface{}) (float64, error) {
	switch t := value.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}

// SaveConfiguration re-emits both documents, keeping a .bak copy of each
// previous version first.
func (s *State) SaveConfiguration() error {
	if err := backupAndWrite(SettingsPath(), s.settings); err != nil {
		return fmt.Errorf("save settings document: %w", err)
	}
	if err := backupAndWrite(ModulesPath(), s.modules); err != nil {
		return fmt.Errorf("save modules document: %w", err)
	}
	return nil
}

func backupAndWrite(path string, doc interface{}) error {
	if data, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", data, 0o644); err != nil {
			logging.Error("config: failed to write backup for %s: %v", path, err)
		}
	}
	return writeDocument(path, doc)
}

// rebuildFlat recomputes the dotted key/value view from the two typed
// documents.
func (s *State) rebuildFlat() {
	flat := map[string]interface{}{}
	flattenInto(flat, "general", s.settings.General)
	flattenInto(flat, "export", s.settings.Export)
	flattenInto(flat, "vat", s.settings.VAT)
	for name, wc := range s.modules.Workers {
		flattenInto(flat, "workers."+name, wc)
	}
	s.flat = flat
}

// flattenInto walks a struct's exported fields by json tag and writes
// scalar leaves (or nested structs, recursively) under prefix.
func flattenInto(out map[string]interface{}, prefix string, v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		out[prefix] = v
		return
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := jsonName(field)
		if name == "-" {
			continue
		}
		fv := rv.Field(i)
		key := prefix + "." + name
		switch fv.Kind() {
		case reflect.Struct:
			flattenInto(out, key, fv.Interface())
		case reflect.Ptr:
			if !fv.IsNil() {
				out[key] = fv.Elem().Interface()
			}
		default:
			out[key] = fv.Interface()
		}
	}
}

// Keys returns every flattened key in sorted order, for "config show".
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.flat))
	for k := range s.flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
