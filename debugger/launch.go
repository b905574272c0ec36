// Copyright © 2018 The ELPS authors

package debugger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/neo-project/neo-debugger-sub000/debuginfo"
	"github.com/neo-project/neo-debugger-sub000/neovm"
	"github.com/neo-project/neo-debugger-sub000/storage"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// LaunchConfig is the configuration of a debug session, as passed in the
// arguments of a DAP launch request.
type LaunchConfig struct {
	Program       string            `mapstructure:"program"`
	Invocation    InvocationConfig  `mapstructure:"invocation"`
	Checkpoint    string            `mapstructure:"checkpoint"`
	Storage       []StorageEntry    `mapstructure:"storage"`
	Signers       []string          `mapstructure:"signers"`
	ReturnTypes   []string          `mapstructure:"return-types"`
	SourceFileMap map[string]string `mapstructure:"-"`
	StopOnEntry   bool              `mapstructure:"stopOnEntry"`
	DebugInfo     string            `mapstructure:"debugInfo"`
	DebugView     string            `mapstructure:"debugView"`
}

// InvocationConfig selects what a session runs. Operation and Args invoke
// a contract method, InvokeFile reads them from a JSON file, and TraceFile
// replays a recorded trace.
type InvocationConfig struct {
	Operation      string `mapstructure:"operation" json:"operation"`
	Args           []any  `mapstructure:"-" json:"args"`
	InvokeFile     string `mapstructure:"invoke-file"`
	TraceFile      string `mapstructure:"trace-file"`
	OracleResponse any    `mapstructure:"oracle-response"`
}

// StorageEntry is a storage key and value, each in contract argument
// syntax.
type StorageEntry struct {
	Key   any `mapstructure:"key"`
	Value any `mapstructure:"value"`
}

// rawLaunchFields are decoded from the launch JSON directly. Viper folds
// map keys to lower case, splits them on dots and reads numbers as float64,
// which would corrupt source paths and large integer arguments.
type rawLaunchFields struct {
	SourceFileMap map[string]string `json:"sourceFileMap"`
	Invocation    struct {
		Args []any `json:"args"`
	} `json:"invocation"`
}

// DecodeLaunchConfig decodes JSON launch arguments.
func DecodeLaunchConfig(raw []byte) (*LaunchConfig, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("launch arguments: %w", err)
	}
	cfg := &LaunchConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("launch arguments: %w", err)
	}
	var fields rawLaunchFields
	if err := decodeJSON(raw, &fields); err != nil {
		return nil, fmt.Errorf("launch arguments: %w", err)
	}
	cfg.SourceFileMap = fields.SourceFileMap
	cfg.Invocation.Args = fields.Invocation.Args
	return cfg, nil
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// Validate reports every problem with the configuration.
func (cfg *LaunchConfig) Validate() error {
	var err error
	if cfg.Program == "" {
		err = multierr.Append(err, errors.New("program is required"))
	}
	inv := cfg.Invocation
	if inv.OracleResponse != nil {
		err = multierr.Append(err, errors.New("oracle-response invocations are not supported"))
	}
	if inv.InvokeFile != "" && (inv.Operation != "" || len(inv.Args) > 0) {
		err = multierr.Append(err, errors.New("invoke-file cannot be combined with operation or args"))
	}
	if inv.TraceFile != "" && (inv.InvokeFile != "" || inv.Operation != "" || len(inv.Args) > 0) {
		err = multierr.Append(err, errors.New("trace-file cannot be combined with another invocation"))
	}
	for i, name := range cfg.ReturnTypes {
		if name == "" {
			continue
		}
		if !isKnownCast(name) {
			err = multierr.Append(err, fmt.Errorf("return-types[%d]: unknown cast %q", i, name))
		}
	}
	return err
}

func isKnownCast(name string) bool {
	for _, c := range CastNames {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// Launch builds a session for cfg. Execution has not started; the caller
// runs Session.Start. Options are applied after the ones Launch derives
// from cfg.
func Launch(ctx context.Context, cfg *LaunchConfig, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	nef, err := neovm.LoadNEF(cfg.Program)
	if err != nil {
		return nil, err
	}
	script := neovm.NewScript(nef.Script)
	info, err := loadDebugInfo(cfg, script.Hash(), optionLogger(opts))
	if err != nil {
		return nil, err
	}

	var engine Engine
	if cfg.Invocation.TraceFile != "" {
		engine, err = LoadTrace(cfg.Invocation.TraceFile)
	} else {
		engine, err = newLaunchEngine(cfg, script, info)
	}
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithContext(ctx),
		WithReturnTypes(cfg.ReturnTypes),
		WithDebugInfo(info),
	}
	s := NewSession(engine, neovm.DefaultSyscalls(), append(base, opts...)...)
	if cfg.DebugView != "" {
		if err := s.SetDebugView(cfg.DebugView); err != nil {
			s.Close()
			return nil, err
		}
	}
	s.logger.WithFields(log.Fields{
		"program": cfg.Program,
		"script":  script.Hash().String(),
	}).Info("launched")
	return s, nil
}

// loadDebugInfo loads the explicit debugInfo path, or the file next to the
// program. A program without debug info is debugged as disassembly.
func loadDebugInfo(cfg *LaunchConfig, hash neovm.Hash160, logger *log.Entry) (*debuginfo.DebugInfo, error) {
	path := cfg.DebugInfo
	if path == "" {
		var err error
		path, err = debuginfo.Locate(cfg.Program)
		if errors.Is(err, debuginfo.ErrNotFound) {
			logger.WithField("program", cfg.Program).Warn("no debug info found")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
	}
	info, err := debuginfo.Load(path)
	if err != nil {
		return nil, err
	}
	if !info.Hash.IsZero() && info.Hash != hash {
		logger.WithFields(log.Fields{
			"debugInfo": path,
			"expected":  hash.String(),
			"found":     info.Hash.String(),
		}).Warn("debug info hash does not match program")
	}
	info.Hash = hash
	info.Remap(cfg.SourceFileMap)
	return info, nil
}

// optionLogger returns the logger opts give the session, for logging
// before the session exists.
func optionLogger(opts []Option) *log.Entry {
	s := &Session{
		logger: log.NewEntry(log.StandardLogger()),
		infos:  make(map[neovm.Hash160]*debuginfo.DebugInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s.logger
}

// newLaunchEngine prepares a live engine: storage, signers and the
// invocation with its arguments.
func newLaunchEngine(cfg *LaunchConfig, script *neovm.Script, info *debuginfo.DebugInfo) (*LiveEngine, error) {
	var store *storage.MemoryStore
	if cfg.Checkpoint != "" {
		var err error
		store, err = storage.LoadCheckpoint(cfg.Checkpoint)
		if err != nil {
			return nil, err
		}
	} else {
		store = storage.NewMemoryStore()
	}

	var errs error
	entries := make([]storage.Entry, 0, len(cfg.Storage))
	for i, e := range cfg.Storage {
		key, err := ArgumentBytes(e.Key)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("storage[%d] key: %w", i, err))
			continue
		}
		value, err := ArgumentBytes(e.Value)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("storage[%d] value: %w", i, err))
			continue
		}
		entries = append(entries, storage.Entry{Key: key, Value: value})
	}
	host := neovm.Host{Trigger: neovm.TriggerApplication}
	for i, s := range cfg.Signers {
		h, err := ParseSigner(s)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("signers[%d]: %w", i, err))
			continue
		}
		host.Signers = append(host.Signers, h)
	}
	inv, err := resolveInvocation(cfg.Invocation)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	args, err := ParseArguments(inv.Args)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	pos, err := entryPoint(info, inv.Operation)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return nil, errs
	}

	store.Seed(script.Hash(), entries)
	engine := NewLiveEngine(host, store)
	engine.Load(script, pos, args...)
	return engine, nil
}

// resolveInvocation reads the operation and arguments from the invoke
// file, if one is given.
func resolveInvocation(inv InvocationConfig) (InvocationConfig, error) {
	if inv.InvokeFile == "" {
		return inv, nil
	}
	raw, err := os.ReadFile(inv.InvokeFile)
	if err != nil {
		return inv, err
	}
	var fromFile InvocationConfig
	if err := decodeJSON(raw, &fromFile); err != nil {
		return inv, fmt.Errorf("%s: %w", inv.InvokeFile, err)
	}
	return fromFile, nil
}

// entryPoint returns the script position of operation. The empty
// operation starts at the beginning of the script.
func entryPoint(info *debuginfo.DebugInfo, operation string) (int, error) {
	if operation == "" {
		return 0, nil
	}
	if info == nil {
		return 0, fmt.Errorf("operation %q needs debug info to locate it", operation)
	}
	m, ok := info.FindMethod(operation)
	if !ok {
		return 0, fmt.Errorf("operation %q not found", operation)
	}
	return m.Range.Start, nil
}
