// Copyright © 2018 The ELPS authors

package neovm

import (
	"errors"
	"fmt"
	"math/big"
)

// TriggerApplication is the trigger of a regular contract invocation.
const TriggerApplication byte = 0x40

// Storage is the contract storage a VM reads and writes through the
// System.Storage interop services.
type Storage interface {
	Get(contract Hash160, key []byte) ([]byte, bool)
	Put(contract Hash160, key, value []byte)
	Delete(contract Hash160, key []byte)
}

// Host supplies the blockchain environment seen by interop services.
// Zero values are usable: no signers, no storage, no event sinks.
type Host struct {
	Trigger byte
	Network uint32
	Time    uint64
	Signers []Hash160
	Storage Storage

	OnLog    func(contract Hash160, message string)
	OnNotify func(contract Hash160, event string, state *Array)
}

// StorageContext is the interop value returned by
// System.Storage.GetContext.
type StorageContext struct {
	Hash     Hash160
	ReadOnly bool
}

type interopFunc func(v *VM) error

var errNoStorage = errors.New("no storage is attached")

func defaultInterops() map[uint32]interopFunc {
	fns := map[string]interopFunc{
		SyscallRuntimePlatform: func(v *VM) error {
			return v.push(ByteString("NEO"))
		},
		SyscallRuntimeGetNetwork: func(v *VM) error {
			return v.push(NewInt(int64(v.host.Network)))
		},
		SyscallRuntimeGetTrigger: func(v *VM) error {
			t := v.host.Trigger
			if t == 0 {
				t = TriggerApplication
			}
			return v.push(NewInt(int64(t)))
		},
		SyscallRuntimeGetTime: func(v *VM) error {
			return v.push(Integer{Value: new(big.Int).SetUint64(v.host.Time)})
		},
		SyscallRuntimeGetExecutingScriptHash: func(v *VM) error {
			return v.push(ByteString(v.CurrentContext().ScriptHash().Bytes()))
		},
		SyscallRuntimeGetCallingScriptHash: func(v *VM) error {
			cur := v.CurrentContext().ScriptHash()
			for i := len(v.istack) - 2; i >= 0; i-- {
				if h := v.istack[i].ScriptHash(); h != cur {
					return v.push(ByteString(h.Bytes()))
				}
			}
			return v.push(Null{})
		},
		SyscallRuntimeGetEntryScriptHash: func(v *VM) error {
			return v.push(ByteString(v.istack[0].ScriptHash().Bytes()))
		},
		SyscallRuntimeGetInvocationCounter: func(v *VM) error {
			return v.push(NewInt(1))
		},
		SyscallRuntimeGasLeft: func(v *VM) error {
			return v.push(NewInt(-1))
		},
		SyscallRuntimeBurnGas: func(v *VM) error {
			_, err := v.popBig()
			return err
		},
		SyscallRuntimeCheckWitness: func(v *VM) error {
			b, err := v.popBytes()
			if err != nil {
				return err
			}
			h, ok := Hash160FromBytes(b)
			if !ok {
				return fmt.Errorf("check witness expects a 20 byte script hash, got %d bytes", len(b))
			}
			for _, s := range v.host.Signers {
				if s == h {
					return v.push(Boolean(true))
				}
			}
			return v.push(Boolean(false))
		},
		SyscallRuntimeLog: func(v *VM) error {
			b, err := v.popBytes()
			if err != nil {
				return err
			}
			if v.host.OnLog != nil {
				v.host.OnLog(v.CurrentContext().ScriptHash(), string(b))
			}
			return nil
		},
		SyscallRuntimeNotify: func(v *VM) error {
			name, err := v.popBytes()
			if err != nil {
				return err
			}
			it, err := v.pop()
			if err != nil {
				return err
			}
			state, ok := it.(*Array)
			if !ok {
				return fmt.Errorf("notify state must be an Array, got %s", TypeOf(it))
			}
			if v.host.OnNotify != nil {
				v.host.OnNotify(v.CurrentContext().ScriptHash(), string(name), state)
			}
			return nil
		},
		SyscallStorageGetContext: func(v *VM) error {
			return v.push(InteropInterface{Value: StorageContext{Hash: v.CurrentContext().ScriptHash()}})
		},
		SyscallStorageGetReadOnlyContext: func(v *VM) error {
			return v.push(InteropInterface{Value: StorageContext{Hash: v.CurrentContext().ScriptHash(), ReadOnly: true}})
		},
		SyscallStorageAsReadOnly: func(v *VM) error {
			sc, err := v.popStorageContext()
			if err != nil {
				return err
			}
			sc.ReadOnly = true
			return v.push(InteropInterface{Value: sc})
		},
		SyscallStorageGet: func(v *VM) error {
			sc, err := v.popStorageContext()
			if err != nil {
				return err
			}
			key, err := v.popBytes()
			if err != nil {
				return err
			}
			if v.host.Storage == nil {
				return v.push(Null{})
			}
			val, ok := v.host.Storage.Get(sc.Hash, key)
			if !ok {
				return v.push(Null{})
			}
			return v.push(ByteString(val))
		},
		SyscallStoragePut: func(v *VM) error {
			sc, err := v.popStorageContext()
			if err != nil {
				return err
			}
			key, err := v.popBytes()
			if err != nil {
				return err
			}
			val, err := v.popBytes()
			if err != nil {
				return err
			}
			if sc.ReadOnly {
				return errors.New("storage context is read only")
			}
			if v.host.Storage == nil {
				return errNoStorage
			}
			v.host.Storage.Put(sc.Hash, key, val)
			return nil
		},
		SyscallStorageDelete: func(v *VM) error {
			sc, err := v.popStorageContext()
			if err != nil {
				return err
			}
			key, err := v.popBytes()
			if err != nil {
				return err
			}
			if sc.ReadOnly {
				return errors.New("storage context is read only")
			}
			if v.host.Storage == nil {
				return errNoStorage
			}
			v.host.Storage.Delete(sc.Hash, key)
			return nil
		},
	}
	out := make(map[uint32]interopFunc, len(fns))
	for name, fn := range fns {
		out[SyscallHash(name)] = fn
	}
	return out
}

func (v *VM) popStorageContext() (StorageContext, error) {
	it, err := v.pop()
	if err != nil {
		return StorageContext{}, err
	}
	ii, ok := it.(InteropInterface)
	if !ok {
		return StorageContext{}, fmt.Errorf("expected a storage context, got %s", TypeOf(it))
	}
	sc, ok := ii.Value.(StorageContext)
	if !ok {
		return StorageContext{}, fmt.Errorf("expected a storage context, got %T", ii.Value)
	}
	return sc, nil
}
