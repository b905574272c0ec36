// Copyright © 2018 The ELPS authors

package neovm

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
)

// Well known interop service names.
const (
	SyscallRuntimePlatform               = "System.Runtime.Platform"
	SyscallRuntimeGetNetwork             = "System.Runtime.GetNetwork"
	SyscallRuntimeGetTrigger             = "System.Runtime.GetTrigger"
	SyscallRuntimeGetTime                = "System.Runtime.GetTime"
	SyscallRuntimeGetScriptContainer     = "System.Runtime.GetScriptContainer"
	SyscallRuntimeGetExecutingScriptHash = "System.Runtime.GetExecutingScriptHash"
	SyscallRuntimeGetCallingScriptHash   = "System.Runtime.GetCallingScriptHash"
	SyscallRuntimeGetEntryScriptHash     = "System.Runtime.GetEntryScriptHash"
	SyscallRuntimeCheckWitness           = "System.Runtime.CheckWitness"
	SyscallRuntimeGetInvocationCounter   = "System.Runtime.GetInvocationCounter"
	SyscallRuntimeGetRandom              = "System.Runtime.GetRandom"
	SyscallRuntimeLog                    = "System.Runtime.Log"
	SyscallRuntimeNotify                 = "System.Runtime.Notify"
	SyscallRuntimeGetNotifications       = "System.Runtime.GetNotifications"
	SyscallRuntimeGasLeft                = "System.Runtime.GasLeft"
	SyscallRuntimeBurnGas                = "System.Runtime.BurnGas"
	SyscallStorageGetContext             = "System.Storage.GetContext"
	SyscallStorageGetReadOnlyContext     = "System.Storage.GetReadOnlyContext"
	SyscallStorageAsReadOnly             = "System.Storage.AsReadOnly"
	SyscallStorageGet                    = "System.Storage.Get"
	SyscallStorageFind                   = "System.Storage.Find"
	SyscallStoragePut                    = "System.Storage.Put"
	SyscallStorageDelete                 = "System.Storage.Delete"
)

var knownSyscalls = []string{
	"System.Contract.Call",
	"System.Contract.CallNative",
	"System.Contract.GetCallFlags",
	"System.Contract.CreateStandardAccount",
	"System.Contract.CreateMultisigAccount",
	"System.Contract.NativeOnPersist",
	"System.Contract.NativePostPersist",
	"System.Crypto.CheckSig",
	"System.Crypto.CheckMultisig",
	"System.Iterator.Next",
	"System.Iterator.Value",
	SyscallRuntimePlatform,
	SyscallRuntimeGetNetwork,
	"System.Runtime.GetAddressVersion",
	SyscallRuntimeGetTrigger,
	SyscallRuntimeGetTime,
	SyscallRuntimeGetScriptContainer,
	SyscallRuntimeGetExecutingScriptHash,
	SyscallRuntimeGetCallingScriptHash,
	SyscallRuntimeGetEntryScriptHash,
	SyscallRuntimeCheckWitness,
	SyscallRuntimeGetInvocationCounter,
	SyscallRuntimeGetRandom,
	SyscallRuntimeLog,
	SyscallRuntimeNotify,
	SyscallRuntimeGetNotifications,
	SyscallRuntimeGasLeft,
	SyscallRuntimeBurnGas,
	"System.Runtime.CurrentSigners",
	SyscallStorageGetContext,
	SyscallStorageGetReadOnlyContext,
	SyscallStorageAsReadOnly,
	SyscallStorageGet,
	SyscallStorageFind,
	SyscallStoragePut,
	SyscallStorageDelete,
}

// SyscallHash returns the 4-byte interop token NeoVM uses for name: the
// first four bytes of SHA256(name) read as a little-endian uint32.
func SyscallHash(name string) uint32 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint32(sum[:4])
}

// SyscallTable maps interop tokens to service names. It is read-only once
// built.
type SyscallTable struct {
	names map[uint32]string
}

// NewSyscallTable builds a table from the given service names.
func NewSyscallTable(names ...string) SyscallTable {
	t := SyscallTable{names: make(map[uint32]string, len(names))}
	for _, n := range names {
		t.names[SyscallHash(n)] = n
	}
	return t
}

// DefaultSyscalls returns a table covering the standard Neo N3 interop
// services.
func DefaultSyscalls() SyscallTable {
	return NewSyscallTable(knownSyscalls...)
}

// Lookup returns the service name registered for token.
func (t SyscallTable) Lookup(token uint32) (string, bool) {
	n, ok := t.names[token]
	return n, ok
}

// Names returns the registered service names in sorted order.
func (t SyscallTable) Names() []string {
	out := make([]string, 0, len(t.names))
	for _, n := range t.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
