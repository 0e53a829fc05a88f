package gateway

import (
	"github.com/jfarizano/Nachos/internal/fs"
	"github.com/jfarizano/Nachos/internal/sched"
	"github.com/jfarizano/Nachos/internal/vm"
)

// Process_t bundles everything the gateway needs to service a trap for one
// user thread: its pid and kernel thread id, its address space, its FD
// table, and its register file. The TLB is not part of it; the single
// machine-wide TLB lives on Gateway_t.
type Process_t struct {
	Pid   int
	Tid   sched.Tid_t
	Space *vm.AddrSpace_t
	Files *fs.FDTable_t
	Regs  Registers_t
}
