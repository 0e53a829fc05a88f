// Package gateway implements the syscall gateway of spec.md §4.6: trap
// dispatch, user/kernel byte transfer, and process lifecycle (Exec/Join),
// built on top of internal/sched, internal/vm, and internal/fs. The
// instruction interpreter that populates Registers_t before every trap is
// an external collaborator (spec.md §1) and is not implemented here.
package gateway

// Register indices matching the MIPS-like calling convention spec.md §4.6
// assumes: syscall id and return value in Reg2, up to four arguments in
// Reg4..Reg7, current/next program counters in RegPC/RegNextPC.
const (
	Reg2 = 2
	Reg4 = 4
	Reg5 = 5
	Reg6 = 6
	Reg7 = 7

	RegPC     = 32
	RegNextPC = 33
	RegSP     = 29

	numRegs = 34
)

// Registers_t is one thread's simulated register file, per spec.md §4.6.
type Registers_t struct {
	r [numRegs]int32
}

func (r *Registers_t) Get(i int) int32     { return r.r[i] }
func (r *Registers_t) Set(i int, v int32)  { r.r[i] = v }

// Arg returns syscall argument n (0-indexed, backed by Reg4..Reg7).
func (r *Registers_t) Arg(n int) int32 {
	return r.r[Reg4+n]
}

// SetReturn writes a syscall's return value to Reg2.
func (r *Registers_t) SetReturn(v int32) {
	r.r[Reg2] = v
}

// AdvancePC moves PC to NextPC and NextPC one instruction further, per
// spec.md §4.6: "at the end of every syscall the gateway advances PC/
// NEXT_PC by one instruction."
func (r *Registers_t) AdvancePC() {
	r.r[RegPC] = r.r[RegNextPC]
	r.r[RegNextPC] += 4
}
