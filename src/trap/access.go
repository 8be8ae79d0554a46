package trap

import (
	"rvkernel/src/mem"
	"rvkernel/src/vm"
)

/// ReadContext loads the TrapContext resident at ppn in as.
func ReadContext(as *vm.AddrSpace, ppn mem.Ppn_t) TrapContext {
	page := as.FramePage(ppn)
	return UnmarshalTrapContext(page[:trapContextSize])
}

/// WriteContext stores tc into the page resident at ppn in as.
func WriteContext(as *vm.AddrSpace, ppn mem.Ppn_t, tc TrapContext) {
	page := as.FramePage(ppn)
	copy(page, tc.Marshal())
}
