package luastack

import (
	"fmt"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// SlotInfo describes one stack slot.
type SlotInfo struct {
	Index int    `json:"index"`
	Kind  Kind   `json:"kind"`
	Repr  string `json:"repr"`
}

func (si SlotInfo) String() string {
	return fmt.Sprintf("[%d] %s %s", si.Index, si.Kind, si.Repr)
}

// Dump describes every slot from the bottom of the stack to the top. It
// never retains anything.
func (s *Stack) Dump() []SlotInfo {
	if s.rt.closed {
		return nil
	}
	top := s.L.GetTop()
	slots := make([]SlotInfo, 0, top)
	for i := 1; i <= top; i++ {
		lv := s.L.Get(i)
		slots = append(slots, SlotInfo{Index: i, Kind: kindOf(lv), Repr: reprOf(lv)})
	}
	return slots
}

// DumpString renders Dump one slot per line.
func (s *Stack) DumpString() string {
	var sb strings.Builder
	for _, slot := range s.Dump() {
		sb.WriteString(slot.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func reprOf(lv lua.LValue) string {
	switch v := lv.(type) {
	case lua.LString:
		return strconv.Quote(string(v))
	case *lua.LTable:
		return fmt.Sprintf("%s len=%d", v.String(), v.Len())
	}
	return lv.String()
}
