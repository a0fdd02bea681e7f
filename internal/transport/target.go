package transport

import "fmt"

// Target addresses either every connected stimulator or one of them.
type Target uint8

const (
	Broadcast Target = iota
	Device1
	Device2
	Device3
)

// TargetFromInt maps 0..3 to the matching target. Any other value selects
// Device1.
func TargetFromInt(v int) Target {
	switch v {
	case 0:
		return Broadcast
	case 1:
		return Device1
	case 2:
		return Device2
	case 3:
		return Device3
	default:
		return Device1
	}
}

func (t Target) String() string {
	switch t {
	case Broadcast:
		return "broadcast"
	case Device1:
		return "wss1"
	case Device2:
		return "wss2"
	case Device3:
		return "wss3"
	default:
		return fmt.Sprintf("target(%d)", uint8(t))
	}
}
