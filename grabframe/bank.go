// Copyright 2026 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

package grabframe

import "fmt"

// Bank identifies one of the three frame buffers the capture engine
// fills in rotation.
type Bank int

const (
	BankA Bank = iota
	BankB
	BankC
)

// NumBanks is the depth of the triple buffer.
const NumBanks = 3

// BankFromIndex maps the raw active-bank field reported by the capture
// engine to a Bank. The field is two bits wide but only 0, 1 and 2 are
// defined; anything else is treated as bank A.
func BankFromIndex(raw uint32) Bank {
	switch raw {
	case 1:
		return BankB
	case 2:
		return BankC
	default:
		return BankA
	}
}

// Valid reports whether b is one of A, B or C.
func (b Bank) Valid() bool {
	return b >= BankA && b <= BankC
}

func (b Bank) String() string {
	switch b {
	case BankA:
		return "A"
	case BankB:
		return "B"
	case BankC:
		return "C"
	default:
		return fmt.Sprintf("Bank(%d)", int(b))
	}
}
