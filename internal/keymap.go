package internal

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

const (
	keysymNoSymbol = 0
	keypadFirst    = 0xff80
	keypadLast     = 0xffbd
	keypadZero     = 0xffb0
	keypadNine     = 0xffb9
)

// keypadChars maps keypad operator keysyms to their characters
var keypadChars = map[uint32]byte{
	0xff80: ' ', // KP_Space
	0xffaa: '*', // KP_Multiply
	0xffab: '+', // KP_Add
	0xffac: ',', // KP_Separator
	0xffad: '-', // KP_Subtract
	0xffae: '.', // KP_Decimal
	0xffaf: '/', // KP_Divide
	0xffbd: '=', // KP_Equal
}

// Keymap translates key press events to keysyms using the core keyboard mapping
type Keymap struct {
	minKeycode xproto.Keycode
	perKeycode int
	keysyms    []xproto.Keysym
	numLock    uint16 // modifier mask carrying Num_Lock
}

// NewKeymap wraps a GetKeyboardMapping reply starting at minKeycode
func NewKeymap(minKeycode xproto.Keycode, perKeycode int, keysyms []xproto.Keysym) *Keymap {
	return &Keymap{
		minKeycode: minKeycode,
		perKeycode: perKeycode,
		keysyms:    keysyms,
		numLock:    xproto.ModMask2,
	}
}

// LoadKeymap fetches the full keyboard mapping from the server
func LoadKeymap(conn *xgb.Conn) (*Keymap, error) {
	setup := xproto.Setup(conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)

	Debug("Fetching keyboard mapping for keycodes %d..%d", setup.MinKeycode, setup.MaxKeycode)
	reply, err := xproto.GetKeyboardMapping(conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return nil, err
	}
	return NewKeymap(setup.MinKeycode, int(reply.KeysymsPerKeycode), reply.Keysyms), nil
}

// Lookup returns the keysym for a key press and its printable ASCII character,
// or 0 when the key has none.
func (k *Keymap) Lookup(keycode xproto.Keycode, state uint16) (uint32, byte) {
	sym := k.keysym(keycode, state)
	return sym, keysymChar(sym)
}

func (k *Keymap) keysym(keycode xproto.Keycode, state uint16) uint32 {
	if keycode < k.minKeycode || k.perKeycode == 0 {
		return keysymNoSymbol
	}
	start := int(keycode-k.minKeycode) * k.perKeycode
	if start >= len(k.keysyms) {
		return keysymNoSymbol
	}

	lower := uint32(k.keysyms[start])
	upper := uint32(keysymNoSymbol)
	if k.perKeycode > 1 {
		upper = uint32(k.keysyms[start+1])
	}
	if upper == keysymNoSymbol {
		lower, upper = caseVariants(lower)
	}

	shift := state&xproto.ModMaskShift != 0
	lock := state&xproto.ModMaskLock != 0

	if state&k.numLock != 0 && isKeypad(upper) {
		if shift {
			return lower
		}
		return upper
	}

	sym := lower
	if shift {
		sym = upper
	}
	if lock {
		_, sym = caseVariants(sym)
	}
	return sym
}

// caseVariants returns the lower and upper case forms of a Latin letter keysym
func caseVariants(sym uint32) (uint32, uint32) {
	switch {
	case sym >= 'a' && sym <= 'z':
		return sym, sym - 'a' + 'A'
	case sym >= 'A' && sym <= 'Z':
		return sym - 'A' + 'a', sym
	default:
		return sym, sym
	}
}

func isKeypad(sym uint32) bool {
	return sym >= keypadFirst && sym <= keypadLast
}

// keysymChar returns the ASCII character a keysym types, 0 for none
func keysymChar(sym uint32) byte {
	switch {
	case sym >= 0x20 && sym <= 0x7e:
		return byte(sym)
	case sym >= keypadZero && sym <= keypadNine:
		return byte('0' + sym - keypadZero)
	}
	return keypadChars[sym]
}
