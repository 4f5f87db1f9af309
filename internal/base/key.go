package base

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Key is an unsigned 128-bit identifier ordered numerically.
type Key struct {
	Hi uint64
	Lo uint64
}

// KeyFrom64 builds a key whose high half is zero.
func KeyFrom64(v uint64) Key {
	return Key{Lo: v}
}

// KeyFromUUID reads the 16 UUID bytes big-endian, so key order matches the
// byte order of the UUIDs.
func KeyFromUUID(u uuid.UUID) Key {
	return Key{
		Hi: binary.BigEndian.Uint64(u[0:8]),
		Lo: binary.BigEndian.Uint64(u[8:16]),
	}
}

// UUID is the inverse of KeyFromUUID.
func (k Key) UUID() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[0:8], k.Hi)
	binary.BigEndian.PutUint64(u[8:16], k.Lo)
	return u
}

// Compare returns -1, 0 or +1.
func (k Key) Compare(o Key) int {
	switch {
	case k.Hi < o.Hi:
		return -1
	case k.Hi > o.Hi:
		return 1
	case k.Lo < o.Lo:
		return -1
	case k.Lo > o.Lo:
		return 1
	}
	return 0
}

// Less reports whether k < o.
func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

func (k Key) String() string {
	if k.Hi == 0 {
		return fmt.Sprintf("%#x", k.Lo)
	}
	return fmt.Sprintf("%#x%016x", k.Hi, k.Lo)
}
