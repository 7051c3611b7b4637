package cmap

import (
	"encoding/binary"
	"fmt"
	"reflect"

	"github.com/spaolacci/murmur3"
)

// hashKey returns a 64-bit murmur3 hash of key under seed.
// String and integer kinds (including named types such as handles) hash
// their bytes directly; other comparable types hash their formatted value.
func hashKey[K comparable](seed uint32, key K) uint64 {
	if s, ok := any(key).(string); ok {
		return murmur3.Sum64WithSeed([]byte(s), seed)
	}

	var buf [8]byte
	rv := reflect.ValueOf(key)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(rv.Int()))
		return murmur3.Sum64WithSeed(buf[:], seed)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		binary.LittleEndian.PutUint64(buf[:], rv.Uint())
		return murmur3.Sum64WithSeed(buf[:], seed)
	case reflect.String:
		return murmur3.Sum64WithSeed([]byte(rv.String()), seed)
	default:
		return murmur3.Sum64WithSeed([]byte(fmt.Sprintf("%v", key)), seed)
	}
}
