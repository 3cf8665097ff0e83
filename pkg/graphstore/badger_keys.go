package graphstore

import (
	"encoding/binary"

	"github.com/happyrust/plantgraph/pkg/element"
)

// Key layout, one leading type byte per keyspace:
//
//	'e' + ref(8)                 element record (msgpack attributes)
//	'c' + owner(8) + child(8)    child index, value empty
//	't' + tag + 0x00 + ref(8)    type index, value empty
//
// References encode as big-endian (db, seq) so prefix scans iterate in RefNo
// order within a keyspace.
const (
	prefixElement = byte('e')
	prefixChild   = byte('c')
	prefixType    = byte('t')
)

func refBytes(ref element.RefNo) [8]byte {
	var b [8]byte
	binary.BigEndian.PutUint32(b[:4], uint32(ref.DB))
	binary.BigEndian.PutUint32(b[4:], uint32(ref.Seq))
	return b
}

func refFromBytes(b []byte) element.RefNo {
	return element.RefNo{
		DB:  int32(binary.BigEndian.Uint32(b[:4])),
		Seq: int32(binary.BigEndian.Uint32(b[4:8])),
	}
}

func elementKey(ref element.RefNo) []byte {
	rb := refBytes(ref)
	return append([]byte{prefixElement}, rb[:]...)
}

func childKey(owner, child element.RefNo) []byte {
	ob, cb := refBytes(owner), refBytes(child)
	key := make([]byte, 0, 17)
	key = append(key, prefixChild)
	key = append(key, ob[:]...)
	key = append(key, cb[:]...)
	return key
}

func childPrefix(owner element.RefNo) []byte {
	ob := refBytes(owner)
	return append([]byte{prefixChild}, ob[:]...)
}

func typeKey(tag string, ref element.RefNo) []byte {
	rb := refBytes(ref)
	key := make([]byte, 0, len(tag)+10)
	key = append(key, prefixType)
	key = append(key, tag...)
	key = append(key, 0)
	key = append(key, rb[:]...)
	return key
}

func typePrefix(tag string) []byte {
	key := make([]byte, 0, len(tag)+2)
	key = append(key, prefixType)
	key = append(key, tag...)
	key = append(key, 0)
	return key
}

func refFromIndexSuffix(key []byte) element.RefNo {
	return refFromBytes(key[len(key)-8:])
}
