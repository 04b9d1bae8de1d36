// Package address derives deterministic record keys from a namespace and the
// identifying fields of a record. Two records with the same identifying fields
// always map to the same key, which is what lets the store reject duplicates.
package address

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"time"
)

const (
	NamespaceExperience  = "experience"
	NamespaceSlot        = "slot"
	NamespaceReservation = "reservation"
)

// Derive hashes the namespace and each part, length-prefixed so that
// ("ab","c") and ("a","bc") never collide.
func Derive(namespace string, parts ...[]byte) string {
	h := sha256.New()
	writeSeed(h, []byte(namespace))
	for _, p := range parts {
		writeSeed(h, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeSeed(h hash.Hash, b []byte) {
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(b)))
	h.Write(n[:])
	h.Write(b)
}

func Experience(organiser, title string) string {
	return Derive(NamespaceExperience, []byte(organiser), []byte(title))
}

func Slot(experience string, start time.Time) string {
	return Derive(NamespaceSlot, []byte(experience), le64(start.Unix()))
}

func Reservation(experience string, start time.Time) string {
	return Derive(NamespaceReservation, []byte(experience), le64(start.Unix()))
}

// ArchivedReservation is the key a cancelled reservation moves to when its
// slot address is booked again. The token mint keeps archived keys of the
// same slot apart.
func ArchivedReservation(experience string, start time.Time, mint string) string {
	return Derive(NamespaceReservation, []byte(experience), le64(start.Unix()), []byte(mint))
}

func le64(v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b[:]
}
