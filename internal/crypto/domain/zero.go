package domain

import "github.com/awnumar/memguard"

// Zero wipes key material. It accepts several slices so a caller can clear a
// secret together with the keys derived from it.
func Zero(bufs ...[]byte) {
	for _, b := range bufs {
		memguard.WipeBytes(b)
	}
}
