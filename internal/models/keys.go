package models

import "strconv"

// pairKey joins two ids into one document id. The first id is length-prefixed
// so ids containing the separator cannot collide.
func pairKey(first, second string) string {
	return strconv.Itoa(len(first)) + ":" + first + "_" + second
}
