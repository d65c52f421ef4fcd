//go:build !unix

package daemon

import "os"

// Other platforms run without the lock.
func lockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
