//go:build !linux

package screen

func checkDisplayServer() error { return nil }
