//go:build !libsystemd

package ffi

func newNative() Native { return &Socket{} }
