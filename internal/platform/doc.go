// Package platform resolves host-specific properties of the managed shared
// library: the artifact filename published for each OS/architecture pair,
// and permission handling that is a no-op on Windows.
package platform
