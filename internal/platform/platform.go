package platform

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/libkeeper/libkeeper/internal/branding"
)

// ErrUnsupportedPlatform is returned when no shared-library artifact is
// published for the host operating system.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// ResolveFilename maps an operating system and machine architecture to the
// artifact filename published upstream, e.g. ("linux", "amd64") →
// "tls-client-linux-amd64.so". Architectures without a dedicated build fall
// back to the dominant one for that OS. Unknown operating systems return
// ErrUnsupportedPlatform.
func ResolveFilename(goos, arch string) (string, error) {
	goos = strings.ToLower(goos)
	arch = strings.ToLower(arch)

	prefix := branding.ArtifactPrefix()

	switch goos {
	case "windows":
		if arch == "386" || arch == "x86" || arch == "i386" {
			return fmt.Sprintf("%s-windows-386.dll", prefix), nil
		}
		return fmt.Sprintf("%s-windows-amd64.dll", prefix), nil
	case "linux":
		if arch == "arm64" || arch == "aarch64" {
			return fmt.Sprintf("%s-linux-arm64.so", prefix), nil
		}
		return fmt.Sprintf("%s-linux-amd64.so", prefix), nil
	case "darwin":
		if arch == "arm64" || arch == "aarch64" {
			return fmt.Sprintf("%s-darwin-arm64.dylib", prefix), nil
		}
		return fmt.Sprintf("%s-darwin-amd64.dylib", prefix), nil
	default:
		return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, arch)
	}
}

// LibraryFilename resolves the artifact filename for the host platform.
func LibraryFilename() (string, error) {
	return ResolveFilename(runtime.GOOS, runtime.GOARCH)
}

// Chmod sets file permissions. On Windows this is a no-op because Windows
// does not support Unix-style permission bits.
func Chmod(path string, mode os.FileMode) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	return os.Chmod(path, mode)
}
