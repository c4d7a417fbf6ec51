//go:build linux

package netmon

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmdmdm-nz/connwatch/internal/connectivity"
)

const sysfsNetRoot = "/sys/class/net"

func platformClassify(name string) connectivity.Transport {
	return classifySysfs(sysfsNetRoot, name)
}

// classifySysfs prefers what the kernel says about the device and falls back
// to the interface name.
func classifySysfs(root, name string) connectivity.Transport {
	if name == "" {
		return connectivity.None
	}
	dir := filepath.Join(root, name)

	if exists(filepath.Join(dir, "wireless")) || exists(filepath.Join(dir, "phy80211")) {
		return connectivity.WiFi
	}

	switch ueventDevtype(filepath.Join(dir, "uevent")) {
	case "wlan":
		return connectivity.WiFi
	case "wwan":
		return connectivity.Cellular
	}

	return Classify(name)
}

func ueventDevtype(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if v, ok := strings.CutPrefix(scanner.Text(), "DEVTYPE="); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
