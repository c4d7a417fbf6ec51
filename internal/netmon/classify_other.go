//go:build !linux

package netmon

import "github.com/dmdmdm-nz/connwatch/internal/connectivity"

func platformClassify(name string) connectivity.Transport {
	return Classify(name)
}
