// Copyright 2016 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package distro

// DTModel returns platform model info from the Linux device tree
// (/proc/device-tree/model), and "unknown" on non-linux systems or if the
// file is missing.
func DTModel() string {
	if isLinux {
		return makeDTModelLinux()
	}
	return "unknown"
}

// DTCompatible returns platform compatibility info from the Linux device
// tree (/proc/device-tree/compatible), and nil on non-linux systems or if
// the file is missing.
func DTCompatible() []string {
	if isLinux {
		return makeDTCompatible()
	}
	return nil
}

//

var (
	dtModel      string
	dtCompatible []string
)

func makeDTModelLinux() string {
	mu.Lock()
	defer mu.Unlock()
	if dtModel == "" {
		dtModel = "unknown"
		if b, err := readFile("/proc/device-tree/model"); err == nil {
			if model := splitNull(b); len(model) > 0 {
				dtModel = model[0]
			}
		}
	}
	return dtModel
}

func makeDTCompatible() []string {
	mu.Lock()
	defer mu.Unlock()
	if dtCompatible == nil {
		dtCompatible = []string{}
		if b, err := readFile("/proc/device-tree/compatible"); err == nil {
			dtCompatible = splitNull(b)
		}
	}
	return dtCompatible
}
