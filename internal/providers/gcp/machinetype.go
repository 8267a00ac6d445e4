package gcp

import (
	"fmt"
	"strconv"
	"strings"

	"flavorwise/internal/core"
)

// MachineType is a parsed Compute Engine machine type. RAM is MiB.
type MachineType struct {
	Name   string
	Series string
	Class  string
	CPU    int
	RAM    int64
	Custom bool
}

// GiB of memory per vCPU for each predefined class.
var memoryRatios = map[string]map[string]float64{
	"n1":  {"standard": 3.75, "highmem": 6.5, "highcpu": 0.9},
	"n2":  {"standard": 4, "highmem": 8, "highcpu": 1},
	"n2d": {"standard": 4, "highmem": 8, "highcpu": 1},
	"e2":  {"standard": 4, "highmem": 8, "highcpu": 1},
	"c2":  {"standard": 4},
	"c2d": {"standard": 4, "highmem": 8, "highcpu": 2},
	"t2d": {"standard": 4},
}

// Shared-core types with fixed shapes.
var sharedCore = map[string]MachineType{
	"e2-micro":  {Series: "e2", Class: "shared", CPU: 2, RAM: 1024},
	"e2-small":  {Series: "e2", Class: "shared", CPU: 2, RAM: 2048},
	"e2-medium": {Series: "e2", Class: "shared", CPU: 2, RAM: 4096},
	"f1-micro":  {Series: "f1", Class: "shared", CPU: 1, RAM: 614},
	"g1-small":  {Series: "g1", Class: "shared", CPU: 1, RAM: 1741},
}

// predefinedCPUs are the vCPU counts offered per series for search.
var predefinedCPUs = map[string][]int{
	"n1":  {1, 2, 4, 8, 16, 32, 64, 96},
	"n2":  {2, 4, 8, 16, 32, 48, 64, 80, 96, 128},
	"n2d": {2, 4, 8, 16, 32, 48, 64, 80, 96, 128, 224},
	"e2":  {2, 4, 8, 16, 32},
	"c2":  {4, 8, 16, 30, 60},
	"c2d": {2, 4, 8, 16, 32, 56, 112},
	"t2d": {1, 2, 4, 8, 16, 32, 48, 60},
}

// ParseMachineType accepts predefined ("n2-standard-4"), shared-core
// ("e2-medium") and custom ("n2-custom-4-16384", "custom-2-7680",
// "n2-custom-4-16384-ext") machine types.
func ParseMachineType(name string) (MachineType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if mt, ok := sharedCore[name]; ok {
		mt.Name = name
		return mt, nil
	}

	parts := strings.Split(name, "-")
	if len(parts) > 0 && parts[len(parts)-1] == "ext" {
		parts = parts[:len(parts)-1]
	}

	switch {
	case len(parts) == 3 && parts[0] == "custom":
		// N1 custom types carry no series prefix.
		return parseCustom(name, "n1", parts[1], parts[2])
	case len(parts) == 4 && parts[1] == "custom":
		return parseCustom(name, parts[0], parts[2], parts[3])
	case len(parts) == 3:
		ratios, ok := memoryRatios[parts[0]]
		if !ok {
			return MachineType{}, fmt.Errorf("unknown machine series %q", parts[0])
		}
		ratio, ok := ratios[parts[1]]
		if !ok {
			return MachineType{}, fmt.Errorf("unknown machine class %q for series %s", parts[1], parts[0])
		}
		cpu, err := strconv.Atoi(parts[2])
		if err != nil || cpu <= 0 {
			return MachineType{}, fmt.Errorf("invalid vCPU count in %q", name)
		}
		return MachineType{
			Name:   name,
			Series: parts[0],
			Class:  parts[1],
			CPU:    cpu,
			RAM:    core.GiBToMiB(float64(cpu) * ratio),
		}, nil
	}
	return MachineType{}, fmt.Errorf("unrecognized machine type %q", name)
}

// CoreCount returns the vCPU count of a machine type. Unlike ParseMachineType
// it accepts any predefined "<series>-<class>-<N>" name, including series
// whose memory shape is not tabulated ("c3-standard-8", "n4-standard-4-lssd").
func CoreCount(name string) (int, error) {
	if mt, err := ParseMachineType(name); err == nil {
		return mt.CPU, nil
	}
	parts := strings.Split(strings.ToLower(strings.TrimSpace(name)), "-")
	if len(parts) == 4 && parts[3] == "lssd" {
		parts = parts[:3]
	}
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return 0, fmt.Errorf("unrecognized machine type %q", name)
	}
	cpu, err := strconv.Atoi(parts[2])
	if err != nil || cpu <= 0 {
		return 0, fmt.Errorf("invalid vCPU count in %q", name)
	}
	return cpu, nil
}

func parseCustom(name, series, cpuPart, ramPart string) (MachineType, error) {
	cpu, err := strconv.Atoi(cpuPart)
	if err != nil || cpu <= 0 {
		return MachineType{}, fmt.Errorf("invalid vCPU count in %q", name)
	}
	ram, err := strconv.ParseInt(ramPart, 10, 64)
	if err != nil || ram <= 0 {
		return MachineType{}, fmt.Errorf("invalid memory in %q", name)
	}
	return MachineType{Name: name, Series: series, Class: "custom", CPU: cpu, RAM: ram, Custom: true}, nil
}

// skuPrefix is the leading part of the billing SKU descriptions of a series,
// as in "N2 Instance Core running in Americas".
func skuPrefix(mt MachineType) string {
	switch mt.Series {
	case "n1":
		if mt.Custom {
			return "Custom"
		}
		return "N1 Predefined"
	case "n2d", "c2d", "t2d":
		if mt.Custom {
			return strings.ToUpper(mt.Series) + " AMD Custom"
		}
		return strings.ToUpper(mt.Series) + " AMD"
	}
	if mt.Custom {
		return strings.ToUpper(mt.Series) + " Custom"
	}
	return strings.ToUpper(mt.Series)
}
