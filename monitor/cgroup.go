package monitor

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	cgroupV2Path = "/sys/fs/cgroup/cgroup.controllers"
	memInfoPath  = "/proc/meminfo"

	// memory.max holds this literal when the cgroup is unlimited
	noMemoryLimit = "max"
)

var (
	cgroupVersion      = ""
	noContentError     = "No content in the file %s"
	cpuByCgroupVersion = map[string]statsParser{
		"v2": {
			path:   "/sys/fs/cgroup/cpu.stat",
			parser: readCPUStatFileV2,
		},
		"v1": {
			path:   "/sys/fs/cgroup/cpu,cpuacct/cpuacct.usage",
			parser: readCPUStatFileV1,
		},
	}
	memByCgroupVersion = map[string]statsParser{
		"v2": {
			path:   "/sys/fs/cgroup/memory.current",
			parser: readSingleValueFile,
		},
		"v1": {
			path:   "/sys/fs/cgroup/memory/memory.usage_in_bytes",
			parser: readSingleValueFile,
		},
	}
	memLimitByCgroupVersion = map[string]statsParser{
		"v2": {
			path:   "/sys/fs/cgroup/memory.max",
			parser: readMemoryLimitFile,
		},
		"v1": {
			path:   "/sys/fs/cgroup/memory/memory.limit_in_bytes",
			parser: readSingleValueFile,
		},
	}
)

type statsParser struct {
	path   string
	parser func(path string) (uint64, error)
}

func (sp statsParser) readUsage() (uint64, error) {
	return sp.parser(sp.path)
}

func detectCgroupVersion() string {
	if cgroupVersion != "" {
		return cgroupVersion
	}
	if _, err := os.Stat(cgroupV2Path); err == nil {
		cgroupVersion = "v2"
		return cgroupVersion
	}
	cgroupVersion = "v1"
	return cgroupVersion
}

func head(path string, nol int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanned := 0
	r := []string{}
	for scanner.Scan() {
		r = append(r, scanner.Text())
		scanned += 1
		if scanned == nol {
			break
		}
	}
	return r, nil
}

func readCPUStatFileV1(path string) (uint64, error) {
	t, err := head(path, 1)
	if err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, fmt.Errorf(noContentError, path)
	}
	// v1 reports nanoseconds, normalise to microseconds like v2
	ns, err := strconv.ParseUint(t[0], 10, 64)
	if err != nil {
		return 0, err
	}
	return ns / 1000, nil
}

func readCPUStatFileV2(path string) (uint64, error) {
	t, err := head(path, 1)
	if err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, fmt.Errorf(noContentError, path)
	}
	firstLine := t[0]
	return strconv.ParseUint(strings.Split(firstLine, " ")[1], 10, 64)
}

func readSingleValueFile(path string) (uint64, error) {
	t, err := head(path, 1)
	if err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, fmt.Errorf(noContentError, path)
	}
	return strconv.ParseUint(t[0], 10, 64)
}

func readMemoryLimitFile(path string) (uint64, error) {
	t, err := head(path, 1)
	if err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, fmt.Errorf(noContentError, path)
	}
	if t[0] == noMemoryLimit {
		return readMemInfoTotal(memInfoPath)
	}
	return strconv.ParseUint(t[0], 10, 64)
}

// readMemInfoTotal parses "MemTotal:  16303864 kB" from /proc/meminfo.
func readMemInfoTotal(path string) (uint64, error) {
	t, err := head(path, 1)
	if err != nil {
		return 0, err
	}
	if len(t) == 0 {
		return 0, fmt.Errorf(noContentError, path)
	}
	fields := strings.Fields(t[0])
	if len(fields) < 2 {
		return 0, fmt.Errorf("unexpected meminfo line %s", t[0])
	}
	kb, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	return kb * 1024, nil
}

func readUsage(m map[string]statsParser) (uint64, error) {
	cgroupVersion := detectCgroupVersion()
	sp := m[cgroupVersion]
	return sp.readUsage()
}

// ReadCPUUsage returns the cumulative CPU usage in microseconds.
func ReadCPUUsage() (uint64, error) {
	return readUsage(cpuByCgroupVersion)
}

// ReadMemoryUsage returns the RSS memory in bytes.
func ReadMemoryUsage() (uint64, error) {
	return readUsage(memByCgroupVersion)
}

// ReadMemoryLimit returns the memory ceiling in bytes. When the cgroup is
// unlimited the host total is used instead.
func ReadMemoryLimit() (uint64, error) {
	return readUsage(memLimitByCgroupVersion)
}
