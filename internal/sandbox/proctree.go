package sandbox

import (
	"fmt"

	ps "github.com/mitchellh/go-ps"
	"github.com/shirou/gopsutil/v4/process"
)

// processTreeRSS sums the resident set sizes of pid and every
// transitive descendant still visible in the process table. Children
// that exit between the scan and the sample are skipped.
func processTreeRSS(rootPID int) (uint64, error) {
	procs, err := ps.Processes()
	if err != nil {
		return 0, fmt.Errorf("op=sandbox.processTreeRSS: list processes: %w", err)
	}
	var total uint64
	for _, pid := range familyPIDs(rootPID, procs) {
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			continue
		}
		mi, err := p.MemoryInfo()
		if err != nil || mi == nil {
			continue
		}
		total += mi.RSS
	}
	return total, nil
}

// familyPIDs returns rootPID plus every transitive child found in
// procs. The scan repeats until a pass adds nothing, so grandchildren
// are found regardless of table order.
func familyPIDs(rootPID int, procs []ps.Process) []int {
	family := map[int]struct{}{rootPID: {}}
	for {
		added := false
		for _, p := range procs {
			if _, ok := family[p.PPid()]; !ok {
				continue
			}
			if _, seen := family[p.Pid()]; !seen {
				family[p.Pid()] = struct{}{}
				added = true
			}
		}
		if !added {
			break
		}
	}
	out := make([]int, 0, len(family))
	for pid := range family {
		out = append(out, pid)
	}
	return out
}
