package catalog

// default.go contains the built-in workload catalog used when no catalog
// file is given.

var defaultWorkloads = []Workload{
	{
		Name:     "gapbs",
		Path:     "../workloads/gapbs",
		Programs: []string{"bc", "bfs", "cc", "pr", "sssp", "tc"},
		Args:     "-g 16 -n 1",
	},
	{
		Name:     "memcached",
		Path:     "./workloads/memcached",
		Programs: []string{"memcached"},
		Args:     "-u try",
	},
	{
		Name:     "llama",
		Path:     "../workloads/llama.cpp/build/bin",
		Programs: []string{"llama-cli"},
		Args:     `--model ../workloads/llama.cpp/build/DeepSeek-R1-Distill-Qwen-32B-Q2_K.gguf --cache-type-k q8_0 --threads 16 --prompt '<｜User｜>What is 1+1?<｜Assistant｜>' -no-cnv`,
	},
	{
		Name:     "gromacs",
		Path:     "../workloads/gromacs/build/bin",
		Programs: []string{"gmx"},
		Args:     "mdrun -s ../workloads/gromacs/build/topol.tpr -nsteps 1000",
	},
	{
		Name:     "vsag",
		Path:     "/usr/bin/",
		Programs: []string{"python3"},
		Args: `run_algorithm.py --dataset random-xs-20-angular --algorithm vsag --module ann_benchmarks.algorithms.vsag --constructor Vsag --runs 2 --count 10 --batch ` +
			`"['angular', 20, {'M': 24, 'ef_construction': 300, 'use_int8': 4, 'rs': 0.5}]" '[10]' '[20]' '[30]' '[40]' '[60]' '[80]' '[120]' '[200]' '[400]' '[600]' '[800]'`,
	},
	{
		Name:     "microbench",
		Path:     "./microbench",
		Programs: []string{"ld", "st", "ld_serial", "st_serial", "malloc", "writeback"},
	},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultWorkloads)
	if err != nil {
		panic("built-in catalog is invalid: " + err.Error())
	}
	return c
}
