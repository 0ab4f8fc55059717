package sources

// DmesgSource follows the kernel ring buffer via "dmesg -w".
type DmesgSource struct {
	*CommandSource
}

func NewDmesgSource(name string) *DmesgSource {
	return &DmesgSource{CommandSource: NewCommandSource(name, "dmesg", "-w")}
}
