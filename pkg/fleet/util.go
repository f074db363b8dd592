package fleet

type vmsByMemory []VM

func (v vmsByMemory) Len() int           { return len(v) }
func (v vmsByMemory) Swap(i, j int)      { v[i], v[j] = v[j], v[i] }
func (v vmsByMemory) Less(i, j int) bool { return v[i].Required() < v[j].Required() }

type vmsByMemoryDesc []VM

func (v vmsByMemoryDesc) Len() int           { return len(v) }
func (v vmsByMemoryDesc) Swap(i, j int)      { v[i], v[j] = v[j], v[i] }
func (v vmsByMemoryDesc) Less(i, j int) bool { return v[i].Required() > v[j].Required() }
