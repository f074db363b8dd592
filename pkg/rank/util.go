package rank

import "github.com/foxdalas/segregate/pkg/fleet"

type byFreeMemory []*fleet.Host

func (h byFreeMemory) Len() int      { return len(h) }
func (h byFreeMemory) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h byFreeMemory) Less(i, j int) bool {
	if h[i].MemoryFree() != h[j].MemoryFree() {
		return h[i].MemoryFree() > h[j].MemoryFree()
	}
	return h[i].AmountOfVMs() < h[j].AmountOfVMs()
}

type byWindowsDesc []*fleet.Host

func (h byWindowsDesc) Len() int      { return len(h) }
func (h byWindowsDesc) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h byWindowsDesc) Less(i, j int) bool {
	return h[i].AmountOfWindowsVMs(false) > h[j].AmountOfWindowsVMs(false)
}

type byWindowsAffinityFreeAsc []*fleet.Host

func (h byWindowsAffinityFreeAsc) Len() int      { return len(h) }
func (h byWindowsAffinityFreeAsc) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h byWindowsAffinityFreeAsc) Less(i, j int) bool {
	return h[i].AmountOfWindowsVMs(true) < h[j].AmountOfWindowsVMs(true)
}

type byOccupancy []*fleet.Host

func (h byOccupancy) Len() int           { return len(h) }
func (h byOccupancy) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h byOccupancy) Less(i, j int) bool { return h[i].OccupancyRatio() < h[j].OccupancyRatio() }
