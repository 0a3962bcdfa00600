package simlog

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// CacheStats is one cache instance's hit/half-miss/miss rates for the
// final report.
type CacheStats struct {
	Name        string
	Hits        int64
	HalfMisses  int64
	Misses      int64
}

func (s CacheStats) total() int64 { return s.Hits + s.HalfMisses + s.Misses }

func (s CacheStats) rate(n int64) float64 {
	if s.total() == 0 {
		return 0
	}
	return 100 * float64(n) / float64(s.total())
}

// TreeletDepthBucket is one row of the per-treelet access histogram,
// bucketed by BVH depth (spec §6 "Output").
type TreeletDepthBucket struct {
	Depth   int
	Accesses int64
}

// Report is the final textual summary of one simulation run (spec §6).
// PNG framebuffer emission is explicitly left to the CLI collaborator
// (spec §1 Non-goals); Framebuffer is exposed raw for that purpose.
type Report struct {
	Cycles       uint64
	MRaysPerSec  float64
	EnergyMilliJ float64
	PowerWatts   float64

	Caches   []CacheStats
	RTCores  map[string]int64 // rt-core name -> rays traced
	Treelets []TreeletDepthBucket

	FramebufferWidth  int
	FramebufferHeight int
	Framebuffer       []byte // RGBA8, row-major, width*height*4 bytes
}

// Render writes the report as a set of go-pretty tables, the way the
// teacher's core.PrintState renders register/buffer dumps.
func (r Report) Render() string {
	var b strings.Builder

	summary := table.NewWriter()
	summary.SetTitle("Summary")
	summary.AppendHeader(table.Row{"Metric", "Value"})
	summary.AppendRow(table.Row{"Cycles", r.Cycles})
	summary.AppendRow(table.Row{titleCase("mrays_per_sec"), fmt.Sprintf("%.3f", r.MRaysPerSec)})
	summary.AppendRow(table.Row{titleCase("energy_mj"), fmt.Sprintf("%.3f", r.EnergyMilliJ)})
	summary.AppendRow(table.Row{titleCase("power_watts"), fmt.Sprintf("%.3f", r.PowerWatts)})
	b.WriteString(summary.Render())
	b.WriteString("\n\n")

	if len(r.Caches) > 0 {
		ct := table.NewWriter()
		ct.SetTitle("Cache Rates")
		ct.AppendHeader(table.Row{"Cache", "Hit %", "Half-Miss %", "Miss %"})
		for _, c := range r.Caches {
			ct.AppendRow(table.Row{
				c.Name,
				fmt.Sprintf("%.2f", c.rate(c.Hits)),
				fmt.Sprintf("%.2f", c.rate(c.HalfMisses)),
				fmt.Sprintf("%.2f", c.rate(c.Misses)),
			})
		}
		b.WriteString(ct.Render())
		b.WriteString("\n\n")
	}

	if len(r.RTCores) > 0 {
		rt := table.NewWriter()
		rt.SetTitle("RT-Core Rays Traced")
		rt.AppendHeader(table.Row{"Core", "Rays"})
		for name, rays := range r.RTCores {
			rt.AppendRow(table.Row{name, rays})
		}
		b.WriteString(rt.Render())
		b.WriteString("\n\n")
	}

	if len(r.Treelets) > 0 {
		tt := table.NewWriter()
		tt.SetTitle("Treelet Access Histogram By Depth")
		tt.AppendHeader(table.Row{"Depth", "Accesses"})
		for _, row := range r.Treelets {
			tt.AppendRow(table.Row{row.Depth, row.Accesses})
		}
		b.WriteString(tt.Render())
	}

	return b.String()
}
